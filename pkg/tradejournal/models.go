package tradejournal

import "time"

// Plans a user can be on. Only the free plan is capped.
const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanElite = "elite"
)

// Trade sides.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Emotion is a tag the model may attach to a trade.
type Emotion string

const (
	EmotionFear           Emotion = "fear"
	EmotionGreed          Emotion = "greed"
	EmotionOverconfidence Emotion = "overconfidence"
	EmotionRevenge        Emotion = "revenge"
	EmotionHesitation     Emotion = "hesitation"
	EmotionNeutral        Emotion = "neutral"
)

var validEmotions = map[Emotion]struct{}{
	EmotionFear:           {},
	EmotionGreed:          {},
	EmotionOverconfidence: {},
	EmotionRevenge:        {},
	EmotionHesitation:     {},
	EmotionNeutral:        {},
}

// User is the per-user record holding plan and quota state.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Plan          string    `json:"plan"`
	AnalysisCount int       `json:"analysis_count"`
	AnalysisMonth string    `json:"analysis_month,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Trade is one journal entry. Pointer fields are absent when nil.
type Trade struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	EntryPrice *Amount    `json:"entry_price,omitempty"`
	ExitPrice  *Amount    `json:"exit_price,omitempty"`
	StopLoss   *Amount    `json:"stop_loss,omitempty"`
	Qty        *Amount    `json:"qty,omitempty"`
	Premium    *Amount    `json:"premium,omitempty"`
	PnL        *Amount    `json:"pnl,omitempty"`
	PnLPercent *float64   `json:"pnl_percent,omitempty"`
	Notes      string     `json:"notes"`
	OCRText    string     `json:"ocr_text,omitempty"`
	DateOpen   *time.Time `json:"date_open,omitempty"`
	DateClose  *time.Time `json:"date_close,omitempty"`
	AIAnalysis *Analysis  `json:"ai_analysis,omitempty"`
	AnalysisAt *time.Time `json:"analysis_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EmotionTag is one emotion the model detected, with its confidence in [0,1].
type EmotionTag struct {
	Tag        Emotion `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the model's structured verdict on a trade. ErrorRaw is only set
// on the fallback record written after every attempt failed.
type Analysis struct {
	QualityScore int          `json:"qualityScore"`
	Mistakes     []string     `json:"mistakes"`
	EmotionTags  []EmotionTag `json:"emotionTags"`
	Suggestions  []string     `json:"suggestions"`
	Explainers   string       `json:"explainers"`
	Confidence   float64      `json:"confidence"`
	ErrorRaw     string       `json:"errorRaw,omitempty"`
}

// Degraded reports whether a is the fallback record.
func (a *Analysis) Degraded() bool {
	return a != nil && a.ErrorRaw != ""
}

// QuotaState is the ledger value after a successful increment.
type QuotaState struct {
	AnalysisCount int    `json:"analysisCount"`
	AnalysisMonth string `json:"analysisMonth"`
}

// QuotaStatus describes a user's standing for the current month.
type QuotaStatus struct {
	Plan      string    `json:"plan"`
	Month     string    `json:"month"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
	ResetAt   time.Time `json:"reset_at"`
}

// TradeAnalysisResult is returned by a fully successful AnalyzeTrade.
type TradeAnalysisResult struct {
	Success    bool       `json:"success"`
	Analysis   *Analysis  `json:"analysis"`
	TradeID    string     `json:"trade_id"`
	Provider   string     `json:"provider"`
	Attempts   int        `json:"attempts"`
	Quota      QuotaState `json:"quota"`
	AnalyzedAt time.Time  `json:"analyzed_at"`
}
