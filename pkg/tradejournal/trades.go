package tradejournal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

const (
	maxOCRLineLength  = 200
	maxStoredOCRRunes = 5000
	maxNotesRunes     = 4000
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

var notesPolicy = bluemonday.StrictPolicy()

var validSides = map[string]struct{}{
	SideLong:  {},
	SideShort: {},
}

// TradeInput is a new journal entry. Nil numeric fields are stored as absent.
// PnL and PnLPercent are derived from prices when left nil.
type TradeInput struct {
	ID         string     `json:"id,omitempty"`
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
}

// TradeListOptions pages through a user's trades, newest close first.
type TradeListOptions struct {
	Limit  int
	Offset int
}

// AddTrade stores a trade for userID and returns the stored record.
func (c *Core) AddTrade(ctx context.Context, userID string, input TradeInput) (*Trade, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewError(ErrCodeUnauthenticated, "user id is required")
	}
	trade, err := normalizeTradeInput(input)
	if err != nil {
		return nil, err
	}
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	trade.UserID = userID
	now := c.now().UTC()
	trade.CreatedAt = now
	trade.UpdatedAt = now
	if trade.DateOpen == nil {
		trade.DateOpen = &now
	}
	if trade.DateClose == nil {
		trade.DateClose = &now
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO trades (
			id, user_id, symbol, side, entry_price, exit_price, stop_loss, qty, premium,
			pnl, pnl_percent, notes, ocr_text, date_open, date_close, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID, trade.UserID, trade.Symbol, trade.Side,
		nullableAmount(trade.EntryPrice), nullableAmount(trade.ExitPrice), nullableAmount(trade.StopLoss),
		nullableAmount(trade.Qty), nullableAmount(trade.Premium), nullableAmount(trade.PnL),
		nullableFloat(trade.PnLPercent), trade.Notes, trade.OCRText,
		nullableTimestamp(trade.DateOpen), nullableTimestamp(trade.DateClose),
		formatTimestamp(now), formatTimestamp(now),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, NewError(ErrCodeUserNotFound, "user not found")
		}
		if isUniqueError(err) {
			return nil, NewError(ErrCodeConflict, fmt.Sprintf("trade %s already exists", trade.ID))
		}
		return nil, WrapError(ErrCodeDatabase, "insert trade", err)
	}
	return c.GetTrade(ctx, userID, trade.ID)
}

// GetTrade loads one of the user's trades.
func (c *Core) GetTrade(ctx context.Context, userID, tradeID string) (*Trade, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE user_id = ? AND id = ?`,
		strings.TrimSpace(userID), strings.TrimSpace(tradeID))
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(ErrCodeTradeNotFound, "trade not found")
	}
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "load trade", err)
	}
	return trade, nil
}

// ListTrades returns the user's trades ordered by close date, newest first.
func (c *Core) ListTrades(ctx context.Context, userID string, opts TradeListOptions) ([]Trade, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE user_id = ?
		ORDER BY date_close DESC, created_at DESC
		LIMIT ? OFFSET ?
	`, strings.TrimSpace(userID), limit, offset)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "list trades", err)
	}
	defer rows.Close()

	trades := []Trade{}
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan trade", err)
		}
		trades = append(trades, *trade)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(ErrCodeDatabase, "iterate trades", err)
	}
	return trades, nil
}

// DeleteTrade removes one of the user's trades.
func (c *Core) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM trades WHERE user_id = ? AND id = ?`,
		strings.TrimSpace(userID), strings.TrimSpace(tradeID))
	if err != nil {
		return WrapError(ErrCodeDatabase, "delete trade", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrCodeTradeNotFound, "trade not found")
	}
	return nil
}

// GetTradeAnalysis returns the stored analysis for a trade, or nil if the
// trade has never been analyzed.
func (c *Core) GetTradeAnalysis(ctx context.Context, userID, tradeID string) (*Analysis, error) {
	trade, err := c.GetTrade(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	return trade.AIAnalysis, nil
}

const tradeColumns = `id, user_id, symbol, side, entry_price, exit_price, stop_loss, qty, premium,
	pnl, pnl_percent, notes, ocr_text, date_open, date_close, ai_analysis, analysis_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var (
		trade                             Trade
		entry, exit, stop, qty, prem, pnl any
		pnlPercent                        sql.NullFloat64
		dateOpen, dateClose, analysisAt   sql.NullString
		analysisJSON                      sql.NullString
		createdAt, updatedAt              string
	)
	if err := row.Scan(
		&trade.ID, &trade.UserID, &trade.Symbol, &trade.Side,
		&entry, &exit, &stop, &qty, &prem, &pnl, &pnlPercent,
		&trade.Notes, &trade.OCRText, &dateOpen, &dateClose,
		&analysisJSON, &analysisAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	for _, f := range []struct {
		dst **Amount
		src any
	}{
		{&trade.EntryPrice, entry},
		{&trade.ExitPrice, exit},
		{&trade.StopLoss, stop},
		{&trade.Qty, qty},
		{&trade.Premium, prem},
		{&trade.PnL, pnl},
	} {
		if *f.dst, err = scanNullAmount(f.src); err != nil {
			return nil, fmt.Errorf("scan amount: %w", err)
		}
	}
	if pnlPercent.Valid {
		v := pnlPercent.Float64
		trade.PnLPercent = &v
	}
	if trade.DateOpen, err = parseNullTimestamp(dateOpen); err != nil {
		return nil, fmt.Errorf("parse date_open: %w", err)
	}
	if trade.DateClose, err = parseNullTimestamp(dateClose); err != nil {
		return nil, fmt.Errorf("parse date_close: %w", err)
	}
	if trade.AnalysisAt, err = parseNullTimestamp(analysisAt); err != nil {
		return nil, fmt.Errorf("parse analysis_at: %w", err)
	}
	if trade.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if trade.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		var analysis Analysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &analysis); err != nil {
			return nil, fmt.Errorf("decode ai_analysis: %w", err)
		}
		trade.AIAnalysis = &analysis
	}
	return &trade, nil
}

func normalizeTradeInput(input TradeInput) (*Trade, error) {
	symbol := strings.ToUpper(strings.TrimSpace(input.Symbol))
	if symbol == "" {
		return nil, NewError(ErrCodeInvalidInput, "symbol is required")
	}
	side := strings.ToLower(strings.TrimSpace(input.Side))
	if _, ok := validSides[side]; !ok {
		return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("invalid side: %s", input.Side))
	}
	for name, v := range map[string]*Amount{
		"entry_price": input.EntryPrice,
		"exit_price":  input.ExitPrice,
		"stop_loss":   input.StopLoss,
		"qty":         input.Qty,
		"premium":     input.Premium,
	} {
		if v != nil && v.IsNegative() {
			return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("%s must not be negative", name))
		}
	}

	trade := &Trade{
		ID:         strings.TrimSpace(input.ID),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: input.EntryPrice,
		ExitPrice:  input.ExitPrice,
		StopLoss:   input.StopLoss,
		Qty:        input.Qty,
		Premium:    input.Premium,
		PnL:        input.PnL,
		PnLPercent: input.PnLPercent,
		Notes:      SanitizeNotes(input.Notes),
		OCRText:    SanitizeOCRText(input.OCRText),
		DateOpen:   input.DateOpen,
		DateClose:  input.DateClose,
	}
	if trade.PnL == nil || trade.PnLPercent == nil {
		pnl, pct, ok := computePnL(side, input.EntryPrice, input.ExitPrice, input.Qty, input.Premium)
		if ok {
			if trade.PnL == nil {
				trade.PnL = &pnl
			}
			if trade.PnLPercent == nil {
				trade.PnLPercent = &pct
			}
		}
	}
	return trade, nil
}

// computePnL derives realized P&L net of premium and the move relative to
// entry. ok is false when entry, exit or qty is missing.
func computePnL(side string, entry, exit, qty, premium *Amount) (Amount, float64, bool) {
	if entry == nil || exit == nil || qty == nil {
		return Amount{}, 0, false
	}
	move := exit.Sub(entry.Decimal)
	if side == SideShort {
		move = move.Neg()
	}
	pnl := move.Mul(qty.Decimal).Sub(amountOrZero(premium))
	pct := 0.0
	if entry.IsPositive() {
		pct, _ = move.Div(entry.Decimal).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	}
	return Amount{pnl}, pct, true
}

// SanitizeNotes strips markup and control characters from free-text notes.
func SanitizeNotes(notes string) string {
	cleaned := html.UnescapeString(notesPolicy.Sanitize(notes))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, cleaned)
	return truncateRunes(strings.TrimSpace(cleaned), maxNotesRunes)
}

// SanitizeOCRText drops lines that look like encoded binary and caps the
// stored length.
func SanitizeOCRText(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if len([]rune(line)) <= maxOCRLineLength {
			kept = append(kept, line)
		}
	}
	return truncateRunes(strings.Join(kept, "\n"), maxStoredOCRRunes)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func isUniqueError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
