package api

import (
	"time"

	"tradejournal/pkg/tradejournal"
)

type registerUserPayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type addTradePayload struct {
	ID         string               `json:"id"`
	Symbol     string               `json:"symbol"`
	Side       string               `json:"side"`
	EntryPrice *tradejournal.Amount `json:"entry_price"`
	ExitPrice  *tradejournal.Amount `json:"exit_price"`
	StopLoss   *tradejournal.Amount `json:"stop_loss"`
	Qty        *tradejournal.Amount `json:"qty"`
	Premium    *tradejournal.Amount `json:"premium"`
	PnL        *tradejournal.Amount `json:"pnl"`
	PnLPercent *float64             `json:"pnl_percent"`
	Notes      string               `json:"notes"`
	OCRText    string               `json:"ocr_text"`
	DateOpen   *time.Time           `json:"date_open"`
	DateClose  *time.Time           `json:"date_close"`
}

func (p addTradePayload) toInput() tradejournal.TradeInput {
	return tradejournal.TradeInput{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  p.ExitPrice,
		StopLoss:   p.StopLoss,
		Qty:        p.Qty,
		Premium:    p.Premium,
		PnL:        p.PnL,
		PnLPercent: p.PnLPercent,
		Notes:      p.Notes,
		OCRText:    p.OCRText,
		DateOpen:   p.DateOpen,
		DateClose:  p.DateClose,
	}
}

type analyzeTradePayload struct {
	TradeID string `json:"trade_id"`
}

type tradesResponse struct {
	Items  []tradejournal.Trade `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type tradeAnalysisResponse struct {
	TradeID  string                 `json:"trade_id"`
	Analysis *tradejournal.Analysis `json:"analysis"`
	Degraded bool                   `json:"degraded"`
}

type positionSizePayload struct {
	Capital     tradejournal.Amount `json:"capital"`
	EntryPrice  tradejournal.Amount `json:"entry_price"`
	StopLoss    tradejournal.Amount `json:"stop_loss"`
	RiskPercent float64             `json:"risk_percent"`
}
