package tradejournal

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
)

// TradeStats summarizes a user's journal.
type TradeStats struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	AvgRiskReward   float64 `json:"avg_risk_reward"`
	TotalPnL        Amount  `json:"total_pnl"`
	AvgWin          Amount  `json:"avg_win"`
	AvgLoss         Amount  `json:"avg_loss"`
	LargestWin      Amount  `json:"largest_win"`
	LargestLoss     Amount  `json:"largest_loss"`
	TradesThisMonth int     `json:"trades_this_month"`
	AnalyzedTrades  int     `json:"analyzed_trades"`
}

// GetTradeStats computes win rate, risk/reward and P&L figures over every
// trade the user has logged. Trades without a P&L count as flat.
func (c *Core) GetTradeStats(ctx context.Context, userID string) (*TradeStats, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT pnl, entry_price, exit_price, stop_loss, date_close, ai_analysis IS NOT NULL
		FROM trades WHERE user_id = ?
	`, strings.TrimSpace(userID))
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "load trades for stats", err)
	}
	defer rows.Close()

	monthBegin := monthStart(c.now())
	stats := &TradeStats{}
	var (
		totalPnL, winSum, lossSum decimal.Decimal
		largestWin, largestLoss   decimal.Decimal
		rrSum                     decimal.Decimal
	)
	for rows.Next() {
		var (
			pnlRaw, entryRaw, exitRaw, stopRaw any
			dateClose                          sql.NullString
			analyzed                           bool
		)
		if err := rows.Scan(&pnlRaw, &entryRaw, &exitRaw, &stopRaw, &dateClose, &analyzed); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan trade stats", err)
		}
		pnl, err := scanNullAmount(pnlRaw)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan pnl", err)
		}
		entry, err := scanNullAmount(entryRaw)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan entry price", err)
		}
		exit, err := scanNullAmount(exitRaw)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan exit price", err)
		}
		stop, err := scanNullAmount(stopRaw)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan stop loss", err)
		}

		stats.TotalTrades++
		if analyzed {
			stats.AnalyzedTrades++
		}
		p := amountOrZero(pnl)
		totalPnL = totalPnL.Add(p)
		switch {
		case p.IsPositive():
			stats.WinningTrades++
			winSum = winSum.Add(p)
			if stats.WinningTrades == 1 || p.GreaterThan(largestWin) {
				largestWin = p
			}
		case p.IsNegative():
			stats.LosingTrades++
			lossSum = lossSum.Add(p)
			if stats.LosingTrades == 1 || p.LessThan(largestLoss) {
				largestLoss = p
			}
		}
		rrSum = rrSum.Add(riskReward(entry, exit, stop))

		closed, err := parseNullTimestamp(dateClose)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "parse date_close", err)
		}
		if closed != nil && !closed.Before(monthBegin) {
			stats.TradesThisMonth++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(ErrCodeDatabase, "iterate trade stats", err)
	}

	stats.TotalPnL = Amount{totalPnL}
	stats.LargestWin = Amount{largestWin}
	stats.LargestLoss = Amount{largestLoss}
	if stats.TotalTrades > 0 {
		n := decimal.NewFromInt(int64(stats.TotalTrades))
		stats.WinRate, _ = decimal.NewFromInt(int64(stats.WinningTrades)).
			Div(n).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		stats.AvgRiskReward, _ = rrSum.Div(n).Round(4).Float64()
	}
	if stats.WinningTrades > 0 {
		stats.AvgWin = Amount{winSum.Div(decimal.NewFromInt(int64(stats.WinningTrades)))}
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = Amount{lossSum.Div(decimal.NewFromInt(int64(stats.LosingTrades)))}
	}
	return stats, nil
}

// riskReward is |exit-entry| / |entry-stop|, or zero when any price is
// missing or there was no risk.
func riskReward(entry, exit, stop *Amount) decimal.Decimal {
	if entry == nil || exit == nil || stop == nil || entry.IsZero() || exit.IsZero() || stop.IsZero() {
		return decimal.Zero
	}
	risk := entry.Sub(stop.Decimal).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return exit.Sub(entry.Decimal).Abs().Div(risk)
}
