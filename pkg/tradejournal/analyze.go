package tradejournal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

const (
	degradedSuggestion = "Analysis failed. Please try again."
	degradedExplainer  = "Unable to analyze this trade due to an error."

	persistTimeout = 15 * time.Second
)

var retrySleep = sleepContext

// AnalyzeTrade runs the model analysis for one of the user's trades and
// stores the result on the trade.
//
// Identity and quota failures are returned before any model call. Once the
// quota is debited the run ignores caller cancellation and always leaves an
// analysis on the trade: when every attempt fails, a fallback record is
// stored and the returned error has code ANALYSIS_DEGRADED and carries it in
// an *AnalysisDegradedError.
func (c *Core) AnalyzeTrade(ctx context.Context, userID, tradeID string) (*TradeAnalysisResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewError(ErrCodeUnauthenticated, "authentication required")
	}
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return nil, NewError(ErrCodeInvalidInput, "trade id is required")
	}

	quota, err := c.CheckAndIncrementQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.analysisTimeout)
	defer cancel()

	trade, err := c.GetTrade(runCtx, userID, tradeID)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("user_id", userID, "trade_id", tradeID, "provider", c.provider.Name())
	logger.Info("trade analysis started", "analysis_count", quota.AnalysisCount, "analysis_month", quota.AnalysisMonth)

	analysis, attempts, lastRaw, lastErr := c.runAnalysis(runCtx, logger, *trade)
	if analysis == nil {
		degraded := degradedAnalysis(lastRaw, lastErr)
		if _, err := c.saveTradeAnalysis(ctx, userID, tradeID, degraded); err != nil {
			return nil, err
		}
		logger.Error("trade analysis degraded", "attempts", attempts, "err", lastErr)
		return nil, WrapError(ErrCodeAnalysisDegraded, "analysis completed with errors", &AnalysisDegradedError{
			Analysis: degraded,
			Attempts: attempts,
			Cause:    lastErr,
		})
	}

	analyzedAt, err := c.saveTradeAnalysis(ctx, userID, tradeID, analysis)
	if err != nil {
		return nil, err
	}
	logger.Info("trade analysis completed", "attempts", attempts, "quality_score", analysis.QualityScore)
	return &TradeAnalysisResult{
		Success:    true,
		Analysis:   analysis,
		TradeID:    tradeID,
		Provider:   c.provider.Name(),
		Attempts:   attempts,
		Quota:      quota,
		AnalyzedAt: analyzedAt,
	}, nil
}

// runAnalysis calls the model until a response validates or attempts run
// out, sleeping RetryDelay times the attempt number in between. It returns
// the last raw model text and error seen for the fallback record.
func (c *Core) runAnalysis(ctx context.Context, logger *slog.Logger, trade Trade) (*Analysis, int, string, error) {
	req := tradeAnalysisRequest(trade)

	var (
		lastRaw string
		lastErr error
	)
	attempt := 1
	for ; attempt <= c.maxAttempts; attempt++ {
		raw, err := c.provider.Complete(ctx, req)
		if err == nil {
			lastRaw = raw
			analysis, parseErr := ParseAnalysis(raw)
			if parseErr == nil {
				return analysis, attempt, raw, nil
			}
			err = parseErr
		}
		lastErr = err
		logger.Warn("trade analysis attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error_code", CodeOf(err),
			"err", err,
		)
		if attempt == c.maxAttempts {
			break
		}
		if err := retrySleep(ctx, c.retryDelay*time.Duration(attempt)); err != nil {
			lastErr = WrapError(ErrCodeProviderError, "analysis timed out", err)
			break
		}
	}
	return nil, min(attempt, c.maxAttempts), lastRaw, lastErr
}

// degradedAnalysis is the record stored when no attempt produced a valid
// response.
func degradedAnalysis(lastRaw string, lastErr error) *Analysis {
	errorRaw := strings.TrimSpace(lastRaw)
	if errorRaw == "" && lastErr != nil {
		errorRaw = lastErr.Error()
	}
	if errorRaw == "" {
		errorRaw = "unknown error"
	}
	return &Analysis{
		QualityScore: 0,
		Mistakes:     []string{},
		EmotionTags:  []EmotionTag{},
		Suggestions:  []string{degradedSuggestion},
		Explainers:   degradedExplainer,
		Confidence:   0,
		ErrorRaw:     errorRaw,
	}
}

// saveTradeAnalysis replaces the trade's analysis in one statement. It runs
// detached from ctx so a finished analysis is never lost to cancellation.
func (c *Core) saveTradeAnalysis(ctx context.Context, userID, tradeID string, analysis *Analysis) (time.Time, error) {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return time.Time{}, WrapError(ErrCodeInternal, "encode analysis", err)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := c.now().UTC()
	ts := formatTimestamp(now)
	res, err := c.db.ExecContext(saveCtx, `
		UPDATE trades SET ai_analysis = ?, analysis_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, string(payload), ts, ts, userID, tradeID)
	if err != nil {
		return time.Time{}, WrapError(ErrCodeDatabase, "save analysis", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, WrapError(ErrCodeDatabase, "save analysis", err)
	}
	if n == 0 {
		return time.Time{}, NewError(ErrCodeTradeNotFound, "trade not found")
	}
	return now, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
