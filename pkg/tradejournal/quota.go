package tradejournal

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const (
	// FreeMonthlyAnalysisLimit caps analyses per calendar month on the free plan.
	FreeMonthlyAnalysisLimit = 50

	maxQuotaTxAttempts = 5
)

var errQuotaConflict = errors.New("quota row changed during transaction")

// beforeQuotaWrite runs between the quota read and the conditional write.
// Tests replace it to change the row under the transaction.
var beforeQuotaWrite = func(ctx context.Context, tx *sql.Tx, userID string) error { return nil }

// planLimit reports the monthly cap for plan and whether one applies.
func planLimit(plan string) (int, bool) {
	switch normalizePlan(plan) {
	case PlanPro, PlanElite:
		return 0, false
	default:
		return FreeMonthlyAnalysisLimit, true
	}
}

// CheckAndIncrementQuota debits one analysis from the user's monthly quota.
//
// The read and the write happen in one transaction and the write only lands
// if the row still holds the values that were read, so concurrent callers can
// never push a free user past the cap. A stale month resets the counter
// before the increment. On refusal nothing is written and the returned error
// carries a *QuotaExceededError.
func (c *Core) CheckAndIncrementQuota(ctx context.Context, userID string) (QuotaState, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return QuotaState{}, NewError(ErrCodeUnauthenticated, "user id is required")
	}

	for attempt := 1; attempt <= maxQuotaTxAttempts; attempt++ {
		now := c.now()
		month := MonthToken(now)

		var state QuotaState
		err := c.WithTx(ctx, func(tx *sql.Tx) error {
			var (
				plan        string
				count       int
				storedMonth sql.NullString
			)
			err := tx.QueryRowContext(ctx,
				`SELECT plan, analysis_count, analysis_month FROM users WHERE id = ?`, userID,
			).Scan(&plan, &count, &storedMonth)
			if errors.Is(err, sql.ErrNoRows) {
				return NewError(ErrCodeUserNotFound, "user not found")
			}
			if err != nil {
				return WrapError(ErrCodeDatabase, "read quota", err)
			}

			used := count
			if !storedMonth.Valid || storedMonth.String != month {
				used = 0
			}
			if limit, limited := planLimit(plan); limited && used >= limit {
				return WrapError(ErrCodeQuotaExceeded, "monthly analysis quota exceeded", &QuotaExceededError{
					Plan:    normalizePlan(plan),
					Limit:   limit,
					Used:    used,
					Month:   month,
					ResetAt: NextMonthStart(now),
				})
			}

			if err := beforeQuotaWrite(ctx, tx, userID); err != nil {
				return err
			}

			var prevMonth any
			if storedMonth.Valid {
				prevMonth = storedMonth.String
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE users
				SET analysis_count = ?, analysis_month = ?, updated_at = ?
				WHERE id = ? AND analysis_count = ? AND analysis_month IS ?
			`, used+1, month, formatTimestamp(now), userID, count, prevMonth)
			if err != nil {
				return WrapError(ErrCodeDatabase, "write quota", err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return WrapError(ErrCodeDatabase, "write quota", err)
			} else if n == 0 {
				return errQuotaConflict
			}
			state = QuotaState{AnalysisCount: used + 1, AnalysisMonth: month}
			return nil
		})
		if errors.Is(err, errQuotaConflict) {
			c.logger.Warn("quota update lost a race; retrying", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return QuotaState{}, err
		}
		return state, nil
	}
	return QuotaState{}, NewError(ErrCodeConflict, "quota update kept conflicting; try again")
}

// GetQuota reports the user's standing for the current month without
// changing it.
func (c *Core) GetQuota(ctx context.Context, userID string) (QuotaStatus, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	now := c.now()
	month := MonthToken(now)
	used := user.AnalysisCount
	if user.AnalysisMonth != month {
		used = 0
	}

	status := QuotaStatus{
		Plan:    user.Plan,
		Month:   month,
		Used:    used,
		ResetAt: NextMonthStart(now),
	}
	limit, limited := planLimit(user.Plan)
	if !limited {
		status.Unlimited = true
		return status, nil
	}
	status.Limit = limit
	status.Remaining = max(limit-used, 0)
	return status, nil
}
