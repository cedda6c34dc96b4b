package tradejournal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var validPlans = map[string]struct{}{
	PlanFree:  {},
	PlanPro:   {},
	PlanElite: {},
}

// UserProfile holds the fields a caller may set when registering.
type UserProfile struct {
	ID          string
	Email       string
	DisplayName string
}

// EnsureUser creates the user record on first sign-in and refreshes the
// profile fields afterwards. Plan and quota state are never touched here.
func (c *Core) EnsureUser(ctx context.Context, profile UserProfile) (*User, error) {
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return nil, NewError(ErrCodeUnauthenticated, "user id is required")
	}
	now := formatTimestamp(c.now())
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, plan, analysis_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
			updated_at = excluded.updated_at
	`, id, strings.TrimSpace(profile.Email), strings.TrimSpace(profile.DisplayName), PlanFree, now, now)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "upsert user", err)
	}
	return c.GetUser(ctx, id)
}

// GetUser loads a user record.
func (c *Core) GetUser(ctx context.Context, userID string) (*User, error) {
	var (
		user                 User
		month                sql.NullString
		createdAt, updatedAt string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, plan, analysis_count, analysis_month, created_at, updated_at
		FROM users WHERE id = ?
	`, strings.TrimSpace(userID)).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.Plan,
		&user.AnalysisCount, &month, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(ErrCodeUserNotFound, "user not found")
	}
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "load user", err)
	}
	user.AnalysisMonth = month.String
	user.Plan = normalizePlan(user.Plan)
	if user.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, WrapError(ErrCodeDatabase, "parse user created_at", err)
	}
	if user.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, WrapError(ErrCodeDatabase, "parse user updated_at", err)
	}
	return &user, nil
}

// SetUserPlan changes a user's plan. Quota counters are left as they are.
func (c *Core) SetUserPlan(ctx context.Context, userID, plan string) (*User, error) {
	normalized := strings.ToLower(strings.TrimSpace(plan))
	if _, ok := validPlans[normalized]; !ok {
		return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("invalid plan: %s", plan))
	}
	res, err := c.db.ExecContext(ctx, `UPDATE users SET plan = ?, updated_at = ? WHERE id = ?`,
		normalized, formatTimestamp(c.now()), strings.TrimSpace(userID))
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "update plan", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, NewError(ErrCodeUserNotFound, "user not found")
	}
	return c.GetUser(ctx, userID)
}

// DeleteUser removes a user together with every trade they own.
func (c *Core) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE user_id = ?`, userID); err != nil {
			return WrapError(ErrCodeDatabase, "delete user trades", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return WrapError(ErrCodeDatabase, "delete user", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return NewError(ErrCodeUserNotFound, "user not found")
		}
		return nil
	})
}

// normalizePlan maps empty or unknown plans to free, matching how the quota
// ledger treats them.
func normalizePlan(plan string) string {
	normalized := strings.ToLower(strings.TrimSpace(plan))
	if _, ok := validPlans[normalized]; !ok {
		return PlanFree
	}
	return normalized
}
