package tradejournal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

// setupTestDB opens a Core on a temporary database. The database is removed
// when the test ends.
func setupTestDB(t *testing.T) *Core {
	t.Helper()
	return setupTestDBWithOptions(t, Options{})
}

func setupTestDBWithOptions(t *testing.T, opts Options) *Core {
	t.Helper()

	opts.DBPath = filepath.Join(t.TempDir(), "test.db")
	if opts.Logger == nil {
		opts.Logger = setupDiscardLogger()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	core, err := OpenWithOptions(opts)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { core.Close() })
	return core
}

func setupDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testUser registers a user on the given plan.
func testUser(t *testing.T, core *Core, userID, plan string) {
	t.Helper()
	if _, err := core.EnsureUser(context.Background(), UserProfile{ID: userID, Email: userID + "@example.com"}); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	if plan != "" && plan != PlanFree {
		if _, err := core.SetUserPlan(context.Background(), userID, plan); err != nil {
			t.Fatalf("failed to set plan: %v", err)
		}
	}
}

// setQuotaRow writes quota counters directly.
func setQuotaRow(t *testing.T, core *Core, userID string, count int, month string) {
	t.Helper()
	var m any
	if month != "" {
		m = month
	}
	if _, err := core.db.Exec(`UPDATE users SET analysis_count = ?, analysis_month = ? WHERE id = ?`, count, m, userID); err != nil {
		t.Fatalf("failed to set quota: %v", err)
	}
}

// testTrade adds the AAPL long trade used across analysis tests.
func testTrade(t *testing.T, core *Core, userID string) *Trade {
	t.Helper()
	pct := 5.0
	trade, err := core.AddTrade(context.Background(), userID, TradeInput{
		Symbol:     "AAPL",
		Side:       SideLong,
		EntryPrice: AmountPtr(100),
		ExitPrice:  AmountPtr(105),
		Qty:        AmountPtr(10),
		PnL:        AmountPtr(50),
		PnLPercent: &pct,
		Notes:      "felt rushed",
	})
	if err != nil {
		t.Fatalf("failed to create test trade: %v", err)
	}
	return trade
}

// scriptedProvider replays canned responses in order and records prompts.
// The last response repeats once the script is exhausted.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	prompts   []CompletionRequest
}

type scriptedResponse struct {
	text string
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, req)
	idx := min(p.calls, len(p.responses)-1)
	p.calls++
	r := p.responses[idx]
	return r.text, r.err
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
