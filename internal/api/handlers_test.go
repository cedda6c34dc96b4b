package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tradejournal/pkg/tradejournal"
)

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type stubProvider struct {
	text string
	err  error
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Complete(context.Context, tradejournal.CompletionRequest) (string, error) {
	return p.text, p.err
}

type testEnv struct {
	router http.Handler
	core   *tradejournal.Core
	auth   *Authenticator
}

// setupTestRouter creates a router over a temporary database. A nil provider
// uses the built-in placeholder.
func setupTestRouter(t *testing.T, provider tradejournal.ModelProvider, opts Options) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if provider == nil {
		var err error
		provider, err = tradejournal.NewModelProvider(tradejournal.ProviderConfig{Provider: "placeholder"})
		if err != nil {
			t.Fatalf("placeholder provider: %v", err)
		}
	}
	core, err := tradejournal.OpenWithOptions(tradejournal.Options{
		DBPath:     filepath.Join(t.TempDir(), "test.db"),
		Logger:     logger,
		Provider:   provider,
		RetryDelay: time.Millisecond,
		Now:        func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { core.Close() })

	auth, err := NewAuthenticator([]byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	opts.Auth = auth
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &testEnv{router: NewRouter(core, opts), core: core, auth: auth}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.auth.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

// register creates userID through the API and returns its bearer token.
func (e *testEnv) register(t *testing.T, userID string) string {
	t.Helper()
	token := e.token(t, userID)
	rr := doRequest(e.router, http.MethodPost, "/api/me", token, map[string]string{"email": userID + "@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("register %s: status %d body %s", userID, rr.Code, rr.Body.String())
	}
	return token
}

func (e *testEnv) addTrade(t *testing.T, token string, body map[string]any) string {
	t.Helper()
	rr := doRequest(e.router, http.MethodPost, "/api/trades", token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add trade: status %d body %s", rr.Code, rr.Body.String())
	}
	return parseJSON(rr)["id"].(string)
}

// doRequest performs a request and returns the response.
func doRequest(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// parseJSON parses the response body into a map.
func parseJSON(rr *httptest.ResponseRecorder) map[string]any {
	var result map[string]any
	_ = json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&result)
	return result
}

var aaplTrade = map[string]any{
	"symbol":      "AAPL",
	"side":        "long",
	"entry_price": 150,
	"exit_price":  155,
	"stop_loss":   145,
	"qty":         10,
	"notes":       "Good entry",
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	rr := doRequest(env.router, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	result := parseJSON(rr)
	if result["status"] != "ok" || result["provider"] != "placeholder" {
		t.Fatalf("unexpected health body: %v", result)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(env.router, http.MethodPost, "/api/trades/t1/analyze", tc.token, nil)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if got := parseJSON(rr)["error_code"]; got != string(tradejournal.ErrCodeUnauthenticated) {
				t.Fatalf("expected UNAUTHENTICATED, got %v", got)
			}
		})
	}
}

func TestUserProfileAndQuota(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	token := env.token(t, "u1")

	rr := doRequest(env.router, http.MethodGet, "/api/me", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before registration, got %d", rr.Code)
	}

	rr = doRequest(env.router, http.MethodPost, "/api/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("register with empty body: %d %s", rr.Code, rr.Body.String())
	}
	if plan := parseJSON(rr)["plan"]; plan != "free" {
		t.Fatalf("expected plan free, got %v", plan)
	}

	rr = doRequest(env.router, http.MethodGet, "/api/me/quota", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("quota: %d", rr.Code)
	}
	quota := parseJSON(rr)
	if quota["unlimited"] != false || quota["remaining"] != float64(tradejournal.FreeMonthlyAnalysisLimit) {
		t.Fatalf("unexpected free quota: %s", rr.Body.String())
	}

	rr = doRequest(env.router, http.MethodDelete, "/api/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete me: %d", rr.Code)
	}
	rr = doRequest(env.router, http.MethodGet, "/api/me", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestCallerCannotChangeOwnPlan(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	token := env.register(t, "u1")
	id := env.addTrade(t, token, aaplTrade)

	err := env.core.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE users SET analysis_count = 50, analysis_month = ? WHERE id = ?`,
			tradejournal.MonthToken(testNow), "u1")
		return err
	})
	if err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	attempts := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPut, "/api/me/plan", map[string]string{"plan": "elite"}},
		{http.MethodPost, "/api/me/plan", map[string]string{"plan": "elite"}},
		{http.MethodPost, "/api/me", map[string]string{"plan": "elite"}},
	}
	for _, a := range attempts {
		rr := doRequest(env.router, a.method, a.path, token, a.body)
		if rr.Code < 400 {
			t.Fatalf("%s %s: expected rejection, got %d %s", a.method, a.path, rr.Code, rr.Body.String())
		}
	}

	rr := doRequest(env.router, http.MethodPost, "/api/trades/"+id+"/analyze", token, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected cap to hold, got %d %s", rr.Code, rr.Body.String())
	}

	user, err := env.core.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Plan != "free" || user.AnalysisCount != 50 {
		t.Fatalf("expected free plan at 50, got plan=%s count=%d", user.Plan, user.AnalysisCount)
	}
}

func TestTradeCRUD(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	token := env.register(t, "u1")
	other := env.register(t, "u2")

	id := env.addTrade(t, token, aaplTrade)

	rr := doRequest(env.router, http.MethodGet, "/api/trades/"+id, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get trade: %d", rr.Code)
	}
	trade := parseJSON(rr)
	if trade["pnl"] != float64(50) || trade["symbol"] != "AAPL" {
		t.Fatalf("unexpected trade: %v", trade)
	}

	rr = doRequest(env.router, http.MethodGet, "/api/trades/"+id, other, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other user must not see trade, got %d", rr.Code)
	}

	rr = doRequest(env.router, http.MethodGet, "/api/trades?limit=5", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list trades: %d", rr.Code)
	}
	list := parseJSON(rr)
	if items := list["items"].([]any); len(items) != 1 || list["limit"] != float64(5) {
		t.Fatalf("unexpected list: %v", list)
	}

	rr = doRequest(env.router, http.MethodPost, "/api/trades", token, map[string]any{"symbol": "X", "side": "up"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad side, got %d", rr.Code)
	}
	rr = doRequest(env.router, http.MethodPost, "/api/trades", token, map[string]any{"symbol": "X", "side": "long", "colour": "red"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}

	rr = doRequest(env.router, http.MethodDelete, "/api/trades/"+id, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete trade: %d", rr.Code)
	}
	rr = doRequest(env.router, http.MethodDelete, "/api/trades/"+id, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rr.Code)
	}
}

func TestAnalyzeTradeSuccess(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	token := env.register(t, "u1")
	id := env.addTrade(t, token, aaplTrade)

	rr := doRequest(env.router, http.MethodPost, "/api/trades/"+id+"/analyze", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze: %d %s", rr.Code, rr.Body.String())
	}
	result := parseJSON(rr)
	if result["success"] != true {
		t.Fatalf("expected success, got %v", result)
	}
	analysis := result["analysis"].(map[string]any)
	if analysis["qualityScore"] != float64(65) {
		t.Fatalf("unexpected analysis: %v", analysis)
	}
	quota := result["quota"].(map[string]any)
	if quota["analysisCount"] != float64(1) || quota["analysisMonth"] != "2026-03" {
		t.Fatalf("unexpected quota: %v", quota)
	}

	rr = doRequest(env.router, http.MethodGet, "/api/trades/"+id+"/analysis", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get analysis: %d", rr.Code)
	}
	stored := parseJSON(rr)
	if stored["degraded"] != false || stored["analysis"] == nil {
		t.Fatalf("unexpected stored analysis: %v", stored)
	}

	rr = doRequest(env.router, http.MethodPost, "/api/analyze-trade", token, map[string]string{"trade_id": id})
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze-trade: %d %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(env.router, http.MethodPost, "/api/analyze-trade", token, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without body, got %d", rr.Code)
	}
}

func TestAnalyzeTradeDegraded(t *testing.T) {
	env := setupTestRouter(t, stubProvider{text: "I cannot help with that."}, Options{})
	token := env.register(t, "u1")
	id := env.addTrade(t, token, aaplTrade)

	rr := doRequest(env.router, http.MethodPost, "/api/trades/"+id+"/analyze", token, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %s", rr.Code, rr.Body.String())
	}
	body := parseJSON(rr)
	if body["error_code"] != string(tradejournal.ErrCodeAnalysisDegraded) {
		t.Fatalf("unexpected error code: %v", body["error_code"])
	}
	data := body["data"].(map[string]any)
	analysis := data["analysis"].(map[string]any)
	if analysis["errorRaw"] != "I cannot help with that." || analysis["qualityScore"] != float64(0) {
		t.Fatalf("unexpected degraded analysis: %v", analysis)
	}
	if data["attempts"] != float64(3) {
		t.Fatalf("expected 3 attempts, got %v", data["attempts"])
	}

	rr = doRequest(env.router, http.MethodGet, "/api/trades/"+id+"/analysis", token, nil)
	if parseJSON(rr)["degraded"] != true {
		t.Fatalf("expected stored degraded analysis, got %s", rr.Body.String())
	}
}

func TestAnalyzeTradeQuotaExceeded(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	token := env.register(t, "u1")
	id := env.addTrade(t, token, aaplTrade)

	err := env.core.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE users SET analysis_count = 50, analysis_month = ? WHERE id = ?`,
			tradejournal.MonthToken(testNow), "u1")
		return err
	})
	if err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	rr := doRequest(env.router, http.MethodPost, "/api/trades/"+id+"/analyze", token, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", rr.Code, rr.Body.String())
	}
	body := parseJSON(rr)
	if body["error_code"] != string(tradejournal.ErrCodeQuotaExceeded) {
		t.Fatalf("unexpected error code: %v", body["error_code"])
	}
	data := body["data"].(map[string]any)
	if data["limit"] != float64(50) || data["used"] != float64(50) || data["month"] != "2026-03" {
		t.Fatalf("unexpected quota data: %v", data)
	}
	if data["reset_at"] != "2026-04-01T00:00:00Z" {
		t.Fatalf("unexpected reset_at: %v", data["reset_at"])
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	env := setupTestRouter(t, nil, Options{AnalyzePerMinute: 1})
	token := env.register(t, "u1")
	id := env.addTrade(t, token, aaplTrade)

	rr := doRequest(env.router, http.MethodPost, "/api/trades/"+id+"/analyze", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("first analyze: %d", rr.Code)
	}
	rr = doRequest(env.router, http.MethodPost, "/api/trades/"+id+"/analyze", token, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if parseJSON(rr)["error_code"] != errCodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %s", rr.Body.String())
	}

	// Limits are per user.
	other := env.register(t, "u2")
	rr = doRequest(env.router, http.MethodPost, "/api/trades/missing/analyze", other, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other user, got %d", rr.Code)
	}
}

func TestStatsAndPositionSize(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	token := env.register(t, "u1")
	env.addTrade(t, token, aaplTrade)

	rr := doRequest(env.router, http.MethodGet, "/api/stats", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats: %d", rr.Code)
	}
	stats := parseJSON(rr)
	if stats["total_trades"] != float64(1) || stats["win_rate"] != float64(100) {
		t.Fatalf("unexpected stats: %v", stats)
	}

	rr = doRequest(env.router, http.MethodPost, "/api/position-size", token, map[string]any{
		"capital": 10000, "entry_price": 50, "stop_loss": 48, "risk_percent": 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("position size: %d %s", rr.Code, rr.Body.String())
	}
	if units := parseJSON(rr)["units"]; units != float64(100) {
		t.Fatalf("expected 100 units, got %v", units)
	}

	rr = doRequest(env.router, http.MethodPost, "/api/position-size", token, map[string]any{
		"capital": 10000, "entry_price": 50, "stop_loss": 48, "risk_percent": 120,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestNormalizeLimitOffset(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{limit: 0, offset: -3, wantLimit: defaultPageLimit, wantOffset: 0},
		{limit: 10, offset: 20, wantLimit: 10, wantOffset: 20},
		{limit: 10000, offset: 0, wantLimit: maxPageLimit, wantOffset: 0},
	}
	for _, tc := range tests {
		limit, offset := normalizeLimitOffset(tc.limit, tc.offset)
		if limit != tc.wantLimit || offset != tc.wantOffset {
			t.Errorf("normalizeLimitOffset(%d, %d) = %d, %d", tc.limit, tc.offset, limit, offset)
		}
	}
}
