package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tradejournal/pkg/tradejournal"
)

// Options configures the HTTP API.
type Options struct {
	// Auth verifies bearer tokens. Required.
	Auth   *Authenticator
	Logger *slog.Logger
	// AllowedOrigins for CORS; empty allows any origin without credentials.
	AllowedOrigins []string
	// AnalyzePerMinute caps analysis requests per user.
	AnalyzePerMinute int
}

// NewRouter builds the HTTP API router.
func NewRouter(core *tradejournal.Core, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = core.Logger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(corsOptions(opts.AllowedOrigins)))

	h := &handler{core: core}
	analyzeLimiter := newUserRateLimiter(opts.AnalyzePerMinute)

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(opts.Auth.Middleware)

		// Caller profile and quota
		r.Post("/api/me", h.registerUser)
		r.Get("/api/me", h.getUser)
		r.Delete("/api/me", h.deleteUser)
		r.Get("/api/me/quota", h.getQuota)

		// Trades
		r.Get("/api/trades", h.listTrades)
		r.Post("/api/trades", h.addTrade)
		r.Get("/api/trades/{id}", h.getTrade)
		r.Delete("/api/trades/{id}", h.deleteTrade)
		r.Get("/api/trades/{id}/analysis", h.getTradeAnalysis)

		// Analysis
		r.With(analyzeLimiter.middleware).Post("/api/trades/{id}/analyze", h.analyzeTradeByPath)
		r.With(analyzeLimiter.middleware).Post("/api/analyze-trade", h.analyzeTrade)

		// Tools
		r.Get("/api/stats", h.getStats)
		r.Post("/api/position-size", h.positionSize)
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}
	if len(origins) > 0 {
		opts.AllowedOrigins = origins
		opts.AllowCredentials = true
	}
	return opts
}

type handler struct {
	core *tradejournal.Core
}
