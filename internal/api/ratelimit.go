package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"tradejournal/internal/logging"
)

const (
	errCodeRateLimited = "RATE_LIMITED"

	limiterIdleExpiry    = 30 * time.Minute
	limiterSweepInterval = 10 * time.Minute
	defaultAnalyzePerMin = 10
)

// userRateLimiter keeps one token bucket per user. Buckets for idle users
// expire from the cache.
type userRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *cache.Cache
}

func newUserRateLimiter(perMinute int) *userRateLimiter {
	if perMinute <= 0 {
		perMinute = defaultAnalyzePerMin
	}
	return &userRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: cache.New(limiterIdleExpiry, limiterSweepInterval),
	}
}

func (l *userRateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var limiter *rate.Limiter
	if cached, ok := l.limiters.Get(key); ok {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	// Refresh the expiry on every hit.
	l.limiters.SetDefault(key, limiter)
	return limiter.Allow()
}

func (l *userRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := UserIDFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.allow(key) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded", "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Code:      http.StatusTooManyRequests,
				Message:   "too many analysis requests",
				ErrorCode: errCodeRateLimited,
				RequestID: requestID(r),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
