package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tradejournal/internal/logging"
	"tradejournal/pkg/tradejournal"
)

const defaultTokenTTL = 24 * time.Hour

var errMissingSubject = errors.New("token has no subject")

type userIDContextKey struct{}

// Authenticator issues and verifies HS256 bearer tokens whose subject is the
// caller's user id.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator signing with secret. A zero ttl
// uses one day.
func NewAuthenticator(secret []byte, ttl time.Duration) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{secret: secret, ttl: ttl, now: time.Now}, nil
}

// IssueToken mints a token for userID.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errMissingSubject
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies token and returns its subject.
func (a *Authenticator) ParseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeErrorResponse(w, r, tradejournal.NewError(tradejournal.ErrCodeUnauthenticated, "bearer token required"))
			return
		}
		userID, err := a.ParseToken(strings.TrimSpace(token))
		if err != nil {
			logging.FromContext(r.Context()).Debug("token rejected", "path", r.URL.Path, "err", err)
			writeErrorResponse(w, r, tradejournal.NewError(tradejournal.ErrCodeUnauthenticated, "invalid or expired token"))
			return
		}

		if lw, ok := w.(interface{ SetUserID(string) }); ok {
			lw.SetUserID(userID)
		}
		ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated caller, or "" outside the
// auth middleware.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey{}).(string)
	return userID
}
