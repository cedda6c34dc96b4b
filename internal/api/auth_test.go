package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_RoundTrip(t *testing.T) {
	auth, err := NewAuthenticator([]byte("secret"), time.Hour)
	require.NoError(t, err)

	token, err := auth.IssueToken(" user-42 ")
	require.NoError(t, err)

	userID, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestAuthenticator_Rejects(t *testing.T) {
	auth, err := NewAuthenticator([]byte("secret"), time.Hour)
	require.NoError(t, err)
	other, err := NewAuthenticator([]byte("another-secret"), time.Hour)
	require.NoError(t, err)

	foreign, err := other.IssueToken("u1")
	require.NoError(t, err)

	expiring, err := auth.IssueToken("u1")
	require.NoError(t, err)
	later := &Authenticator{secret: auth.secret, ttl: auth.ttl, now: func() time.Time { return time.Now().Add(2 * time.Hour) }}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		auth  *Authenticator
		token string
	}{
		{name: "wrong secret", auth: auth, token: foreign},
		{name: "expired", auth: later, token: expiring},
		{name: "alg none", auth: auth, token: unsigned},
		{name: "no subject", auth: auth, token: noSubject},
		{name: "no expiry", auth: auth, token: noExpiry},
		{name: "garbage", auth: auth, token: "a.b.c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.auth.ParseToken(tc.token)
			assert.Error(t, err)
		})
	}
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(nil, 0)
	assert.Error(t, err)

	auth, err := NewAuthenticator([]byte("s"), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTokenTTL, auth.ttl)

	_, err = auth.IssueToken("  ")
	assert.ErrorIs(t, err, errMissingSubject)
}

func TestAuthMiddleware_SetsUserID(t *testing.T) {
	auth, err := NewAuthenticator([]byte("secret"), time.Hour)
	require.NoError(t, err)
	token, err := auth.IssueToken("u7")
	require.NoError(t, err)

	var seen string
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "u7", seen)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
