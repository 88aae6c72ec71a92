package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const testIssuer = "agenda-test"

// tokenVerifier checks the signature and claims only; account lookup is
// covered by the users service tests.
type tokenVerifier struct {
	manager *auth.TokenManager
}

func (v tokenVerifier) Verify(_ context.Context, token string) (users.User, error) {
	claims, err := v.manager.Validate(token)
	if err != nil {
		return users.User{}, err
	}
	return users.User{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

type failingVerifier struct{ err error }

func (v failingVerifier) Verify(context.Context, string) (users.User, error) {
	return users.User{}, v.err
}

func newTestManager(t *testing.T) *auth.TokenManager {
	t.Helper()
	manager, err := auth.NewTokenManager(testSecret, auth.DefaultTokenTTL, testIssuer)
	require.NoError(t, err)
	return manager
}

func signedToken(t *testing.T, issuedAt, expiresAt time.Time) string {
	t.Helper()
	claims := auth.Claims{
		UserID: 7,
		Email:  "user@example.com",
		Role:   auth.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(7),
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func protected(t *testing.T, verifier SessionVerifier) (http.Handler, *auth.Principal) {
	t.Helper()
	seen := &auth.Principal{}
	handler := RequireSession(verifier, "development")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromRequest(r)
		require.True(t, ok)
		*seen = principal
		w.WriteHeader(http.StatusOK)
	}))
	return handler, seen
}

func TestRequireSession_ValidToken(t *testing.T) {
	manager := newTestManager(t)
	token, _, err := manager.Issue(7, "user@example.com", auth.RoleUser)
	require.NoError(t, err)

	handler, seen := protected(t, tokenVerifier{manager: manager})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set(auth.TokenHeader, token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), seen.UserID)
	assert.Equal(t, auth.RoleUser, seen.Role)
}

func TestRequireSession_BearerFallback(t *testing.T) {
	manager := newTestManager(t)
	token, _, err := manager.Issue(7, "user@example.com", auth.RoleUser)
	require.NoError(t, err)

	handler, _ := protected(t, tokenVerifier{manager: manager})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireSession_RejectionsAreIndistinguishable(t *testing.T) {
	manager := newTestManager(t)
	now := time.Now()
	valid, _, err := manager.Issue(7, "user@example.com", auth.RoleUser)
	require.NoError(t, err)

	otherManager, err := auth.NewTokenManager([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, testIssuer)
	require.NoError(t, err)
	foreign, _, err := otherManager.Issue(7, "user@example.com", auth.RoleUser)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "expired", token: signedToken(t, now.Add(-8*24*time.Hour), now.Add(-time.Hour))},
		{name: "garbage", token: "not-a-token"},
		{name: "tampered", token: valid[:len(valid)-2] + flip(valid[len(valid)-2:])},
		{name: "wrong key", token: foreign},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := protected(t, tokenVerifier{manager: manager})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
			if tt.token != "" {
				req.Header.Set(auth.TokenHeader, tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			var body problem.ProblemDetails
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, InvalidTokenTitle, body.Error)
			assert.Equal(t, InvalidTokenTitle, body.Detail)
			bodies = append(bodies, body.Title+"|"+body.Detail+"|"+body.Type)
		})
	}

	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestRequireSession_StoreFailureIs500(t *testing.T) {
	cause := storage.Unavailable("find user", errors.New("connection refused"))
	handler, _ := protected(t, failingVerifier{err: cause})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set(auth.TokenHeader, "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestRequireSession_StaleAccountIs401(t *testing.T) {
	handler, _ := protected(t, failingVerifier{err: auth.ErrTokenStale})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set(auth.TokenHeader, "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// flip changes the final signature characters so the token still parses.
func flip(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c == 'A' {
			out[i] = 'B'
		} else {
			out[i] = 'A'
		}
	}
	return string(out)
}
