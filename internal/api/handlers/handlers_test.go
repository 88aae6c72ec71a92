package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/Togather-Foundation/agenda/internal/api/middleware"
	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/audit"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/events"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testEnv = "test"

// testApp wires the real services over the in-memory store.
type testApp struct {
	store  *memory.Store
	users  *users.Service
	events *events.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenManager([]byte(strings.Repeat("s", 32)), auth.DefaultTokenTTL, "agenda-test")
	require.NoError(t, err)

	store := memory.New()
	auditLogger := audit.NewLoggerWithZerolog(zerolog.Nop())
	return &testApp{
		store:  store,
		users:  users.NewService(store, hasher, tokens, auditLogger, zerolog.Nop()),
		events: events.NewService(store, auditLogger, zerolog.Nop()),
	}
}

// seedUser registers an account and returns its id and a session token.
func (a *testApp) seedUser(t *testing.T, email, role string) (int64, string) {
	t.Helper()
	ctx := context.Background()
	var caller *auth.Principal
	if role == string(auth.RoleAdmin) {
		caller = &auth.Principal{UserID: 1_000_000, Email: "seed@x.com", Role: auth.RoleAdmin}
	}
	id, err := a.users.Register(ctx, users.NewUserParams{
		Email:    email,
		Password: "pw-" + email,
		FullName: "Name " + email,
		Position: "Clerk",
		Role:     role,
	}, caller)
	require.NoError(t, err)

	session, err := a.users.Login(ctx, email, "pw-"+email)
	require.NoError(t, err)
	return id, session.Token
}

// protect wraps h in the session middleware, as the router does.
func (a *testApp) protect(h http.Handler) http.Handler {
	return middleware.RequireSession(a.users, testEnv)(h)
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func rawRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withToken(req *http.Request, token string) *http.Request {
	req.Header.Set(auth.TokenHeader, token)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func decodeProblem(t *testing.T, res *httptest.ResponseRecorder) problem.ProblemDetails {
	t.Helper()
	return decodeBody[problem.ProblemDetails](t, res)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
