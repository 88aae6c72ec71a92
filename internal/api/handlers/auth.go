package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/agenda/internal/api/middleware"
	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/metrics"
	"github.com/rs/zerolog"
)

// AuthService is the part of users.Service the auth endpoint needs.
type AuthService interface {
	Login(ctx context.Context, identifier, password string) (users.Session, error)
	Verify(ctx context.Context, token string) (users.User, error)
	Register(ctx context.Context, params users.NewUserParams, caller *auth.Principal) (int64, error)
}

// LoginLimiter throttles login attempts per client.
type LoginLimiter interface {
	AllowLogin(r *http.Request) bool
	RetryAfter(tier middleware.RateLimitTier) string
}

// AuthHandler serves the action-dispatched auth endpoint: a POST whose body
// names login, verify or register.
type AuthHandler struct {
	Service AuthService
	Limiter LoginLimiter
	Env     string
}

func NewAuthHandler(service AuthService, limiter LoginLimiter, env string) *AuthHandler {
	return &AuthHandler{Service: service, Limiter: limiter, Env: env}
}

type authRequest struct {
	Action   string `json:"action"`
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Position string `json:"position"`
	Role     string `json:"role"`
}

type loginFields struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerFields struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      userResponse `json:"user"`
}

type verifyResponse struct {
	User userResponse `json:"user"`
}

type registerResponse struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

// Dispatch routes POST /api/v1/auth by the "action" field.
func (h *AuthHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", errors.New("auth service not configured"), "")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.Env, "POST, OPTIONS")
		return
	}

	var req authRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env, "auth")
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "login":
		h.login(w, r, req)
	case "verify":
		h.verify(w, r)
	case "register":
		h.register(w, r, req)
	default:
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid action", nil, h.Env,
			problem.WithErrors(map[string]any{"action": "must be one of: login verify register"}))
	}
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, req authRequest) {
	if h.Limiter != nil && !h.Limiter.AllowLogin(r) {
		metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", h.Limiter.RetryAfter(middleware.TierLogin))
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many login attempts", nil, h.Env)
		return
	}

	identifier := req.Login
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}
	if err := validateRequest(loginFields{Login: strings.TrimSpace(identifier), Password: req.Password}); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_request").Inc()
		writeError(w, r, err, h.Env, "auth")
		return
	}

	session, err := h.Service.Login(r.Context(), identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Invalid credentials", err, h.Env,
				problem.WithDetail("Invalid credentials"))
		case errors.Is(err, auth.ErrValidation):
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_request").Inc()
			writeError(w, r, err, h.Env, "auth")
		default:
			metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
			writeError(w, r, err, h.Env, "auth")
		}
		return
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserResponse(session.User),
	})
}

func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		h.rejectToken(w, r, err)
		return
	}

	user, err := h.Service.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			h.rejectToken(w, r, err)
			return
		}
		metrics.TokenVerificationsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err, h.Env, "auth")
		return
	}

	metrics.TokenVerificationsTotal.WithLabelValues("valid").Inc()
	writeJSON(w, http.StatusOK, verifyResponse{User: toUserResponse(user)})
}

func (h *AuthHandler) rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	metrics.TokenVerificationsTotal.WithLabelValues("rejected").Inc()
	problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, middleware.InvalidTokenTitle, err, h.Env,
		problem.WithDetail(middleware.InvalidTokenTitle))
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request, req authRequest) {
	fields := registerFields{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
		Role:     strings.TrimSpace(req.Role),
	}
	if err := validateRequest(fields); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid_request").Inc()
		writeError(w, r, err, h.Env, "users")
		return
	}

	caller, err := h.optionalCaller(r)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err, h.Env, "users")
		return
	}

	id, err := h.Service.Register(r.Context(), users.NewUserParams{
		Login:    req.Login,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Position: req.Position,
		Role:     req.Role,
	}, caller)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationResult(err)).Inc()
		writeError(w, r, err, h.Env, "users")
		return
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusCreated, registerResponse{UserID: id, Message: "User created successfully"})
}

// optionalCaller resolves the token on a register request, if any. A missing
// or rejected token registers anonymously.
func (h *AuthHandler) optionalCaller(r *http.Request) (*auth.Principal, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return nil, nil
	}
	user, err := h.Service.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("register: ignoring rejected token")
			return nil, nil
		}
		return nil, err
	}
	principal := user.Principal()
	return &principal, nil
}

func registrationResult(err error) string {
	var regErr *users.RegistrationError
	switch {
	case errors.As(err, &regErr):
		return "duplicate"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, auth.ErrValidation):
		return "invalid_request"
	default:
		return "error"
	}
}
