package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/metrics"
	"github.com/rs/zerolog"
)

// InvalidTokenTitle is the only message a client sees for any token failure.
const InvalidTokenTitle = "Invalid or expired token"

// SessionVerifier resolves a session token to the current account.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (users.User, error)
}

// RequireSession validates the X-Auth-Token (or Bearer) header before the
// wrapped handler runs and stores the caller's Principal in the request
// context. Every token failure gets the same 401 body; the specific reason
// only reaches the log.
func RequireSession(verifier SessionVerifier, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", errors.New("session verifier not configured"), env)
				return
			}

			token, err := auth.TokenFromRequest(r)
			if err != nil {
				rejectSession(w, r, err, env)
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					rejectSession(w, r, err, env)
					return
				}
				metrics.TokenVerificationsTotal.WithLabelValues("error").Inc()
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", err, env)
				return
			}
			metrics.TokenVerificationsTotal.WithLabelValues("valid").Inc()

			principal := user.Principal()
			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			logger := zerolog.Ctx(ctx).With().Int64("user_id", principal.UserID).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectSession(w http.ResponseWriter, r *http.Request, err error, env string) {
	metrics.TokenVerificationsTotal.WithLabelValues("rejected").Inc()
	// Log the reason but never echo it, even in development.
	problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, InvalidTokenTitle, err, env,
		problem.WithDetail(InvalidTokenTitle))
}

// PrincipalFromRequest returns the caller stored by RequireSession.
func PrincipalFromRequest(r *http.Request) (auth.Principal, bool) {
	if r == nil {
		return auth.Principal{}, false
	}
	return auth.PrincipalFromContext(r.Context())
}
