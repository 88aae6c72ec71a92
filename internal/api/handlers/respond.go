package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/metrics"
	"github.com/Togather-Foundation/agenda/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeError maps a service error onto a problem response. resource names
// the collection for 404 titles and denial metrics.
func writeError(w http.ResponseWriter, r *http.Request, err error, env, resource string) {
	var (
		maxErr     *http.MaxBytesError
		regErr     *users.RegistrationError
		validErr   auth.ValidationError
		conflict   *storage.ConflictError
		titleField map[string]any
	)

	switch {
	case errors.As(err, &maxErr):
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large", err, env)
	case errors.Is(err, errMalformedBody):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid JSON body", err, env)
	case errors.As(err, &regErr):
		if regErr.Field != "" {
			titleField = map[string]any{regErr.Field: "already registered"}
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, regErr.Error(), err, env, problem.WithErrors(titleField))
	case errors.As(err, &validErr):
		if validErr.Field != "" {
			titleField = map[string]any{validErr.Field: validErr.Message}
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, validErr.Error(), err, env, problem.WithErrors(titleField))
	case errors.Is(err, auth.ErrValidation):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env)
	case errors.Is(err, auth.ErrUnauthenticated):
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Unauthorized", err, env)
	case errors.Is(err, auth.ErrForbidden):
		metrics.AuthorizationDenialsTotal.WithLabelValues(resource).Inc()
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env)
	case errors.Is(err, storage.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, notFoundTitle(resource), err, env)
	case errors.As(err, &conflict):
		if conflict.Field != "" {
			titleField = map[string]any{conflict.Field: "already exists"}
		}
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, conflict.Error(), err, env, problem.WithErrors(titleField))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", err, env)
	}
}

func notFoundTitle(resource string) string {
	switch resource {
	case "events":
		return "Event not found"
	case "users":
		return "User not found"
	default:
		return "Not found"
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, env, allow string) {
	w.Header().Set("Allow", allow)
	problem.Write(w, r, http.StatusMethodNotAllowed, problem.TypeMethod, "Method not allowed", nil, env)
}

func unauthenticated(w http.ResponseWriter, r *http.Request, env string) {
	problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Unauthorized", nil, env)
}
