package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Togather-Foundation/agenda/internal/api/middleware"
	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
)

// UserService is the account management surface of users.Service.
type UserService interface {
	List(ctx context.Context, caller auth.Principal) ([]users.User, error)
	Get(ctx context.Context, caller auth.Principal, id int64) (users.User, error)
	Create(ctx context.Context, caller auth.Principal, params users.NewUserParams) (int64, error)
	Update(ctx context.Context, caller auth.Principal, id int64, params users.UpdateParams) (users.User, error)
	Delete(ctx context.Context, caller auth.Principal, id int64) error
}

type UsersHandler struct {
	Service UserService
	Env     string
}

func NewUsersHandler(service UserService, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

type userResponse struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Login     *string `json:"login,omitempty"`
	FullName  string  `json:"full_name"`
	Position  string  `json:"position"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"created_at,omitempty"`
}

func toUserResponse(u users.User) userResponse {
	resp := userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Login:    u.Login,
		FullName: u.FullName,
		Position: u.Position,
		Role:     u.Role.String(),
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type listUsersResponse struct {
	Users []userResponse `json:"users"`
}

type createUserRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Position string `json:"position"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

type updateUserRequest struct {
	ID       flexID  `json:"id" validate:"gt=0"`
	Login    *string `json:"login"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	FullName *string `json:"full_name"`
	Position *string `json:"position"`
	Role     *string `json:"role"`
}

type createdResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type updatedUserResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// ServeHTTP handles /api/v1/users. GET lists or, with ?id=, fetches one
// account; PUT carries the id in the body; DELETE takes ?id=.
func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", errors.New("user service not configured"), "")
		return
	}
	caller, ok := middleware.PrincipalFromRequest(r)
	if !ok {
		unauthenticated(w, r, h.Env)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			h.get(w, r, caller)
			return
		}
		h.list(w, r, caller)
	case http.MethodPost:
		h.create(w, r, caller)
	case http.MethodPut:
		h.update(w, r, caller)
	case http.MethodDelete:
		h.delete(w, r, caller)
	default:
		methodNotAllowed(w, r, h.Env, "GET, POST, PUT, DELETE, OPTIONS")
	}
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	list, err := h.Service.List(r.Context(), caller)
	if err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	resp := listUsersResponse{Users: make([]userResponse, 0, len(list))}
	for _, u := range list {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *UsersHandler) get(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	user, err := h.Service.Get(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UsersHandler) create(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	// Role is checked before field validation so a non-admin always gets 403.
	if !caller.IsAdmin() {
		writeError(w, r, auth.Require(caller.Role, auth.OpCreateUser), h.Env, "users")
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}

	id, err := h.Service.Create(r.Context(), caller, users.NewUserParams{
		Login:    req.Login,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Position: req.Position,
		Role:     req.Role,
	})
	if err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id, Message: "User created"})
}

func (h *UsersHandler) update(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}

	user, err := h.Service.Update(r.Context(), caller, int64(req.ID), users.UpdateParams{
		Login:    req.Login,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Position: req.Position,
		Role:     req.Role,
	})
	if err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	writeJSON(w, http.StatusOK, updatedUserResponse{Message: "User updated", User: toUserResponse(user)})
}

func (h *UsersHandler) delete(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	if err := h.Service.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, err, h.Env, "users")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User deleted"})
}
