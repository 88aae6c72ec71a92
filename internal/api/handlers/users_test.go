package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserService is a testify mock of UserService.
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) List(ctx context.Context, caller auth.Principal) ([]users.User, error) {
	args := m.Called(ctx, caller)
	list, _ := args.Get(0).([]users.User)
	return list, args.Error(1)
}

func (m *MockUserService) Get(ctx context.Context, caller auth.Principal, id int64) (users.User, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(users.User), args.Error(1)
}

func (m *MockUserService) Create(ctx context.Context, caller auth.Principal, params users.NewUserParams) (int64, error) {
	args := m.Called(ctx, caller, params)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserService) Update(ctx context.Context, caller auth.Principal, id int64, params users.UpdateParams) (users.User, error) {
	args := m.Called(ctx, caller, id, params)
	return args.Get(0).(users.User), args.Error(1)
}

func (m *MockUserService) Delete(ctx context.Context, caller auth.Principal, id int64) error {
	args := m.Called(ctx, caller, id)
	return args.Error(0)
}

func newUsersEndpoint(t *testing.T) (*testApp, http.Handler) {
	t.Helper()
	app := newTestApp(t)
	return app, app.protect(NewUsersHandler(app.users, testEnv))
}

func TestUsers_RequiresSession(t *testing.T) {
	_, h := newUsersEndpoint(t)

	res := serve(h, jsonRequest(t, http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestUsers_List(t *testing.T) {
	app, h := newUsersEndpoint(t)
	app.seedUser(t, "u@x.com", "user")
	_, adminToken := app.seedUser(t, "admin@x.com", "admin")

	res := serve(h, withToken(jsonRequest(t, http.MethodGet, "/api/v1/users", nil), adminToken))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	body := decodeBody[listUsersResponse](t, res)
	require.Len(t, body.Users, 2)
	assert.Equal(t, "admin", body.Users[0].Role, "admins are listed first")
	assert.NotContains(t, res.Body.String(), "password")
}

func TestUsers_GetByID(t *testing.T) {
	app, h := newUsersEndpoint(t)
	userID, token := app.seedUser(t, "u@x.com", "user")

	res := serve(h, withToken(jsonRequest(t, http.MethodGet, "/api/v1/users?id="+itoa(userID), nil), token))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "u@x.com", decodeBody[userResponse](t, res).Email)

	res = serve(h, withToken(jsonRequest(t, http.MethodGet, "/api/v1/users?id=9999", nil), token))
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "User not found", decodeProblem(t, res).Error)

	res = serve(h, withToken(jsonRequest(t, http.MethodGet, "/api/v1/users?id=abc", nil), token))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUsers_CreateRequiresAdmin(t *testing.T) {
	app, h := newUsersEndpoint(t)
	_, userToken := app.seedUser(t, "u@x.com", "user")
	_, adminToken := app.seedUser(t, "admin@x.com", "admin")

	body := map[string]any{"email": "new@x.com", "password": "pw", "full_name": "New Person", "login": "newbie"}

	res := serve(h, withToken(jsonRequest(t, http.MethodPost, "/api/v1/users", body), userToken))
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = serve(h, withToken(jsonRequest(t, http.MethodPost, "/api/v1/users", body), adminToken))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[createdResponse](t, res)
	assert.Equal(t, "User created", created.Message)

	// Same email again is a conflict on the admin path.
	res = serve(h, withToken(jsonRequest(t, http.MethodPost, "/api/v1/users", body), adminToken))
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "already exists", decodeProblem(t, res).Errors["email"])
}

func TestUsers_DeleteNeedsAdmin(t *testing.T) {
	app, h := newUsersEndpoint(t)
	targetID, userToken := app.seedUser(t, "u@x.com", "user")
	_, adminToken := app.seedUser(t, "admin@x.com", "admin")

	res := serve(h, withToken(jsonRequest(t, http.MethodDelete, "/api/v1/users?id="+itoa(targetID), nil), userToken))
	require.Equal(t, http.StatusForbidden, res.Code)

	_, err := app.store.Users().FindByID(context.Background(), targetID)
	require.NoError(t, err, "denied delete must leave the row")

	res = serve(h, withToken(jsonRequest(t, http.MethodDelete, "/api/v1/users?id="+itoa(targetID), nil), adminToken))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "User deleted", decodeBody[messageResponse](t, res).Message)

	_, err = app.store.Users().FindByID(context.Background(), targetID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The deleted user's token no longer authenticates.
	res = serve(h, withToken(jsonRequest(t, http.MethodGet, "/api/v1/users", nil), userToken))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestUsers_AdminCannotDeleteSelf(t *testing.T) {
	app, h := newUsersEndpoint(t)
	adminID, adminToken := app.seedUser(t, "admin@x.com", "admin")

	res := serve(h, withToken(jsonRequest(t, http.MethodDelete, "/api/v1/users?id="+itoa(adminID), nil), adminToken))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUsers_Update(t *testing.T) {
	app, h := newUsersEndpoint(t)
	userID, userToken := app.seedUser(t, "u@x.com", "user")
	otherID, _ := app.seedUser(t, "other@x.com", "user")
	adminID, adminToken := app.seedUser(t, "admin@x.com", "admin")

	t.Run("self profile with string id", func(t *testing.T) {
		res := serve(h, withToken(jsonRequest(t, http.MethodPut, "/api/v1/users", map[string]any{
			"id": itoa(userID), "full_name": "Renamed", "position": "Judge",
		}), userToken))
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		body := decodeBody[updatedUserResponse](t, res)
		assert.Equal(t, "Renamed", body.User.FullName)
		assert.Equal(t, "Judge", body.User.Position)
	})

	t.Run("self role change is forbidden", func(t *testing.T) {
		res := serve(h, withToken(jsonRequest(t, http.MethodPut, "/api/v1/users", map[string]any{
			"id": userID, "role": "admin",
		}), userToken))
		assert.Equal(t, http.StatusForbidden, res.Code)
	})

	t.Run("other account is forbidden", func(t *testing.T) {
		res := serve(h, withToken(jsonRequest(t, http.MethodPut, "/api/v1/users", map[string]any{
			"id": otherID, "full_name": "Hijack",
		}), userToken))
		assert.Equal(t, http.StatusForbidden, res.Code)
	})

	t.Run("admin promotes", func(t *testing.T) {
		res := serve(h, withToken(jsonRequest(t, http.MethodPut, "/api/v1/users", map[string]any{
			"id": otherID, "role": "admin",
		}), adminToken))
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		assert.Equal(t, "admin", decodeBody[updatedUserResponse](t, res).User.Role)
	})

	t.Run("admin cannot demote self", func(t *testing.T) {
		res := serve(h, withToken(jsonRequest(t, http.MethodPut, "/api/v1/users", map[string]any{
			"id": adminID, "role": "user",
		}), adminToken))
		require.Equal(t, http.StatusBadRequest, res.Code, res.Body.String())
		assert.Contains(t, decodeProblem(t, res).Errors, "role")

		res = serve(h, withToken(jsonRequest(t, http.MethodGet, "/api/v1/users?id="+itoa(adminID), nil), adminToken))
		require.Equal(t, http.StatusOK, res.Code, "admin session must survive")
		assert.Equal(t, "admin", decodeBody[userResponse](t, res).Role)
	})

	t.Run("missing id", func(t *testing.T) {
		res := serve(h, withToken(jsonRequest(t, http.MethodPut, "/api/v1/users", map[string]any{
			"full_name": "Nobody",
		}), adminToken))
		require.Equal(t, http.StatusBadRequest, res.Code)
		assert.Contains(t, decodeProblem(t, res).Errors, "id")
	})
}

func TestUsers_MethodNotAllowed(t *testing.T) {
	app, h := newUsersEndpoint(t)
	_, token := app.seedUser(t, "u@x.com", "user")

	res := serve(h, withToken(jsonRequest(t, http.MethodPatch, "/api/v1/users", nil), token))
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
	assert.NotEmpty(t, res.Header().Get("Allow"))
}

func TestUsers_StoreFailureIsGeneric500(t *testing.T) {
	svc := new(MockUserService)
	caller := auth.Principal{UserID: 1, Email: "admin@x.com", Role: auth.RoleAdmin}
	cause := errors.New("dial tcp 10.1.2.3:5432: i/o timeout")
	svc.On("List", mock.Anything, caller).Return(nil, storage.Unavailable("list users", cause))

	h := NewUsersHandler(svc, "development")
	req := jsonRequest(t, http.MethodGet, "/api/v1/users", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), caller))

	res := serve(h, req)

	require.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "10.1.2.3")
	assert.Equal(t, "Server error", decodeProblem(t, res).Error)
	svc.AssertExpectations(t)
}

func TestUsers_DeletePassesParsedID(t *testing.T) {
	svc := new(MockUserService)
	caller := auth.Principal{UserID: 1, Email: "admin@x.com", Role: auth.RoleAdmin}
	svc.On("Delete", mock.Anything, caller, int64(42)).Return(storage.ErrNotFound)

	h := NewUsersHandler(svc, testEnv)
	req := jsonRequest(t, http.MethodDelete, "/api/v1/users?id=42", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), caller))

	res := serve(h, req)

	assert.Equal(t, http.StatusNotFound, res.Code)
	svc.AssertExpectations(t)
}
