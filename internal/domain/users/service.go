package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/agenda/internal/audit"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/rs/zerolog"
)

// User is the public profile of an account. The password hash stays in the
// storage record.
type User struct {
	ID        int64
	Login     *string
	Email     string
	FullName  string
	Position  string
	Role      auth.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// NewUserParams carries the fields for registration and admin-side creation.
type NewUserParams struct {
	Login    string
	Email    string
	Password string
	FullName string
	Position string
	Role     string
}

// UpdateParams is a partial update. Nil fields are left unchanged.
type UpdateParams struct {
	Login    *string
	Email    *string
	Password *string
	FullName *string
	Position *string
	Role     *string
}

// Service handles login, token verification, registration and account
// management.
type Service struct {
	repo   storage.Repository
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
	audit  *audit.Logger
	logger zerolog.Logger
}

func NewService(
	repo storage.Repository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	auditLogger *audit.Logger,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		audit:  auditLogger,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

// Login checks the identifier (email or login name) and password. Unknown
// identifiers and wrong passwords return the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Session{}, auth.ValidationError{Field: "login", Message: "is required"}
	}
	if password == "" {
		return Session{}, auth.ValidationError{Field: "password", Message: "is required"}
	}

	record, err := s.repo.Users().FindByLoginOrEmail(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		s.hasher.VerifyDummy(password)
		s.audit.LogFailure(ctx, "auth.login_failed", identifier, map[string]string{"reason": "unknown_identifier"})
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("login lookup: %w", err)
	}

	if !s.hasher.Verify(password, record.PasswordHash) {
		s.audit.LogFailure(ctx, "auth.login_failed", identifier, map[string]string{"reason": "password_mismatch"})
		return Session{}, auth.ErrInvalidCredentials
	}

	user, err := toUser(record)
	if err != nil {
		return Session{}, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("role", user.Role.String()).Msg("login succeeded")
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Verify validates the token and reloads the account it names. A deleted
// account or a role change since issuance invalidates the token.
func (s *Service) Verify(ctx context.Context, token string) (User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return User{}, err
	}

	record, err := s.repo.Users().FindByID(ctx, claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return User{}, auth.ErrTokenStale
	}
	if err != nil {
		return User{}, fmt.Errorf("verify lookup: %w", err)
	}

	user, err := toUser(record)
	if err != nil {
		return User{}, err
	}
	if user.Role != claims.Role {
		return User{}, auth.ErrTokenStale
	}
	return user, nil
}

// Register creates an account from the public registration form. Only an
// authenticated admin may register another admin.
func (s *Service) Register(ctx context.Context, params NewUserParams, caller *auth.Principal) (int64, error) {
	record, err := s.newUserRecord(params)
	if err != nil {
		return 0, err
	}
	if record.Role == string(auth.RoleAdmin) {
		if caller == nil || !caller.IsAdmin() {
			return 0, fmt.Errorf("%w: only administrators may register administrators", auth.ErrForbidden)
		}
	}

	id, err := s.repo.Users().Create(ctx, record)
	if err != nil {
		return 0, registrationError(err)
	}

	actor := record.Email
	if caller != nil {
		actor = caller.Actor()
	}
	s.audit.LogSuccess(ctx, "user.registered", actor, "user", strconv.FormatInt(id, 10), map[string]string{"role": record.Role})
	return id, nil
}

func (s *Service) List(ctx context.Context, caller auth.Principal) ([]User, error) {
	if err := auth.Require(caller.Role, auth.OpReadUsers); err != nil {
		return nil, err
	}
	records, err := s.repo.Users().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]User, 0, len(records))
	for _, record := range records {
		user, err := toUser(record)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (User, error) {
	if err := auth.Require(caller.Role, auth.OpReadUsers); err != nil {
		return User{}, err
	}
	record, err := s.repo.Users().FindByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return toUser(record)
}

// Create is the admin-side account creation. Unlike Register, a duplicate
// surfaces as *storage.ConflictError.
func (s *Service) Create(ctx context.Context, caller auth.Principal, params NewUserParams) (int64, error) {
	if err := auth.Require(caller.Role, auth.OpCreateUser); err != nil {
		return 0, err
	}
	record, err := s.newUserRecord(params)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.Users().Create(ctx, record)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	s.audit.LogSuccess(ctx, "user.created", caller.Actor(), "user", strconv.FormatInt(id, 10), map[string]string{"role": record.Role})
	return id, nil
}

// Update applies a partial update. Admins may change any field of any account
// except their own role. Other users may change their own name, position and
// password only.
func (s *Service) Update(ctx context.Context, caller auth.Principal, id int64, params UpdateParams) (User, error) {
	if id <= 0 {
		return User{}, auth.ValidationError{Field: "id", Message: "is required"}
	}

	if err := auth.Require(caller.Role, auth.OpUpdateUser); err != nil {
		if caller.UserID != id {
			return User{}, err
		}
		if err := auth.Require(caller.Role, auth.OpUpdateOwnProfile); err != nil {
			return User{}, err
		}
		if params.Login != nil || params.Email != nil {
			return User{}, fmt.Errorf("%w: login and email are managed by administrators", auth.ErrForbidden)
		}
		if params.Role != nil && strings.TrimSpace(*params.Role) != caller.Role.String() {
			return User{}, fmt.Errorf("%w: cannot change own role", auth.ErrForbidden)
		}
		params.Role = nil
	} else if caller.UserID == id && params.Role != nil {
		if role, err := auth.ParseRole(*params.Role); err == nil && role != auth.RoleAdmin {
			return User{}, auth.ValidationError{Field: "role", Message: "cannot demote your own account"}
		}
	}

	update, err := s.userUpdate(params)
	if err != nil {
		return User{}, err
	}

	record, err := s.repo.Users().Update(ctx, id, update)
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}

	details := map[string]string{}
	if update.Role != nil {
		details["role"] = *update.Role
	}
	if update.PasswordHash != nil {
		details["password_changed"] = "true"
	}
	s.audit.LogSuccess(ctx, "user.updated", caller.Actor(), "user", strconv.FormatInt(id, 10), details)
	return toUser(record)
}

func (s *Service) Delete(ctx context.Context, caller auth.Principal, id int64) error {
	if err := auth.Require(caller.Role, auth.OpDeleteUser); err != nil {
		return err
	}
	if id <= 0 {
		return auth.ValidationError{Field: "id", Message: "is required"}
	}
	if id == caller.UserID {
		return auth.ValidationError{Field: "id", Message: "cannot delete your own account"}
	}
	if err := s.repo.Users().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.audit.LogSuccess(ctx, "user.deleted", caller.Actor(), "user", strconv.FormatInt(id, 10), nil)
	return nil
}

// EnsureAdmin creates an admin account unless one already uses the email. It
// reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	email = normalizeEmail(email)
	_, err := s.repo.Users().FindByLoginOrEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("check bootstrap admin: %w", err)
	}

	if fullName == "" {
		fullName = "Administrator"
	}
	record, err := s.newUserRecord(NewUserParams{
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     string(auth.RoleAdmin),
	})
	if err != nil {
		return false, err
	}

	id, err := s.repo.Users().Create(ctx, record)
	var conflict *storage.ConflictError
	if errors.As(err, &conflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	s.audit.LogSuccess(ctx, "user.bootstrapped", "system", "user", strconv.FormatInt(id, 10), map[string]string{"role": record.Role})
	return true, nil
}

func (s *Service) newUserRecord(params NewUserParams) (storage.NewUser, error) {
	email := normalizeEmail(params.Email)
	if err := validateEmail(email); err != nil {
		return storage.NewUser{}, err
	}
	if err := validatePassword(params.Password); err != nil {
		return storage.NewUser{}, err
	}
	fullName, err := cleanFullName(params.FullName)
	if err != nil {
		return storage.NewUser{}, err
	}
	position, err := cleanPosition(params.Position)
	if err != nil {
		return storage.NewUser{}, err
	}
	login, err := normalizeLogin(params.Login)
	if err != nil {
		return storage.NewUser{}, err
	}
	role, err := parseRole(params.Role)
	if err != nil {
		return storage.NewUser{}, err
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return storage.NewUser{}, err
	}

	return storage.NewUser{
		Login:        login,
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Position:     position,
		Role:         role.String(),
	}, nil
}

func (s *Service) userUpdate(params UpdateParams) (storage.UserUpdate, error) {
	var update storage.UserUpdate

	if params.Email != nil {
		email := normalizeEmail(*params.Email)
		if err := validateEmail(email); err != nil {
			return update, err
		}
		update.Email = &email
	}
	if params.Login != nil {
		login, err := normalizeLogin(*params.Login)
		if err != nil {
			return update, err
		}
		if login == nil {
			return update, auth.ValidationError{Field: "login", Message: "cannot be blank"}
		}
		update.Login = login
	}
	if params.FullName != nil {
		name, err := cleanFullName(*params.FullName)
		if err != nil {
			return update, err
		}
		update.FullName = &name
	}
	if params.Position != nil {
		position, err := cleanPosition(*params.Position)
		if err != nil {
			return update, err
		}
		update.Position = &position
	}
	if params.Role != nil {
		role, err := auth.ParseRole(*params.Role)
		if err != nil {
			return update, err
		}
		value := role.String()
		update.Role = &value
	}
	if params.Password != nil {
		if err := validatePassword(*params.Password); err != nil {
			return update, err
		}
		hash, err := s.hasher.Hash(*params.Password)
		if err != nil {
			return update, err
		}
		update.PasswordHash = &hash
	}
	return update, nil
}

func toUser(record storage.UserRecord) (User, error) {
	role, err := auth.ParseRole(record.Role)
	if err != nil {
		return User{}, fmt.Errorf("user %d has unknown stored role %q", record.ID, record.Role)
	}
	return User{
		ID:        record.ID,
		Login:     record.Login,
		Email:     record.Email,
		FullName:  record.FullName,
		Position:  record.Position,
		Role:      role,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}, nil
}
