package storage

import (
	"context"
	"time"
)

// UserRecord is a users row. PasswordHash never leaves the domain layer.
type UserRecord struct {
	ID           int64
	Login        *string
	Email        string
	PasswordHash string
	FullName     string
	Position     string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type NewUser struct {
	Login        *string
	Email        string
	PasswordHash string
	FullName     string
	Position     string
	Role         string
}

// UserUpdate is a partial update. Nil fields keep their stored value.
type UserUpdate struct {
	Login        *string
	Email        *string
	PasswordHash *string
	FullName     *string
	Position     *string
	Role         *string
}

func (u UserUpdate) Empty() bool {
	return u.Login == nil && u.Email == nil && u.PasswordHash == nil &&
		u.FullName == nil && u.Position == nil && u.Role == nil
}

type UserRepository interface {
	// FindByLoginOrEmail matches the identifier against the email
	// (case-insensitive) or the login name.
	FindByLoginOrEmail(ctx context.Context, identifier string) (UserRecord, error)
	FindByID(ctx context.Context, id int64) (UserRecord, error)
	// List returns admins first, then by full name.
	List(ctx context.Context) ([]UserRecord, error)
	// Create inserts the row in one statement; duplicates surface as *ConflictError.
	Create(ctx context.Context, user NewUser) (int64, error)
	Update(ctx context.Context, id int64, update UserUpdate) (UserRecord, error)
	Delete(ctx context.Context, id int64) error
}
