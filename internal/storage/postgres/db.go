package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use. pgxmock pools
// satisfy it too.
type DB interface {
	queryer
	Begin(ctx context.Context) (pgx.Tx, error)
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db DB
	tx pgx.Tx
}

func NewRepository(db DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Users() storage.UserRepository {
	return &UserRepository{q: r.queryer()}
}

func (r *Repository) Events() storage.EventRepository {
	return &EventRepository{q: r.queryer()}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return storage.Unavailable("begin tx", err)
	}

	wrapped := &Repository{db: r.db, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.Unavailable("commit tx", err)
	}
	return nil
}

func (r *Repository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// uniqueFields maps unique constraint names to the input field they guard.
var uniqueFields = map[string]string{
	"users_email_key": "email",
	"users_login_key": "login",
}

// translateError turns driver errors into storage errors. Constraint
// violations keep their own kinds; everything else is ErrUnavailable.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &storage.ConflictError{
				Constraint: pgErr.ConstraintName,
				Field:      uniqueFields[pgErr.ConstraintName],
			}
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, storage.ErrInvalidReference)
		}
	}
	return storage.Unavailable(op, err)
}
