package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	q queryer
}

const userColumns = `id, login, email, password_hash, full_name, position, role, created_at, updated_at`

func (r *UserRepository) FindByLoginOrEmail(ctx context.Context, identifier string) (storage.UserRecord, error) {
	row := r.q.QueryRow(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE lower(email) = lower($1) OR login = $1
 ORDER BY (lower(email) = lower($1)) DESC
 LIMIT 1
`, identifier)
	user, err := scanUser(row)
	if err != nil {
		return storage.UserRecord{}, translateError("find user by identifier", err)
	}
	return user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (storage.UserRecord, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return storage.UserRecord{}, translateError("find user by id", err)
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]storage.UserRecord, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+userColumns+`
  FROM users
 ORDER BY (role = 'admin') DESC, full_name, id
`)
	if err != nil {
		return nil, translateError("list users", err)
	}
	defer rows.Close()

	users := make([]storage.UserRecord, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, translateError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("list users", err)
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user storage.NewUser) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
INSERT INTO users (login, email, password_hash, full_name, position, role)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, user.Login, user.Email, user.PasswordHash, user.FullName, user.Position, user.Role).Scan(&id)
	if err != nil {
		return 0, translateError("create user", err)
	}
	return id, nil
}

// Update writes only the non-nil fields. Column names come from a fixed list;
// values are always bound parameters.
func (r *UserRepository) Update(ctx context.Context, id int64, update storage.UserUpdate) (storage.UserRecord, error) {
	if update.Empty() {
		return r.FindByID(ctx, id)
	}

	sets := make([]string, 0, 7)
	args := make([]any, 0, 7)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("login", update.Login)
	add("email", update.Email)
	add("password_hash", update.PasswordHash)
	add("full_name", update.FullName)
	add("position", update.Position)
	add("role", update.Role)
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	user, err := scanUser(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		return storage.UserRecord{}, translateError("update user", err)
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translateError("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (storage.UserRecord, error) {
	var user storage.UserRecord
	err := row.Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Position,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
