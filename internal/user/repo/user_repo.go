package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
)

var (
	// ErrNotFound is returned when no row matches the query.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when an insert hits the username or email unique constraint.
	ErrDuplicate = errors.New("user already exists")
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash, status, session, created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts u with the id already assigned and fills the timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	const q = `INSERT INTO users (id, username, email, password_hash, status, session)
		VALUES (:id, :username, :email, :password_hash, :status, :session)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return nil, mapWriteErr("create user", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapWriteErr("create user", err)
		}
		return nil, errors.New("create user: no row returned")
	}
	if err := rows.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// FindByUsername fetches by username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.get(ctx, "find user by username", q, username)
}

// FindByID fetches by primary key.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.get(ctx, "find user by id", q, id)
}

// FindByUsernameOrEmail returns any user holding either value.
func (r *UserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $2 LIMIT 1`
	return r.get(ctx, "find user by username or email", q, username, email)
}

// UpdateSessionFlag sets session unconditionally and returns the updated row.
func (r *UserRepo) UpdateSessionFlag(ctx context.Context, id int64, value bool) (*entity.User, error) {
	const q = `UPDATE users SET session = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
	return r.get(ctx, "update session flag", q, id, value)
}

// SwapSessionFlag sets session to `to` only while it still equals `from`.
// ErrNotFound means no row had that id and value at update time.
func (r *UserRepo) SwapSessionFlag(ctx context.Context, id int64, from, to bool) (*entity.User, error) {
	const q = `UPDATE users SET session = $3, updated_at = NOW() WHERE id = $1 AND session = $2 RETURNING ` + userColumns
	return r.get(ctx, "swap session flag", q, id, from, to)
}

// FindPage returns users ordered by id plus the total row count.
func (r *UserRepo) FindPage(ctx context.Context, limit, offset int) ([]entity.User, int64, error) {
	const q = `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	users := []entity.User{}
	if err := r.db.SelectContext(ctx, &users, q, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepo) get(ctx context.Context, op, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func mapWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
