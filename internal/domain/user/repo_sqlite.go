package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
)

type repoSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepoSQLite(sqlDB *sql.DB) Repository {
	return &repoSQLite{db: sqlDB, now: time.Now}
}

func (r *repoSQLite) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.PasswordHash, string(u.Role), db.FormatTimestamp(u.CreatedAt),
	)
	if err != nil {
		if db.IsSQLiteUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return nil
}

func (r *repoSQLite) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUserSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return u, nil
}

func (r *repoSQLite) ListByRole(ctx context.Context, role string) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY username`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUserSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserSQLite(row rowScanner) (*User, error) {
	var u User
	var id, role, stamp string
	if err := row.Scan(&id, &u.Username, &u.PasswordHash, &role, &stamp); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", id, err)
	}
	u.ID = parsed
	if u.CreatedAt, err = db.ParseTimestamp(stamp); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
