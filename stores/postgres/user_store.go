// Package postgres implements devauth.UserStore on PostgreSQL through pgx,
// with schema migrations managed by goose.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	da "github.com/developerus/devauth"
)

// DBTX is the subset of *pgxpool.Pool (and pgx.Tx) the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, name, photo_url, password_changed_at,
	reset_token_hash, reset_expires_at, created_at, updated_at`

// UserStore implements da.UserStore backed by PostgreSQL (pgx).
type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return da.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return da.ErrEmailConflict
	}
	return fmt.Errorf("%w: %v", da.ErrBackendFailure, err)
}

func scanUser(row pgx.Row) (*da.User, error) {
	var (
		u                           da.User
		passwordHash, resetHash     *string
		passwordChangedAt, resetExp *time.Time
	)
	err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.Name, &u.PhotoURL, &passwordChangedAt,
		&resetHash, &resetExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	u.PasswordChangedAt = passwordChangedAt
	if resetHash != nil && resetExp != nil {
		u.Reset = &da.PasswordReset{TokenHash: *resetHash, ExpiresAt: *resetExp}
	}
	return &u, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*da.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*da.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*da.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1 AND reset_expires_at > $2`,
		hash, now))
}

func (s *UserStore) Insert(ctx context.Context, user *da.User) error {
	var passwordHash, resetHash *string
	var resetExp *time.Time
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}
	if user.Reset != nil {
		resetHash, resetExp = &user.Reset.TokenHash, &user.Reset.ExpiresAt
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, photo_url, password_changed_at,
			reset_token_hash, reset_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, user.ID, user.Email, passwordHash, user.Name, user.PhotoURL, user.PasswordChangedAt,
		resetHash, resetExp, user.CreatedAt, user.UpdatedAt)
	return classify(err)
}

// Update applies patch as one conditional UPDATE ... RETURNING. A missing
// row and a failed reset precondition both surface as ErrUserNotFound.
func (s *UserStore) Update(ctx context.Context, id string, patch da.UserPatch) (*da.User, error) {
	query, args := buildUpdate(id, &patch)
	return scanUser(s.db.QueryRow(ctx, query, args...))
}

func buildUpdate(id string, p *da.UserPatch) (string, []any) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.PhotoURL != nil {
		set("photo_url", *p.PhotoURL)
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.PasswordChangedAt != nil {
		set("password_changed_at", *p.PasswordChangedAt)
	}
	switch {
	case p.SetReset != nil:
		set("reset_token_hash", p.SetReset.TokenHash)
		set("reset_expires_at", p.SetReset.ExpiresAt)
	case p.ClearReset:
		sets = append(sets, "reset_token_hash = NULL", "reset_expires_at = NULL")
	}
	if !p.UpdatedAt.IsZero() {
		set("updated_at", p.UpdatedAt)
	}
	if len(sets) == 0 {
		sets = append(sets, "updated_at = updated_at")
	}

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if p.ExpectResetHash != "" {
		args = append(args, p.ExpectResetHash, p.ExpectResetAt)
		where += fmt.Sprintf(" AND reset_token_hash = $%d AND reset_expires_at > $%d", len(args)-1, len(args))
	}

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + where + " RETURNING " + userColumns
	return query, args
}
