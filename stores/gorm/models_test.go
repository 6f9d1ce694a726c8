package gorm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	da "github.com/developerus/devauth"
)

func TestUserModelRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	changed := now.Add(-time.Hour)
	user := &da.User{
		ID:                "u1",
		Email:             "a@example.com",
		PasswordHash:      "$2a$12$digest",
		Name:              "Alice",
		PasswordChangedAt: &changed,
		Reset:             &da.PasswordReset{TokenHash: "h1", ExpiresAt: now.Add(10 * time.Minute)},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	model := UserToModel(user)
	require.NotNil(t, model.PasswordHash)
	require.NotNil(t, model.ResetTokenHash)
	assert.Equal(t, "users", model.TableName())
	assert.Equal(t, user, model.ToUser())
}

func TestUserModelNulls(t *testing.T) {
	model := UserToModel(&da.User{ID: "u1", Email: "o@example.com"})
	assert.Nil(t, model.PasswordHash, "provider-only accounts store a NULL hash")
	assert.Nil(t, model.ResetTokenHash)

	user := model.ToUser()
	assert.False(t, user.HasPassword())
	assert.Nil(t, user.Reset)
}

func TestPatchColumns(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	name := "Bobby"

	cols := patchColumns(&da.UserPatch{Name: &name, UpdatedAt: now})
	assert.Equal(t, map[string]any{"name": "Bobby", "updated_at": now}, cols)

	cols = patchColumns(&da.UserPatch{ClearReset: true})
	assert.Contains(t, cols, "reset_token_hash")
	assert.Nil(t, cols["reset_token_hash"])
	assert.Nil(t, cols["reset_expires_at"])

	cols = patchColumns(&da.UserPatch{SetReset: &da.PasswordReset{TokenHash: "h", ExpiresAt: now}})
	assert.Equal(t, "h", cols["reset_token_hash"])
	assert.Equal(t, now, cols["reset_expires_at"])
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, isDuplicate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isDuplicate(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isDuplicate(errors.New("timeout")))

	assert.ErrorIs(t, backendErr(errors.New("timeout")), da.ErrBackendFailure)
}
