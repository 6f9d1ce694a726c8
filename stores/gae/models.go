//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	da "github.com/developerus/devauth"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key               *datastore.Key `datastore:"__key__"`
	Email             string         `datastore:"email"`
	PasswordHash      string         `datastore:"password_hash,noindex"`
	Name              string         `datastore:"name,noindex"`
	PhotoURL          string         `datastore:"photo_url,noindex"`
	PasswordChangedAt time.Time      `datastore:"password_changed_at,noindex"`
	ResetTokenHash    string         `datastore:"reset_token_hash"`
	ResetExpiresAt    time.Time      `datastore:"reset_expires_at,noindex"`
	CreatedAt         time.Time      `datastore:"created_at"`
	UpdatedAt         time.Time      `datastore:"updated_at"`
	Version           int            `datastore:"version"`
}

// EmailEntity reserves an email for a user.
// Key format: the normalized email
type EmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *UserEntity) ToUser() *da.User {
	out := &da.User{
		ID:           e.Key.Name,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		Name:         e.Name,
		PhotoURL:     e.PhotoURL,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if !e.PasswordChangedAt.IsZero() {
		t := e.PasswordChangedAt
		out.PasswordChangedAt = &t
	}
	if e.ResetTokenHash != "" {
		out.Reset = &da.PasswordReset{TokenHash: e.ResetTokenHash, ExpiresAt: e.ResetExpiresAt}
	}
	return out
}

func UserToEntity(u *da.User, key *datastore.Key, version int) *UserEntity {
	e := &UserEntity{
		Key:          key,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		PhotoURL:     u.PhotoURL,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Version:      version,
	}
	if u.PasswordChangedAt != nil {
		e.PasswordChangedAt = *u.PasswordChangedAt
	}
	if u.Reset != nil {
		e.ResetTokenHash = u.Reset.TokenHash
		e.ResetExpiresAt = u.Reset.ExpiresAt
	}
	return e
}
