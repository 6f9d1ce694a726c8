//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	da "github.com/developerus/devauth"
)

// UserModel is the GORM model for users
type UserModel struct {
	ID                string     `gorm:"primaryKey;size:64"`
	Email             string     `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash      *string    `gorm:"size:72"`
	Name              string     `gorm:"size:255"`
	PhotoURL          string     `gorm:"size:1024"`
	PasswordChangedAt *time.Time
	ResetTokenHash    *string    `gorm:"size:64;index"`
	ResetExpiresAt    *time.Time
	CreatedAt         time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime:false"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *da.User {
	out := &da.User{
		ID:                m.ID,
		Email:             m.Email,
		Name:              m.Name,
		PhotoURL:          m.PhotoURL,
		PasswordChangedAt: m.PasswordChangedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.PasswordHash != nil {
		out.PasswordHash = *m.PasswordHash
	}
	if m.ResetTokenHash != nil && m.ResetExpiresAt != nil {
		out.Reset = &da.PasswordReset{TokenHash: *m.ResetTokenHash, ExpiresAt: *m.ResetExpiresAt}
	}
	return out
}

func UserToModel(u *da.User) *UserModel {
	m := &UserModel{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		PhotoURL:          u.PhotoURL,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	if u.PasswordHash != "" {
		hash := u.PasswordHash
		m.PasswordHash = &hash
	}
	if u.Reset != nil {
		hash, exp := u.Reset.TokenHash, u.Reset.ExpiresAt
		m.ResetTokenHash = &hash
		m.ResetExpiresAt = &exp
	}
	return m
}

// patchColumns translates a patch into an Updates map.
func patchColumns(p *da.UserPatch) map[string]any {
	cols := map[string]any{}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.PhotoURL != nil {
		cols["photo_url"] = *p.PhotoURL
	}
	if p.PasswordHash != nil {
		cols["password_hash"] = *p.PasswordHash
	}
	if p.PasswordChangedAt != nil {
		cols["password_changed_at"] = *p.PasswordChangedAt
	}
	if p.ClearReset {
		cols["reset_token_hash"] = nil
		cols["reset_expires_at"] = nil
	}
	if p.SetReset != nil {
		cols["reset_token_hash"] = p.SetReset.TokenHash
		cols["reset_expires_at"] = p.SetReset.ExpiresAt
	}
	if !p.UpdatedAt.IsZero() {
		cols["updated_at"] = p.UpdatedAt
	}
	return cols
}
