package devauth

import (
	"context"
	"strings"
	"time"
)

// User is the single account record shared by password and provider sign-in.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	// PasswordHash is empty for accounts created through a provider.
	PasswordHash string `json:"-"`

	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`

	// PasswordChangedAt is set on every password change after creation.
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`

	// Reset holds a pending password reset, if any.
	Reset *PasswordReset `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PasswordReset is a pending reset. Only the digest of the token is kept.
type PasswordReset struct {
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActiveAt reports whether the reset can still be consumed at now.
func (r *PasswordReset) ActiveAt(now time.Time) bool {
	return r != nil && r.TokenHash != "" && now.Before(r.ExpiresAt)
}

// UserPatch is a partial update. Nil fields are left untouched.
type UserPatch struct {
	Name              *string
	PhotoURL          *string
	PasswordHash      *string
	PasswordChangedAt *time.Time

	// SetReset replaces any pending reset.
	SetReset *PasswordReset

	// ClearReset removes the pending reset in the same write.
	ClearReset bool

	// ExpectResetHash makes the update conditional: it applies only if the
	// stored reset digest equals this value and is still active at
	// ExpectResetAt. Otherwise the store reports ErrUserNotFound.
	ExpectResetHash string
	ExpectResetAt   time.Time

	UpdatedAt time.Time
}

// Matches reports whether u satisfies the patch precondition.
func (p *UserPatch) Matches(u *User) bool {
	if p.ExpectResetHash == "" {
		return true
	}
	return u.Reset.ActiveAt(p.ExpectResetAt) && u.Reset.TokenHash == p.ExpectResetHash
}

// Apply writes the patch into u. Stores that hold records in memory or as
// documents use this; SQL stores translate the patch into columns.
func (p *UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.PasswordChangedAt != nil {
		t := *p.PasswordChangedAt
		u.PasswordChangedAt = &t
	}
	if p.ClearReset {
		u.Reset = nil
	}
	if p.SetReset != nil {
		r := *p.SetReset
		u.Reset = &r
	}
	if !p.UpdatedAt.IsZero() {
		u.UpdatedAt = p.UpdatedAt
	}
}

// UserStore persists users. Implementations return ErrUserNotFound,
// ErrEmailConflict or ErrBackendFailure (wrapped) so callers can classify
// failures with errors.Is.
type UserStore interface {
	// FindByEmail looks a user up by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID looks a user up by id.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByResetTokenHash returns the user whose pending reset digest is
	// hash and whose reset expires after now.
	FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error)

	// Insert creates a user. Fails with ErrEmailConflict when the email is taken.
	Insert(ctx context.Context, user *User) error

	// Update applies patch atomically and returns the updated user.
	Update(ctx context.Context, id string, patch UserPatch) (*User, error)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
