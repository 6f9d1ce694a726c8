package devauth

import (
	"context"
	"errors"
	"fmt"
)

// RequestReset starts a password reset for email and returns the plaintext
// token. The token is returned exactly once; only its digest is stored.
// A later request replaces any earlier pending reset.
func (s *Service) RequestReset(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", errInvalidEmail
	}
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrNotFound
		}
		return "", storeFailure(err)
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	_, err = s.update(ctx, user.ID, UserPatch{
		SetReset: &PasswordReset{
			TokenHash: HashResetToken(token),
			ExpiresAt: now.Add(s.ResetExpiry),
		},
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrNotFound
		}
		return "", storeFailure(err)
	}
	s.logger().Info("password reset requested", "user_id", user.ID)
	return token, nil
}

// DiscardReset drops any pending reset for email. Used when the reset
// token could not be delivered.
func (s *Service) DiscardReset(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotFound
		}
		return storeFailure(err)
	}
	if _, err := s.update(ctx, user.ID, UserPatch{ClearReset: true}); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotFound
		}
		return storeFailure(err)
	}
	return nil
}

// ConsumeReset sets a new password using a reset token and returns the
// account with a session token. Unknown, expired and already used tokens
// all fail with ErrInvalidOrExpired.
func (s *Service) ConsumeReset(ctx context.Context, token, newPassword string) (*User, string, error) {
	if token == "" {
		return nil, "", ErrInvalidOrExpired
	}
	tokenHash := HashResetToken(token)
	now := s.now()

	user, err := s.findByResetTokenHash(ctx, tokenHash, now)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidOrExpired
		}
		return nil, "", storeFailure(err)
	}
	if !ValidatePassword(newPassword) {
		return nil, "", errInvalidPassword
	}
	digest, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return nil, "", err
	}

	// The precondition makes the password write and the reset removal a
	// single conditional update, so a token is consumed at most once.
	updated, err := s.update(ctx, user.ID, UserPatch{
		PasswordHash:      &digest,
		PasswordChangedAt: &now,
		ClearReset:        true,
		ExpectResetHash:   tokenHash,
		ExpectResetAt:     now,
		UpdatedAt:         now,
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidOrExpired
		}
		return nil, "", storeFailure(err)
	}
	s.logger().Info("password reset consumed", "user_id", updated.ID)

	session, err := s.issue(updated)
	if err != nil {
		return nil, "", fmt.Errorf("password was reset but no session could be issued: %w", err)
	}
	return updated, session, nil
}
