package devauth

import (
	"context"
	"errors"
	"fmt"
)

var (
	errInvalidEmail    = NewAuthError(ErrCodeInvalidInput, "Please provide a valid email address", "email")
	errInvalidPassword = NewAuthError(ErrCodeInvalidInput, "Password must be between 8 and 72 characters", "password")
	errMissingLogin    = NewAuthError(ErrCodeInvalidInput, "Please provide email and password", "")
)

// Signup creates a password account and returns it with a session token.
func (s *Service) Signup(ctx context.Context, email, password string) (*User, string, error) {
	email = NormalizeEmail(email)
	if !ValidateEmail(email) {
		return nil, "", errInvalidEmail
	}
	if !ValidatePassword(password) {
		return nil, "", errInvalidPassword
	}

	digest, err := s.hashPassword(ctx, password)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	user := &User{
		ID:           s.newUserID(),
		Email:        email,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.insert(ctx, user); err != nil {
		if errors.Is(err, ErrEmailConflict) {
			return nil, "", ErrDuplicateEmail
		}
		s.logger().Error("signup insert failed", "email", email, "err", err)
		return nil, "", storeFailure(err)
	}
	s.logger().Info("created password account", "user_id", user.ID)

	token, err := s.issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login checks a password and returns the account with a new session token.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", errMissingLogin
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := s.Hasher.VerifyDecoy(ctx, password); err != nil {
				return nil, "", err
			}
			return nil, "", ErrIncorrectCredentials
		}
		return nil, "", storeFailure(err)
	}
	if !user.HasPassword() {
		return nil, "", ErrNoPasswordSet
	}

	ok, err := s.Hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrIncorrectCredentials
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ChangePassword replaces the password of an authenticated account after
// checking the current one, and returns a fresh session token.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (string, error) {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUserNoLongerExists
		}
		return "", storeFailure(err)
	}
	if !user.HasPassword() {
		return "", ErrNoPasswordSet
	}

	ok, err := s.Hasher.Verify(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrIncorrectCurrentPassword
	}
	if !ValidatePassword(newPassword) {
		return "", ErrInvalidNewPassword
	}

	digest, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return "", err
	}
	now := s.now()
	updated, err := s.update(ctx, user.ID, UserPatch{
		PasswordHash:      &digest,
		PasswordChangedAt: &now,
		ClearReset:        true,
		UpdatedAt:         now,
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUserNoLongerExists
		}
		return "", storeFailure(err)
	}
	s.logger().Info("password changed", "user_id", updated.ID)
	return s.issue(updated)
}

// hashPassword hashes a validated password.
func (s *Service) hashPassword(ctx context.Context, password string) (string, error) {
	digest, err := s.Hasher.Hash(ctx, password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return digest, nil
}
