package devauth

import (
	"errors"
	"fmt"
)

// Error codes for every failure an auth operation can report.
const (
	ErrCodeInvalidInput             = "invalid_input"
	ErrCodeDuplicateEmail           = "duplicate_email"
	ErrCodeIncorrectCredentials     = "incorrect_credentials"
	ErrCodeNoPasswordSet            = "no_password_set"
	ErrCodeNotFound                 = "not_found"
	ErrCodeIncorrectCurrentPassword = "incorrect_current_password"
	ErrCodeInvalidNewPassword       = "invalid_new_password"
	ErrCodeInvalidOrExpired         = "invalid_or_expired"
	ErrCodeMissingToken             = "missing_token"
	ErrCodeUnauthenticated          = "unauthenticated"
	ErrCodeUserNoLongerExists       = "user_no_longer_exists"
	ErrCodeProviderExchangeFailed   = "provider_exchange_failed"
	ErrCodeUnverifiedEmail          = "unverified_email"
	ErrCodeNoEmailAvailable         = "no_email_available"
	ErrCodeStoreUnavailable         = "store_unavailable"
)

// AuthError is the typed failure returned by the auth operations.
// Message is safe to show to end users; Err carries the underlying cause
// for logs and is never rendered to clients.
type AuthError struct {
	Code     string `json:"code"`
	Message  string `json:"error"`
	Field    string `json:"field,omitempty"`
	Provider string `json:"provider,omitempty"`
	Err      error  `json:"-"`
}

// NewAuthError creates a new AuthError
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError with the same code, so callers can write
// errors.Is(err, ErrDuplicateEmail) regardless of message or cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *AuthError) WithCause(cause error) *AuthError {
	out := *e
	out.Err = cause
	return &out
}

// WithField returns a copy of e bound to an input field.
func (e *AuthError) WithField(field string) *AuthError {
	out := *e
	out.Field = field
	return &out
}

var (
	ErrInvalidInput             = NewAuthError(ErrCodeInvalidInput, "Please send valid data", "")
	ErrDuplicateEmail           = NewAuthError(ErrCodeDuplicateEmail, "This account is already registered. Please try logging in", "email")
	ErrIncorrectCredentials     = NewAuthError(ErrCodeIncorrectCredentials, "Incorrect email or password", "")
	ErrNoPasswordSet            = NewAuthError(ErrCodeNoPasswordSet, "This account signs in through a provider and has no password set", "")
	ErrNotFound                 = NewAuthError(ErrCodeNotFound, "There is no user with that email address", "email")
	ErrIncorrectCurrentPassword = NewAuthError(ErrCodeIncorrectCurrentPassword, "Your current password is wrong", "current_password")
	ErrInvalidNewPassword       = NewAuthError(ErrCodeInvalidNewPassword, "New password must be between 8 and 72 characters", "new_password")
	ErrInvalidOrExpired         = NewAuthError(ErrCodeInvalidOrExpired, "Token is invalid or has expired", "token")
	ErrMissingToken             = NewAuthError(ErrCodeMissingToken, "You are not logged in. Please log in to get access.", "")
	ErrUnauthenticated          = NewAuthError(ErrCodeUnauthenticated, "You are not authorized to access this route.", "")
	ErrUserNoLongerExists       = NewAuthError(ErrCodeUserNoLongerExists, "The user belonging to this token no longer exists", "")
	ErrProviderExchangeFailed   = NewAuthError(ErrCodeProviderExchangeFailed, "Failed to sign in with provider. Please try a different login method", "")
	ErrUnverifiedEmail          = NewAuthError(ErrCodeUnverifiedEmail, "The provider has not verified this email address", "")
	ErrNoEmailAvailable         = NewAuthError(ErrCodeNoEmailAvailable, "The provider did not share an email address", "")
	ErrStoreUnavailable         = NewAuthError(ErrCodeStoreUnavailable, "Unable to process the request. Please try after some time", "")
)

// Store-level sentinels. Backends wrap these with fmt.Errorf("...: %w").
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailConflict  = errors.New("email already registered")
	ErrBackendFailure = errors.New("user store unavailable")
)

// ProviderFailure tags err as a ProviderExchangeFailed for provider. Typed
// provider failures such as ErrUnverifiedEmail pass through with the
// provider name attached.
func ProviderFailure(provider string, err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		out := *ae
		out.Provider = provider
		return &out
	}
	out := ErrProviderExchangeFailed.WithCause(err)
	out.Provider = provider
	return out
}

// CodeOf returns the AuthError code carried by err, or "" when err is not typed.
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
