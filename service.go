package devauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Defaults for Service timeouts
const (
	DefaultStoreTimeout    = 5 * time.Second
	DefaultProviderTimeout = 10 * time.Second
)

// Service implements signup, login, password change, password reset and
// provider sign-in on top of a UserStore. All operations are safe for
// concurrent use; the only shared state is the store and the signing key.
type Service struct {
	Users    UserStore
	Hasher   *Hasher
	Sessions *SessionTokens

	// ResetExpiry is how long a reset token stays usable.
	ResetExpiry time.Duration

	// StoreTimeout bounds every store call.
	StoreTimeout time.Duration

	// ProviderTimeout bounds each provider round trip.
	ProviderTimeout time.Duration

	Logger *slog.Logger

	// Now is the clock used for expiries. Defaults to time.Now.
	Now func() time.Time

	// NewUserID allocates ids for new users. Defaults to random UUIDs.
	NewUserID func() string

	providers map[string]ProviderClient
}

// NewService creates a Service with default hashing and timeouts.
func NewService(users UserStore, sessions *SessionTokens) *Service {
	return (&Service{Users: users, Sessions: sessions}).EnsureDefaults()
}

// EnsureDefaults fills in any unset fields.
func (s *Service) EnsureDefaults() *Service {
	if s.Hasher == nil {
		s.Hasher = NewHasher(DefaultHashCost, 0)
	}
	if s.ResetExpiry <= 0 {
		s.ResetExpiry = TokenExpiryPasswordReset
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = DefaultStoreTimeout
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = DefaultProviderTimeout
	}
	if s.providers == nil {
		s.providers = map[string]ProviderClient{}
	}
	return s
}

// RegisterProvider makes a provider available to OAuthLogin under its Name.
func (s *Service) RegisterProvider(p ProviderClient) {
	if s.providers == nil {
		s.providers = map[string]ProviderClient{}
	}
	s.providers[p.Name()] = p
}

// Provider returns the registered provider with the given name.
func (s *Service) Provider(name string) (ProviderClient, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Guard returns an access guard sharing this service's store and tokens.
func (s *Service) Guard() *Guard {
	return &Guard{
		Users:        s.Users,
		Sessions:     s.Sessions,
		StoreTimeout: s.StoreTimeout,
		Logger:       s.Logger,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newUserID() string {
	if s.NewUserID != nil {
		return s.NewUserID()
	}
	return uuid.NewString()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.StoreTimeout)
}

func (s *Service) findByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.Users.FindByEmail(ctx, email)
}

func (s *Service) findByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.Users.FindByID(ctx, id)
}

func (s *Service) findByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.Users.FindByResetTokenHash(ctx, hash, now)
}

func (s *Service) insert(ctx context.Context, user *User) error {
	if user.PasswordHash != "" && !IsPasswordHash(user.PasswordHash) {
		return ErrPasswordNotHashed
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.Users.Insert(ctx, user)
}

func (s *Service) update(ctx context.Context, id string, patch UserPatch) (*User, error) {
	if patch.PasswordHash != nil && !IsPasswordHash(*patch.PasswordHash) {
		return nil, ErrPasswordNotHashed
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now()
	}
	return s.Users.Update(ctx, id, patch)
}

// storeFailure wraps an unexpected store error.
func storeFailure(err error) error {
	return ErrStoreUnavailable.WithCause(err)
}

// issue signs a session token for user.
func (s *Service) issue(user *User) (string, error) {
	token, err := s.Sessions.Issue(user.ID)
	if err != nil {
		s.logger().Error("failed to issue session token", "user_id", user.ID, "err", err)
		return "", err
	}
	return token, nil
}
