package devauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// ProviderIdentity is the normalized identity a provider vouches for.
type ProviderIdentity struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ProviderClient exchanges an authorization code with one OAuth2 provider
// and turns the result into a ProviderIdentity.
type ProviderClient interface {
	// Name is the provider key used in routes and errors, e.g. "github".
	Name() string

	// ExchangeCode trades an authorization code for provider tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity resolves the identity behind token. It returns
	// ErrUnverifiedEmail or ErrNoEmailAvailable when the provider cannot
	// vouch for an email address.
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*ProviderIdentity, error)
}

var errUnknownProvider = NewAuthError(ErrCodeInvalidInput, "Unsupported sign-in provider", "provider")

// OAuthLogin completes a provider sign-in: it exchanges code, fetches the
// identity, creates or refreshes the account with that email, and returns
// the account with a session token.
func (s *Service) OAuthLogin(ctx context.Context, providerName, code string) (*User, string, error) {
	provider, ok := s.Provider(providerName)
	if !ok {
		return nil, "", errUnknownProvider
	}
	if strings.TrimSpace(code) == "" {
		return nil, "", NewAuthError(ErrCodeInvalidInput, "Missing authorization code", "code")
	}

	identity, err := s.fetchProviderIdentity(ctx, provider, code)
	if err != nil {
		s.logger().Warn("provider sign-in failed", "provider", providerName, "err", err)
		return nil, "", err
	}

	user, err := s.UpsertIdentity(ctx, identity)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) fetchProviderIdentity(ctx context.Context, provider ProviderClient, code string) (*ProviderIdentity, error) {
	name := provider.Name()

	exchangeCtx, cancel := context.WithTimeout(ctx, s.ProviderTimeout)
	token, err := provider.ExchangeCode(exchangeCtx, code)
	cancel()
	if err != nil {
		return nil, ProviderFailure(name, fmt.Errorf("code exchange: %w", err))
	}
	if token == nil || token.AccessToken == "" {
		return nil, ProviderFailure(name, errors.New("code exchange returned no access token"))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.ProviderTimeout)
	identity, err := provider.FetchIdentity(fetchCtx, token)
	cancel()
	if err != nil {
		return nil, ProviderFailure(name, err)
	}
	if identity == nil {
		return nil, ProviderFailure(name, errors.New("provider returned no identity"))
	}

	out := *identity
	out.Email = NormalizeEmail(out.Email)
	out.Name = strings.TrimSpace(out.Name)
	out.AvatarURL = strings.TrimSpace(out.AvatarURL)
	if out.Email == "" {
		return nil, ProviderFailure(name, ErrNoEmailAvailable)
	}
	if !ValidateEmail(out.Email) {
		return nil, ProviderFailure(name, fmt.Errorf("malformed email %q", out.Email))
	}
	return &out, nil
}

// UpsertIdentity creates an account for identity.Email, or refreshes name
// and photo on the existing one. Password fields are never touched and
// empty provider values never overwrite stored ones.
func (s *Service) UpsertIdentity(ctx context.Context, identity *ProviderIdentity) (*User, error) {
	email := NormalizeEmail(identity.Email)

	// A concurrent first sign-in can win the insert; the retry then finds
	// and refreshes that row.
	for attempt := 0; attempt < 2; attempt++ {
		user, err := s.findByEmail(ctx, email)
		if err == nil {
			return s.refreshProfile(ctx, user, identity)
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, storeFailure(err)
		}

		now := s.now()
		user = &User{
			ID:        s.newUserID(),
			Email:     email,
			Name:      identity.Name,
			PhotoURL:  identity.AvatarURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.insert(ctx, user)
		if err == nil {
			s.logger().Info("created provider account", "user_id", user.ID)
			return user, nil
		}
		if !errors.Is(err, ErrEmailConflict) {
			return nil, storeFailure(err)
		}
	}
	return nil, storeFailure(fmt.Errorf("upsert of %s kept conflicting", email))
}

func (s *Service) refreshProfile(ctx context.Context, user *User, identity *ProviderIdentity) (*User, error) {
	var patch UserPatch
	changed := false
	if identity.Name != "" && identity.Name != user.Name {
		patch.Name = &identity.Name
		changed = true
	}
	if identity.AvatarURL != "" && identity.AvatarURL != user.PhotoURL {
		patch.PhotoURL = &identity.AvatarURL
		changed = true
	}
	if !changed {
		return user, nil
	}
	updated, err := s.update(ctx, user.ID, patch)
	if err != nil {
		return nil, storeFailure(err)
	}
	return updated, nil
}
