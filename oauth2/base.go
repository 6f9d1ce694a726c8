// Package oauth2 implements devauth.ProviderClient for Google, GitHub and
// LinkedIn on top of golang.org/x/oauth2.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds each HTTP round trip to a provider.
const DefaultTimeout = 10 * time.Second

// Config holds the client registration for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes overrides the provider's default scopes.
	Scopes []string

	// Endpoint overrides the provider's authorization and token URLs.
	// Can be overridden for testing.
	Endpoint *oauth2.Endpoint

	// HTTPClient is used for the token exchange and profile calls.
	// Defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
}

// BaseOAuth2 holds the pieces every provider shares: the code exchange and
// authenticated JSON requests against provider APIs.
type BaseOAuth2 struct {
	name        string
	oauthConfig oauth2.Config
	httpClient  *http.Client
}

func NewBaseOAuth2(name string, cfg Config, endpoint oauth2.Endpoint, scopes []string) *BaseOAuth2 {
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	if len(cfg.Scopes) > 0 {
		scopes = cfg.Scopes
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &BaseOAuth2{
		name:       name,
		httpClient: client,
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

// Name returns the provider key.
func (b *BaseOAuth2) Name() string { return b.name }

// ExchangeCode trades an authorization code for tokens.
func (b *BaseOAuth2) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	token, err := b.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", b.name, err)
	}
	return token, nil
}

// getJSON fetches url with the access token and decodes the JSON body into out.
func (b *BaseOAuth2) getJSON(ctx context.Context, token *oauth2.Token, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed getting %s from %s: %w", url, b.name, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", url, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", b.name, err)
	}
	return nil
}
