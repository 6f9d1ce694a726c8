package main

import (
	"net/http"

	da "github.com/developerus/devauth"
	"github.com/developerus/devauth/config"
	"github.com/developerus/devauth/oauth2"
)

// providers returns a client for every provider with credentials configured.
func providers(cfg *config.Config) []da.ProviderClient {
	var out []da.ProviderClient
	if cfg.Google.Configured() {
		g := oauth2.NewGoogle(providerConfig(cfg.Google))
		g.VerifyIDToken = cfg.Google.VerifyIDToken
		out = append(out, g)
	}
	if cfg.GitHub.Configured() {
		out = append(out, oauth2.NewGitHub(providerConfig(cfg.GitHub)))
	}
	if cfg.LinkedIn.Configured() {
		out = append(out, oauth2.NewLinkedIn(providerConfig(cfg.LinkedIn)))
	}
	return out
}

func providerConfig(p config.ProviderConfig) oauth2.Config {
	c := oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
	}
	if p.Timeout > 0 {
		c.HTTPClient = &http.Client{Timeout: p.Timeout}
	}
	return c
}
