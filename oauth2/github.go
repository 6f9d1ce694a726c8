package oauth2

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	da "github.com/developerus/devauth"
)

var _ da.ProviderClient = (*GitHub)(nil)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHub resolves identities through the REST API. The profile email is
// null when the user keeps it private, in which case the first address
// from /user/emails is used.
type GitHub struct {
	*BaseOAuth2

	// Can be overridden for testing.
	UserURL   string
	EmailsURL string
}

func NewGitHub(cfg Config) *GitHub {
	return &GitHub{
		BaseOAuth2: NewBaseOAuth2("github", cfg, github.Endpoint, []string{"read:user", "user:email"}),
		UserURL:    githubUserURL,
		EmailsURL:  githubEmailsURL,
	}
}

type githubUser struct {
	Login     string  `json:"login"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
	AvatarURL string  `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) FetchIdentity(ctx context.Context, token *oauth2.Token) (*da.ProviderIdentity, error) {
	var profile githubUser
	if err := g.getJSON(ctx, token, g.UserURL, &profile); err != nil {
		return nil, err
	}

	var email string
	if profile.Email != nil {
		email = *profile.Email
	}
	if email == "" {
		var emails []githubEmail
		if err := g.getJSON(ctx, token, g.EmailsURL, &emails); err != nil {
			return nil, err
		}
		if len(emails) > 0 {
			email = emails[0].Email
		}
	}
	if email == "" {
		return nil, da.ErrNoEmailAvailable
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}
	return &da.ProviderIdentity{Email: email, Name: name, AvatarURL: profile.AvatarURL}, nil
}
