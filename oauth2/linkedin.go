package oauth2

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"

	da "github.com/developerus/devauth"
)

var _ da.ProviderClient = (*LinkedIn)(nil)

const linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"

// LinkedIn uses the "Sign In with LinkedIn using OpenID Connect" product
// and reads the profile from its userinfo endpoint.
type LinkedIn struct {
	*BaseOAuth2

	// Can be overridden for testing.
	UserInfoURL string
}

func NewLinkedIn(cfg Config) *LinkedIn {
	return &LinkedIn{
		BaseOAuth2:  NewBaseOAuth2("linkedin", cfg, linkedin.Endpoint, []string{"openid", "profile", "email"}),
		UserInfoURL: linkedinUserInfoURL,
	}
}

type linkedinUserInfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Picture       string `json:"picture"`
}

func (l *LinkedIn) FetchIdentity(ctx context.Context, token *oauth2.Token) (*da.ProviderIdentity, error) {
	var info linkedinUserInfo
	if err := l.getJSON(ctx, token, l.UserInfoURL, &info); err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, da.ErrNoEmailAvailable
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return nil, da.ErrUnverifiedEmail
	}

	name := info.Name
	if name == "" {
		name = strings.TrimSpace(info.GivenName + " " + info.FamilyName)
	}
	return &da.ProviderIdentity{Email: info.Email, Name: name, AvatarURL: info.Picture}, nil
}
