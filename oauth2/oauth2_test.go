package oauth2_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oauth2lib "golang.org/x/oauth2"

	da "github.com/developerus/devauth"
	"github.com/developerus/devauth/oauth2"
	"github.com/developerus/devauth/stores/fs"
)

// mockProvider serves a token endpoint plus the profile endpoints the
// three providers call.
type mockProvider struct {
	server *httptest.Server

	tokenResponse map[string]any
	tokenStatus   int

	userResponse   map[string]any
	emailsResponse []map[string]any
	userStatus     int
	emailsCalls    int

	lastAuthorization string
}

func newMockProvider(t *testing.T) *mockProvider {
	m := &mockProvider{
		tokenResponse: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		tokenStatus: http.StatusOK,
		userStatus:  http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if m.tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, m.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.tokenResponse)
	})
	profile := func(w http.ResponseWriter, r *http.Request) {
		m.lastAuthorization = r.Header.Get("Authorization")
		if m.userStatus != http.StatusOK {
			http.Error(w, "nope", m.userStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.userResponse)
	}
	mux.HandleFunc("/user", profile)
	mux.HandleFunc("/userinfo", profile)
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		m.emailsCalls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.emailsResponse)
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockProvider) config() oauth2.Config {
	return oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		Endpoint: &oauth2lib.Endpoint{
			AuthURL:   m.server.URL + "/auth",
			TokenURL:  m.server.URL + "/token",
			AuthStyle: oauth2lib.AuthStyleInParams,
		},
		HTTPClient: m.server.Client(),
	}
}

func (m *mockProvider) newGitHub() *oauth2.GitHub {
	g := oauth2.NewGitHub(m.config())
	g.UserURL = m.server.URL + "/user"
	g.EmailsURL = m.server.URL + "/user/emails"
	return g
}

func (m *mockProvider) newLinkedIn() *oauth2.LinkedIn {
	l := oauth2.NewLinkedIn(m.config())
	l.UserInfoURL = m.server.URL + "/userinfo"
	return l
}

// idToken builds a signed (with a throwaway key) id_token carrying claims.
func idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-googles-key"))
	require.NoError(t, err)
	return s
}

func exchange(t *testing.T, p da.ProviderClient) *oauth2lib.Token {
	t.Helper()
	token, err := p.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	return token
}

func TestProviderNames(t *testing.T) {
	assert.Equal(t, "google", oauth2.NewGoogle(oauth2.Config{}).Name())
	assert.Equal(t, "github", oauth2.NewGitHub(oauth2.Config{}).Name())
	assert.Equal(t, "linkedin", oauth2.NewLinkedIn(oauth2.Config{}).Name())
}

func TestExchangeCode(t *testing.T) {
	m := newMockProvider(t)
	g := m.newGitHub()

	t.Run("returns access token", func(t *testing.T) {
		token := exchange(t, g)
		assert.Equal(t, "mock_access_token", token.AccessToken)
	})

	t.Run("rejected code is an error", func(t *testing.T) {
		m.tokenStatus = http.StatusBadRequest
		defer func() { m.tokenStatus = http.StatusOK }()
		_, err := g.ExchangeCode(context.Background(), "bad-code")
		assert.Error(t, err)
	})
}

func TestGoogleFetchIdentity(t *testing.T) {
	m := newMockProvider(t)
	g := oauth2.NewGoogle(m.config())

	withIDToken := func(claims jwt.MapClaims) *oauth2lib.Token {
		m.tokenResponse["id_token"] = idToken(t, claims)
		return exchange(t, g)
	}

	t.Run("verified email", func(t *testing.T) {
		token := withIDToken(jwt.MapClaims{
			"email":          "User@Example.com",
			"email_verified": true,
			"name":           "Google User",
			"picture":        "https://example.com/p.png",
		})
		identity, err := g.FetchIdentity(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "User@Example.com", identity.Email)
		assert.Equal(t, "Google User", identity.Name)
		assert.Equal(t, "https://example.com/p.png", identity.AvatarURL)
	})

	t.Run("string email_verified", func(t *testing.T) {
		token := withIDToken(jwt.MapClaims{"email": "u@example.com", "email_verified": "true"})
		identity, err := g.FetchIdentity(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "u@example.com", identity.Email)
	})

	t.Run("unverified email", func(t *testing.T) {
		token := withIDToken(jwt.MapClaims{"email": "u@example.com", "email_verified": false})
		_, err := g.FetchIdentity(context.Background(), token)
		assert.ErrorIs(t, err, da.ErrUnverifiedEmail)
	})

	t.Run("missing email", func(t *testing.T) {
		token := withIDToken(jwt.MapClaims{"email_verified": true})
		_, err := g.FetchIdentity(context.Background(), token)
		assert.ErrorIs(t, err, da.ErrNoEmailAvailable)
	})

	t.Run("no id_token", func(t *testing.T) {
		delete(m.tokenResponse, "id_token")
		_, err := g.FetchIdentity(context.Background(), exchange(t, g))
		assert.Error(t, err)
	})

	t.Run("garbage id_token", func(t *testing.T) {
		m.tokenResponse["id_token"] = "not.a.jwt"
		_, err := g.FetchIdentity(context.Background(), exchange(t, g))
		assert.Error(t, err)
	})
}

func TestGitHubFetchIdentity(t *testing.T) {
	m := newMockProvider(t)
	g := m.newGitHub()

	t.Run("public email", func(t *testing.T) {
		m.userResponse = map[string]any{
			"login":      "octocat",
			"name":       "The Octocat",
			"email":      "octo@example.com",
			"avatar_url": "https://example.com/octo.png",
		}
		m.emailsCalls = 0
		identity, err := g.FetchIdentity(context.Background(), exchange(t, g))
		require.NoError(t, err)
		assert.Equal(t, "octo@example.com", identity.Email)
		assert.Equal(t, "The Octocat", identity.Name)
		assert.Equal(t, "https://example.com/octo.png", identity.AvatarURL)
		assert.Equal(t, 0, m.emailsCalls)
		assert.Equal(t, "Bearer mock_access_token", m.lastAuthorization)
	})

	t.Run("private email uses first listed address", func(t *testing.T) {
		m.userResponse = map[string]any{"login": "octocat", "email": nil}
		m.emailsResponse = []map[string]any{
			{"email": "first@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		}
		m.emailsCalls = 0
		identity, err := g.FetchIdentity(context.Background(), exchange(t, g))
		require.NoError(t, err)
		assert.Equal(t, "first@example.com", identity.Email)
		assert.Equal(t, "octocat", identity.Name)
		assert.Equal(t, 1, m.emailsCalls)
	})

	t.Run("no email anywhere", func(t *testing.T) {
		m.userResponse = map[string]any{"login": "octocat"}
		m.emailsResponse = []map[string]any{}
		_, err := g.FetchIdentity(context.Background(), exchange(t, g))
		assert.ErrorIs(t, err, da.ErrNoEmailAvailable)
	})

	t.Run("profile call fails", func(t *testing.T) {
		m.userStatus = http.StatusUnauthorized
		defer func() { m.userStatus = http.StatusOK }()
		_, err := g.FetchIdentity(context.Background(), exchange(t, g))
		require.Error(t, err)
		assert.False(t, errors.Is(err, da.ErrNoEmailAvailable))
	})
}

func TestLinkedInFetchIdentity(t *testing.T) {
	m := newMockProvider(t)
	l := m.newLinkedIn()

	t.Run("userinfo profile", func(t *testing.T) {
		m.userResponse = map[string]any{
			"sub":            "abc",
			"given_name":     "Link",
			"family_name":    "Edin",
			"email":          "li@example.com",
			"email_verified": true,
			"picture":        "https://example.com/li.png",
		}
		identity, err := l.FetchIdentity(context.Background(), exchange(t, l))
		require.NoError(t, err)
		assert.Equal(t, "li@example.com", identity.Email)
		assert.Equal(t, "Link Edin", identity.Name)
		assert.Equal(t, "https://example.com/li.png", identity.AvatarURL)
	})

	t.Run("unverified email", func(t *testing.T) {
		m.userResponse = map[string]any{"email": "li@example.com", "email_verified": false}
		_, err := l.FetchIdentity(context.Background(), exchange(t, l))
		assert.ErrorIs(t, err, da.ErrUnverifiedEmail)
	})

	t.Run("no email", func(t *testing.T) {
		m.userResponse = map[string]any{"sub": "abc", "name": "No Mail"}
		_, err := l.FetchIdentity(context.Background(), exchange(t, l))
		assert.ErrorIs(t, err, da.ErrNoEmailAvailable)
	})
}

// TestOAuthLoginWithGitHub drives a full provider sign-in through the
// service against the mock provider.
func TestOAuthLoginWithGitHub(t *testing.T) {
	m := newMockProvider(t)

	sessions, err := da.NewSessionTokens("a-test-secret-that-is-long-enough!!", time.Hour)
	require.NoError(t, err)
	svc := da.NewService(fs.NewUserStore(t.TempDir()), sessions)
	svc.RegisterProvider(m.newGitHub())

	m.userResponse = map[string]any{"login": "bob", "name": "Bob", "email": "Bob@Example.com"}
	user, token, err := svc.OAuthLogin(context.Background(), "github", "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, "Bob", user.Name)
	assert.False(t, user.HasPassword())

	userID, err := sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	m.userResponse = map[string]any{"login": "bob", "name": "Bobby", "email": "bob@example.com"}
	again, _, err := svc.OAuthLogin(context.Background(), "github", "auth-code-2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "Bobby", again.Name)

	m.userStatus = http.StatusInternalServerError
	_, _, err = svc.OAuthLogin(context.Background(), "github", "auth-code-3")
	assert.ErrorIs(t, err, da.ErrProviderExchangeFailed)
	var authErr *da.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "github", authErr.Provider)
}
