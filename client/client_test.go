package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	da "github.com/developerus/devauth"
	"github.com/developerus/devauth/client"
	"github.com/developerus/devauth/stores/fs"
)

const testSecret = "client-test-secret-0123456789abcdef"

type linkCatcher struct {
	mu   sync.Mutex
	link string
}

func (l *linkCatcher) SendPasswordResetEmail(to, link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.link = link
	return nil
}

func (l *linkCatcher) token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.link[strings.LastIndex(l.link, "/")+1:]
}

func newServer(t *testing.T) (*httptest.Server, *da.Service, *linkCatcher) {
	t.Helper()
	sessions, err := da.NewSessionTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	svc := &da.Service{
		Users:    fs.NewUserStore(t.TempDir()),
		Sessions: sessions,
		Hasher:   da.NewHasher(bcrypt.MinCost, 0),
	}
	svc.EnsureDefaults()

	mail := &linkCatcher{}
	server := httptest.NewServer((&da.HTTPAuth{Service: svc, EmailSender: mail, ResetURL: "https://app.example.com/reset"}).Handler())
	t.Cleanup(server.Close)
	return server, svc, mail
}

func TestAuthClient_SignupAndMe(t *testing.T) {
	server, _, _ := newServer(t)
	store := client.NewMemoryCredentialStore()
	c := client.NewAuthClient(server.URL+"/ignored/path", store)
	ctx := context.Background()

	if c.IsLoggedIn() {
		t.Fatal("new client should not be logged in")
	}

	user, err := c.Signup(ctx, "A@Example.com", "password1")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.Email != "a@example.com" {
		t.Errorf("Email = %q, want a@example.com", user.Email)
	}

	cred, _ := c.Credential()
	if cred == nil || cred.UserID != user.ID || cred.UserEmail != "a@example.com" {
		t.Fatalf("unexpected stored credential: %+v", cred)
	}
	if time.Until(cred.ExpiresAt) <= 0 || time.Until(cred.ExpiresAt) > time.Hour {
		t.Errorf("ExpiresAt should come from the token, got %v", cred.ExpiresAt)
	}

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.ID != user.ID {
		t.Errorf("Me().ID = %q, want %q", me.ID, user.ID)
	}
}

func TestAuthClient_APIErrors(t *testing.T) {
	server, _, _ := newServer(t)
	c := client.NewAuthClient(server.URL, client.NewMemoryCredentialStore())
	ctx := context.Background()

	c.Signup(ctx, "a@example.com", "password1")
	c.Logout()

	_, err := c.Login(ctx, "a@example.com", "wrong-password")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != da.ErrCodeIncorrectCredentials {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if c.IsLoggedIn() {
		t.Error("failed login must not store a session")
	}

	_, err = c.Signup(ctx, "b@example.com", "short")
	if !errors.As(err, &apiErr) || apiErr.Field != "password" {
		t.Errorf("expected field password, got %v", err)
	}

	_, err = c.Me(ctx)
	if !errors.As(err, &apiErr) || apiErr.Code != da.ErrCodeMissingToken {
		t.Errorf("expected missing_token, got %v", err)
	}
}

func TestAuthClient_PasswordReset(t *testing.T) {
	server, _, mail := newServer(t)
	c := client.NewAuthClient(server.URL, client.NewMemoryCredentialStore())
	ctx := context.Background()

	c.Signup(ctx, "a@example.com", "password1")
	c.Logout()

	if err := c.ForgotPassword(ctx, "a@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}
	if _, err := c.ResetPassword(ctx, mail.token(), "newpass123"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if !c.IsLoggedIn() {
		t.Error("reset should sign the client in")
	}

	if err := c.ChangePassword(ctx, "newpass123", "newpass456"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	c.Logout()
	if _, err := c.Login(ctx, "a@example.com", "newpass456"); err != nil {
		t.Errorf("Login() with changed password error = %v", err)
	}
}

func TestAuthClient_ForgetsDeadSession(t *testing.T) {
	server, svc, _ := newServer(t)
	store := client.NewMemoryCredentialStore()
	c := client.NewAuthClient(server.URL, store)
	ctx := context.Background()

	// A well-formed session for an account that does not exist.
	orphan, _ := svc.Sessions.Issue("gone")
	store.SetCredential(c.ServerURL(), &client.ServerCredential{Token: orphan, ExpiresAt: time.Now().Add(time.Hour)})

	_, err := c.Me(ctx)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != da.ErrCodeUserNoLongerExists {
		t.Fatalf("expected user_no_longer_exists, got %v", err)
	}
	if c.IsLoggedIn() {
		t.Error("dead session should be dropped")
	}
}

func TestAuthClient_PathPrefix(t *testing.T) {
	sessions, _ := da.NewSessionTokens(testSecret, time.Hour)
	svc := (&da.Service{Users: fs.NewUserStore(t.TempDir()), Sessions: sessions, Hasher: da.NewHasher(bcrypt.MinCost, 0)}).EnsureDefaults()
	server := httptest.NewServer((&da.HTTPAuth{Service: svc, PathPrefix: "/auth"}).Handler())
	defer server.Close()

	c := client.NewAuthClient(server.URL, client.NewMemoryCredentialStore(), client.WithPathPrefix("auth/"))
	if _, err := c.Signup(context.Background(), "p@example.com", "password1"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
}

func TestServerCredential_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"expired", time.Now().Add(-time.Hour), true},
		{"not expired", time.Now().Add(time.Hour), false},
		{"unknown expiry", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &client.ServerCredential{ExpiresAt: tt.expiresAt}
			if got := c.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthTransport(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	hc := &http.Client{Transport: client.NewAuthTransport("abc")}
	resp, err := hc.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != "Bearer abc" {
		t.Errorf("Authorization = %q, want Bearer abc", got)
	}
}
