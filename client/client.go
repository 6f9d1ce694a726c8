package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultPathPrefix is where devauthd mounts the user routes.
const DefaultPathPrefix = "/api/v1/user"

const maxErrorBody = 64 << 10

// User is the account as returned by the server.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name,omitempty"`
	PhotoURL          string     `json:"photo_url,omitempty"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status   int
	Code     string
	Message  string
	Field    string
	Provider string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("devauth: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("devauth: %s: %s", e.Code, e.Message)
}

type errorBody struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Error    string `json:"error"`
	Field    string `json:"field"`
	Provider string `json:"provider"`
}

type sessionResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Data   struct {
		User *User `json:"user"`
	} `json:"data"`
}

// AuthClient talks to a devauth server and remembers its session
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	pathPrefix    string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPathPrefix sets where the user routes are mounted
func WithPathPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.pathPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for the server at serverURL
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		pathPrefix:    DefaultPathPrefix,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &storeTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns an HTTP client that sends the stored session
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Token returns the stored session token, or "" when there is none or it
// has expired.
func (c *AuthClient) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.IsExpired() {
		return "", err
	}
	return cred.Token, nil
}

// Credential returns the stored credential for this server
func (c *AuthClient) Credential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (c *AuthClient) IsLoggedIn() bool {
	token, err := c.Token()
	return err == nil && token != ""
}

// Signup creates a password account and stores its session
func (c *AuthClient) Signup(ctx context.Context, email, password string) (*User, error) {
	return c.session(ctx, http.MethodPost, "/signup", map[string]string{"email": email, "password": password})
}

// Login signs in with email and password and stores the session
func (c *AuthClient) Login(ctx context.Context, email, password string) (*User, error) {
	return c.session(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password})
}

// CompleteOAuth forwards an authorization code the caller received on its
// redirect URL and stores the resulting session.
func (c *AuthClient) CompleteOAuth(ctx context.Context, provider, code string) (*User, error) {
	path := "/oauth/" + url.PathEscape(provider) + "?" + url.Values{"code": {code}}.Encode()
	return c.session(ctx, http.MethodGet, path, nil)
}

// ForgotPassword asks the server to email a reset link
func (c *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/forgotPassword", map[string]string{"email": email}, nil)
}

// ResetPassword consumes a reset token and stores the new session
func (c *AuthClient) ResetPassword(ctx context.Context, token, password string) (*User, error) {
	return c.session(ctx, http.MethodPost, "/resetPassword/"+url.PathEscape(token), map[string]string{"password": password})
}

// ChangePassword changes the signed-in user's password and stores the
// session the server returns.
func (c *AuthClient) ChangePassword(ctx context.Context, current, next string) error {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPatch, "/password", map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}, &resp)
	if err != nil {
		return err
	}
	old, _ := c.Credential()
	email := ""
	if old != nil {
		email = old.UserEmail
	}
	return c.remember(newCredential(resp.Token, email))
}

// Me returns the signed-in user
func (c *AuthClient) Me(ctx context.Context) (*User, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.User, nil
}

// Logout removes the credential for this server. Sessions are stateless so
// the server is not contacted.
func (c *AuthClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

func (c *AuthClient) forget() {
	c.Logout()
}

func (c *AuthClient) remember(cred *ServerCredential) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (c *AuthClient) session(ctx context.Context, method, path string, body any) (*User, error) {
	var resp sessionResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.Data.User == nil {
		return nil, fmt.Errorf("invalid response from server: missing session")
	}
	if err := c.remember(newCredential(resp.Token, resp.Data.User.Email)); err != nil {
		return nil, err
	}
	return resp.Data.User, nil
}

func (c *AuthClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.pathPrefix+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e errorBody
		if json.Unmarshal(data, &e) == nil {
			apiErr.Code, apiErr.Field, apiErr.Provider = e.Code, e.Field, e.Provider
			if e.Error != "" {
				apiErr.Message = e.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
