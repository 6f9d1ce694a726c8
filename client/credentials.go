// Package client is a Go client for the devauth HTTP API. It keeps the
// session token per server in a CredentialStore and attaches it to requests.
package client

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServerCredential holds the session for a single server
type ServerCredential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the session token has expired
func (c *ServerCredential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && !time.Now().Before(c.ExpiresAt)
}

// newCredential reads subject and expiry from a session token without
// verifying it; the server is the only party holding the signing secret.
func newCredential(token, email string) *ServerCredential {
	cred := &ServerCredential{Token: token, UserEmail: email, CreatedAt: time.Now()}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil {
		cred.UserID = claims.Subject
		if claims.ExpiresAt != nil {
			cred.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	return cred
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*ServerCredential, error)

	SetCredential(serverURL string, cred *ServerCredential) error

	RemoveCredential(serverURL string) error

	// ListServers returns all server URLs with stored credentials
	ListServers() ([]string, error)

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// MemoryCredentialStore keeps credentials in process memory.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	servers map[string]*ServerCredential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{servers: map[string]*ServerCredential{}}
}

func (m *MemoryCredentialStore) GetCredential(serverURL string) (*ServerCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.servers[serverURL], nil
}

func (m *MemoryCredentialStore) SetCredential(serverURL string, cred *ServerCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[serverURL] = cred
	return nil
}

func (m *MemoryCredentialStore) RemoveCredential(serverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.servers, serverURL)
	return nil
}

func (m *MemoryCredentialStore) ListServers() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.servers))
	for k := range m.servers {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryCredentialStore) Save() error { return nil }
