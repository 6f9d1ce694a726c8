// Package fs keeps CLI sessions in a JSON file, one per server.
package fs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/developerus/devauth/client"
	"github.com/developerus/devauth/internal/fileutil"
)

// DefaultAppName names the config subdirectory when none is given.
const DefaultAppName = "devauth"

// FSCredentialStore is a client.CredentialStore backed by a single 0600
// JSON file. Expired sessions are dropped on load and on lookup, so a
// stale token is never sent to a server.
type FSCredentialStore struct {
	mu    sync.RWMutex
	path  string
	creds map[string]*client.ServerCredential
	dirty bool
}

type credentialFile struct {
	Servers map[string]*client.ServerCredential `json:"servers"`
}

// NewFSCredentialStore opens the store at path, or at
// <user config dir>/<appName>/credentials.json when path is empty. A
// missing file is an empty store.
func NewFSCredentialStore(path, appName string) (*FSCredentialStore, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		if appName == "" {
			appName = DefaultAppName
		}
		path = filepath.Join(dir, appName, "credentials.json")
	}

	s := &FSCredentialStore{path: path, creds: map[string]*client.ServerCredential{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func configDir() (string, error) {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(home, ".config"), nil
}

func (s *FSCredentialStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	for key, cred := range file.Servers {
		if cred == nil || cred.IsExpired() {
			// Rewritten without it on the next Save.
			s.dirty = true
			continue
		}
		s.creds[key] = cred
	}
	return nil
}

// serverKey reduces a URL to scheme://host. A bare host is taken as https.
func serverKey(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host, nil
}

// GetCredential returns the live session for serverURL, or nil. An expired
// session is forgotten as a side effect.
func (s *FSCredentialStore) GetCredential(serverURL string) (*client.ServerCredential, error) {
	key, err := serverKey(serverURL)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cred := s.creds[key]
	s.mu.RUnlock()
	if cred == nil || !cred.IsExpired() {
		return cred, nil
	}

	s.mu.Lock()
	if s.creds[key] == cred {
		delete(s.creds, key)
		s.dirty = true
	}
	s.mu.Unlock()
	return nil, nil
}

func (s *FSCredentialStore) SetCredential(serverURL string, cred *client.ServerCredential) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[key] = cred
	s.dirty = true
	return nil
}

func (s *FSCredentialStore) RemoveCredential(serverURL string) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[key]; ok {
		delete(s.creds, key)
		s.dirty = true
	}
	return nil
}

// ListServers returns the keys of all stored sessions in sorted order.
func (s *FSCredentialStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.creds))
	for k := range s.creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Save writes the file if anything changed since it was loaded.
func (s *FSCredentialStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(credentialFile{Servers: s.creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	if err := fileutil.WriteAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FSCredentialStore) Path() string {
	return s.path
}
