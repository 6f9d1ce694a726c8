package fs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/developerus/devauth/client"
)

func newStore(t *testing.T) (*FSCredentialStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devauth", "credentials.json")
	store, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	return store, path
}

func TestFSCredentialStore_GetSetRemove(t *testing.T) {
	store, _ := newStore(t)

	if cred, err := store.GetCredential("http://localhost:8080"); err != nil || cred != nil {
		t.Fatalf("expected no credential, got %+v, %v", cred, err)
	}

	cred := &client.ServerCredential{Token: "tok", UserEmail: "a@example.com", ExpiresAt: time.Now().Add(time.Hour)}
	store.SetCredential("http://localhost:8080/api/v1/user", cred)
	store.SetCredential("http://localhost:9090", cred)

	// Keys are normalized to scheme and host.
	got, _ := store.GetCredential("http://localhost:8080")
	if got == nil || got.Token != "tok" {
		t.Fatalf("expected credential, got %+v", got)
	}

	servers, _ := store.ListServers()
	if len(servers) != 2 {
		t.Errorf("len(servers) = %d, want 2", len(servers))
	}

	store.RemoveCredential("http://localhost:8080")
	if got, _ := store.GetCredential("http://localhost:8080"); got != nil {
		t.Error("credential should be removed")
	}
	if got, _ := store.GetCredential("http://localhost:9090"); got == nil {
		t.Error("other credential should still exist")
	}
}

func TestFSCredentialStore_SaveAndReload(t *testing.T) {
	store, path := newStore(t)
	store.SetCredential("http://localhost:8080", &client.ServerCredential{
		Token:     "persisted",
		UserID:    "u1",
		UserEmail: "a@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("credentials file not created: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("file permissions = %o, want 0600", mode)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".credentials.json-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}

	reloaded, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	cred, _ := reloaded.GetCredential("http://localhost:8080")
	if cred == nil || cred.Token != "persisted" || cred.UserID != "u1" {
		t.Errorf("unexpected reloaded credential: %+v", cred)
	}
}

func TestFSCredentialStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	os.WriteFile(path, []byte("{not json"), 0600)
	if _, err := NewFSCredentialStore(path, ""); err == nil {
		t.Error("expected an error for a corrupt credentials file")
	}
}

func TestFSCredentialStore_DefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	store, err := NewFSCredentialStore("", "testapp")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	if filepath.Base(filepath.Dir(store.Path())) != "testapp" {
		t.Logf("path = %s (app name dir may vary by platform)", store.Path())
	}
}

func TestFSCredentialStore_DropsExpiredOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	file := credentialFile{Servers: map[string]*client.ServerCredential{
		"http://stale:8080": {Token: "old", ExpiresAt: time.Now().Add(-time.Minute)},
		"http://live:8080":  {Token: "new", ExpiresAt: time.Now().Add(time.Hour)},
		"http://forever":    {Token: "no-expiry"},
	}}
	data, _ := json.Marshal(file)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	if cred, _ := store.GetCredential("http://stale:8080"); cred != nil {
		t.Errorf("expired credential should be dropped, got %+v", cred)
	}
	servers, _ := store.ListServers()
	if len(servers) != 2 || servers[0] != "http://forever" || servers[1] != "http://live:8080" {
		t.Errorf("ListServers() = %v, want [http://forever http://live:8080]", servers)
	}

	// Loading pruned something, so Save rewrites the file without it.
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	var saved credentialFile
	raw, _ := os.ReadFile(path)
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatal(err)
	}
	if _, ok := saved.Servers["http://stale:8080"]; ok || len(saved.Servers) != 2 {
		t.Errorf("saved servers = %v, want the two live ones", saved.Servers)
	}
}

func TestFSCredentialStore_GetDropsExpired(t *testing.T) {
	store, path := newStore(t)
	cred := &client.ServerCredential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	store.SetCredential("http://localhost:8080", cred)
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cred.ExpiresAt = time.Now().Add(-time.Second)
	if got, err := store.GetCredential("http://localhost:8080"); err != nil || got != nil {
		t.Fatalf("expected expired credential to be hidden, got %+v, %v", got, err)
	}
	if servers, _ := store.ListServers(); len(servers) != 0 {
		t.Errorf("expired credential should be forgotten, still have %v", servers)
	}

	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reloaded, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	if servers, _ := reloaded.ListServers(); len(servers) != 0 {
		t.Errorf("expired credential should not survive a save, got %v", servers)
	}
}

func TestFSCredentialStore_SaveUnchanged(t *testing.T) {
	store, path := newStore(t)
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Save with nothing to write should not create %s", path)
	}
}
