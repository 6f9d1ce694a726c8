package fs

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/developerus/devauth/internal/fileutil"
)

// fsIndexEntry maps a unique key (an email or a reset digest) to a user id.
type fsIndexEntry struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// fsIndex is a directory of small JSON files, one per key.
//
// # File Structure
//
//	{StoragePath}/
//	└── emails/
//	    ├── alice%40example.com.json   # {"key": "alice@example.com", "user_id": "..."}
//	    └── ...
//
// # Concurrency Model
//
// Reservations are created with O_EXCL, so two writers racing for the same
// key (in one process or several) see exactly one winner.
type fsIndex struct {
	dir string
}

func (ix *fsIndex) path(key string) string {
	return filepath.Join(ix.dir, url.PathEscape(key)+".json")
}

// reserve claims key for userID. Returns os.ErrExist if the key is taken.
func (ix *fsIndex) reserve(key, userID string) error {
	data, err := json.Marshal(&fsIndexEntry{Key: key, UserID: userID, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	return fileutil.CreateExclusive(ix.path(key), data, 0600)
}

// put writes key -> userID unconditionally.
func (ix *fsIndex) put(key, userID string) error {
	if err := os.MkdirAll(ix.dir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(&fsIndexEntry{Key: key, UserID: userID, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(ix.path(key), data, 0600)
}

// lookup returns the user id for key, or "" if the key is unused.
func (ix *fsIndex) lookup(key string) (string, error) {
	data, err := os.ReadFile(ix.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var entry fsIndexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", err
	}
	return entry.UserID, nil
}

// release removes key. Missing keys are not an error.
func (ix *fsIndex) release(key string) error {
	err := os.Remove(ix.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
