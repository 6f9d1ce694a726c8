package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	da "github.com/developerus/devauth"
	"github.com/developerus/devauth/internal/fileutil"
)

// FSUser is the on-disk form of a user. Unlike devauth.User it serializes
// the password hash and the pending reset.
type FSUser struct {
	UserID            string     `json:"user_id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"password_hash,omitempty"`
	Name              string     `json:"name,omitempty"`
	PhotoURL          string     `json:"photo_url,omitempty"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	ResetTokenHash    string     `json:"reset_token_hash,omitempty"`
	ResetExpiresAt    *time.Time `json:"reset_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (u *FSUser) ToUser() *da.User {
	out := &da.User{
		ID:                u.UserID,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Name:              u.Name,
		PhotoURL:          u.PhotoURL,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	if u.ResetTokenHash != "" && u.ResetExpiresAt != nil {
		out.Reset = &da.PasswordReset{TokenHash: u.ResetTokenHash, ExpiresAt: *u.ResetExpiresAt}
	}
	return out
}

func UserToFS(u *da.User) *FSUser {
	out := &FSUser{
		UserID:            u.ID,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Name:              u.Name,
		PhotoURL:          u.PhotoURL,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	if u.Reset != nil {
		exp := u.Reset.ExpiresAt
		out.ResetTokenHash = u.Reset.TokenHash
		out.ResetExpiresAt = &exp
	}
	return out
}

// UserStore implements devauth.UserStore with JSON files. It is meant for
// development, tests and single-node deployments.
//
// # File Structure
//
//	{StoragePath}/
//	├── users/{id}.json          # FSUser records
//	├── emails/{email}.json      # unique email -> user id
//	└── resets/{digest}.json     # pending reset digest -> user id
//
// # Concurrency Model
//
// Within one process a read-write mutex serializes writes and keeps
// readers from seeing an email reserved before its record is written. This
// also makes the conditional reset update atomic. Email uniqueness also holds across
// processes because reservations use O_EXCL.
type UserStore struct {
	StoragePath string

	mu     sync.RWMutex
	emails *fsIndex
	resets *fsIndex
}

// NewUserStore creates a file-system backed user store rooted at storagePath.
func NewUserStore(storagePath string) *UserStore {
	return &UserStore{
		StoragePath: storagePath,
		emails:      &fsIndex{dir: filepath.Join(storagePath, "emails")},
		resets:      &fsIndex{dir: filepath.Join(storagePath, "resets")},
	}
}

func (s *UserStore) getUserPath(userID string) string {
	return filepath.Join(s.StoragePath, "users", userID+".json")
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", da.ErrBackendFailure, op, err)
}

func (s *UserStore) readUser(userID string) (*FSUser, error) {
	if userID == "" || filepath.Base(userID) != userID {
		return nil, da.ErrUserNotFound
	}
	data, err := os.ReadFile(s.getUserPath(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, da.ErrUserNotFound
		}
		return nil, backendErr("read user", err)
	}
	var user FSUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, backendErr("decode user", err)
	}
	return &user, nil
}

func (s *UserStore) writeUser(user *FSUser) error {
	path := s.getUserPath(user.UserID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return backendErr("mkdir", err)
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return backendErr("encode user", err)
	}
	if err := fileutil.WriteAtomic(path, data, 0600); err != nil {
		return backendErr("write user", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*da.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, backendErr("find by id", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, err := s.readUser(id)
	if err != nil {
		return nil, err
	}
	return user.ToUser(), nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*da.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, backendErr("find by email", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findIndexed(s.emails, email, "email index")
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*da.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, backendErr("find by reset", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, err := s.findIndexed(s.resets, hash, "reset index")
	if err != nil {
		return nil, err
	}
	if !user.Reset.ActiveAt(now) || user.Reset.TokenHash != hash {
		return nil, da.ErrUserNotFound
	}
	return user, nil
}

// findIndexed resolves key through idx to a user. Callers hold s.mu.
func (s *UserStore) findIndexed(idx *fsIndex, key, op string) (*da.User, error) {
	userID, err := idx.lookup(key)
	if err != nil {
		return nil, backendErr(op, err)
	}
	if userID == "" {
		return nil, da.ErrUserNotFound
	}
	record, err := s.readUser(userID)
	if err != nil {
		return nil, err
	}
	return record.ToUser(), nil
}

func (s *UserStore) Insert(ctx context.Context, user *da.User) error {
	if err := ctx.Err(); err != nil {
		return backendErr("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.emails.reserve(user.Email, user.ID); err != nil {
		if errors.Is(err, os.ErrExist) {
			return da.ErrEmailConflict
		}
		return backendErr("reserve email", err)
	}
	record := UserToFS(user)
	if err := s.writeUser(record); err != nil {
		s.emails.release(user.Email)
		return err
	}
	if record.ResetTokenHash != "" {
		if err := s.resets.put(record.ResetTokenHash, record.UserID); err != nil {
			return backendErr("reset index", err)
		}
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, id string, patch da.UserPatch) (*da.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, backendErr("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readUser(id)
	if err != nil {
		return nil, err
	}
	user := record.ToUser()
	if !patch.Matches(user) {
		return nil, da.ErrUserNotFound
	}

	oldReset := record.ResetTokenHash
	patch.Apply(user)
	updated := UserToFS(user)
	if err := s.writeUser(updated); err != nil {
		return nil, err
	}

	if oldReset != "" && oldReset != updated.ResetTokenHash {
		if err := s.resets.release(oldReset); err != nil {
			return nil, backendErr("reset index", err)
		}
	}
	if updated.ResetTokenHash != "" && updated.ResetTokenHash != oldReset {
		if err := s.resets.put(updated.ResetTokenHash, updated.UserID); err != nil {
			return nil, backendErr("reset index", err)
		}
	}
	return user, nil
}
