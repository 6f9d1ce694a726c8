package devauth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultHashCost   = 12
	MinPasswordLength = 8

	// bcrypt ignores input past 72 bytes.
	MaxPasswordBytes = 72
)

// ErrPasswordNotHashed is returned when a password field headed for the
// store is not a bcrypt digest. Plaintext never reaches a UserStore.
var ErrPasswordNotHashed = errors.New("refusing to store a password that is not a bcrypt digest")

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Hasher hashes and verifies passwords with bcrypt. Concurrent bcrypt
// work is bounded so a burst of logins cannot occupy every CPU.
type Hasher struct {
	Cost int
	sem  *semaphore.Weighted

	decoyOnce sync.Once
	decoy     []byte
}

// NewHasher creates a Hasher. cost <= 0 selects DefaultHashCost and
// maxConcurrent <= 0 selects GOMAXPROCS.
func NewHasher(cost int, maxConcurrent int) *Hasher {
	if cost <= 0 {
		cost = DefaultHashCost
	}
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	return &Hasher{Cost: cost, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Hash returns a salted bcrypt digest of plaintext. Any string within the
// length bounds is a valid password, including one shaped like a digest.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a
// mismatch, not an error. The error is non-nil only if ctx ends while
// waiting for a hashing slot.
func (h *Hasher) Verify(ctx context.Context, plaintext, digest string) (bool, error) {
	if digest == "" {
		return false, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil, nil
}

// VerifyDecoy spends the same time as a real Verify against a throwaway
// digest. Login calls it for unknown emails.
func (h *Hasher) VerifyDecoy(ctx context.Context, plaintext string) error {
	h.decoyOnce.Do(func() {
		h.decoy, _ = bcrypt.GenerateFromPassword([]byte("devauth-decoy-password"), h.Cost)
	})
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)
	bcrypt.CompareHashAndPassword(h.decoy, []byte(plaintext))
	return nil
}

// IsPasswordHash reports whether s parses as a bcrypt digest.
func IsPasswordHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// ValidatePassword checks length bounds for a new password.
func ValidatePassword(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength && len(password) <= MaxPasswordBytes
}

// ValidateEmail checks the format of a normalized email.
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}
