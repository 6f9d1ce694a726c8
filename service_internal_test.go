package devauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type nopUserStore struct{ UserStore }

func TestStoreWritesRequireDigest(t *testing.T) {
	svc := (&Service{Users: nopUserStore{}, Hasher: NewHasher(bcrypt.MinCost, 1)}).EnsureDefaults()
	ctx := context.Background()
	now := time.Now()

	err := svc.insert(ctx, &User{ID: "u1", Email: "a@example.com", PasswordHash: "password1", CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, ErrPasswordNotHashed) {
		t.Errorf("insert: expected ErrPasswordNotHashed, got %v", err)
	}

	plain := "password1"
	if _, err := svc.update(ctx, "u1", UserPatch{PasswordHash: &plain}); !errors.Is(err, ErrPasswordNotHashed) {
		t.Errorf("update: expected ErrPasswordNotHashed, got %v", err)
	}
}
