//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	da "github.com/developerus/devauth"
)

// Kind constants for Datastore entities
const (
	KindUser      = "User"
	KindUserEmail = "UserEmail"
)

// UserStore implements da.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", da.ErrBackendFailure, err)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*da.User, error) {
	if id == "" {
		return nil, da.ErrUserNotFound
	}
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, da.ErrUserNotFound
		}
		return nil, backendErr(err)
	}
	return entity.ToUser(), nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*da.User, error) {
	if email == "" {
		return nil, da.ErrUserNotFound
	}
	var reservation EmailEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUserEmail, email), &reservation); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, da.ErrUserNotFound
		}
		return nil, backendErr(err)
	}
	return s.FindByID(ctx, reservation.UserID)
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*da.User, error) {
	query := datastore.NewQuery(KindUser).
		FilterField("reset_token_hash", "=", hash).
		Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, da.ErrUserNotFound
	}
	if err != nil {
		return nil, backendErr(err)
	}
	user := entity.ToUser()
	if !user.Reset.ActiveAt(now) {
		return nil, da.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) Insert(ctx context.Context, user *da.User) error {
	emailKey := s.namespacedKey(KindUserEmail, user.Email)
	userKey := s.namespacedKey(KindUser, user.ID)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing EmailEntity
		err := tx.Get(emailKey, &existing)
		if err == nil {
			return da.ErrEmailConflict
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(emailKey, &EmailEntity{Key: emailKey, UserID: user.ID, CreatedAt: user.CreatedAt}); err != nil {
			return err
		}
		_, err = tx.Put(userKey, UserToEntity(user, userKey, 1))
		return err
	})
	if err != nil {
		if errors.Is(err, da.ErrEmailConflict) {
			return da.ErrEmailConflict
		}
		return backendErr(err)
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, id string, patch da.UserPatch) (*da.User, error) {
	key := s.namespacedKey(KindUser, id)
	var out *da.User

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return da.ErrUserNotFound
			}
			return err
		}
		user := entity.ToUser()
		if !patch.Matches(user) {
			return da.ErrUserNotFound
		}
		patch.Apply(user)
		if _, err := tx.Put(key, UserToEntity(user, key, entity.Version+1)); err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		if errors.Is(err, da.ErrUserNotFound) {
			return nil, da.ErrUserNotFound
		}
		return nil, backendErr(err)
	}
	return out, nil
}
