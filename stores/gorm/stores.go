//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	da "github.com/developerus/devauth"
)

// AutoMigrate runs database migrations for the devauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// UserStore implements da.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", da.ErrBackendFailure, err)
}

// isDuplicate recognizes unique violations whether or not the dialector
// translates errors.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*da.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, da.ErrUserNotFound
		}
		return nil, backendErr(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*da.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*da.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*da.User, error) {
	return s.first(ctx, "reset_token_hash = ? AND reset_expires_at > ?", hash, now)
}

func (s *UserStore) Insert(ctx context.Context, user *da.User) error {
	if err := s.db.WithContext(ctx).Create(UserToModel(user)).Error; err != nil {
		if isDuplicate(err) {
			return da.ErrEmailConflict
		}
		return backendErr(err)
	}
	return nil
}

// Update applies patch with a single conditional UPDATE and reloads the
// row in the same transaction.
func (s *UserStore) Update(ctx context.Context, id string, patch da.UserPatch) (*da.User, error) {
	var out UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&UserModel{}).Where("id = ?", id)
		if patch.ExpectResetHash != "" {
			q = q.Where("reset_token_hash = ? AND reset_expires_at > ?", patch.ExpectResetHash, patch.ExpectResetAt)
		}
		cols := patchColumns(&patch)
		if len(cols) > 0 {
			res := q.Updates(cols)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, da.ErrUserNotFound
		}
		return nil, backendErr(err)
	}
	return out.ToUser(), nil
}
