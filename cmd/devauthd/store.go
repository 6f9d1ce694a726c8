package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/datastore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	da "github.com/developerus/devauth"
	"github.com/developerus/devauth/config"
	"github.com/developerus/devauth/stores/fs"
	"github.com/developerus/devauth/stores/gae"
	gormstore "github.com/developerus/devauth/stores/gorm"
	pgstore "github.com/developerus/devauth/stores/postgres"
)

// openStore builds the configured UserStore and returns a func releasing
// its connections.
func openStore(ctx context.Context, cfg *config.Config) (da.UserStore, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case config.BackendFS:
		return fs.NewUserStore(cfg.Store.FSPath), noop, nil

	case config.BackendPostgres:
		if cfg.Store.RunMigrations {
			if err := pgstore.Migrate(ctx, cfg.Store.DSN); err != nil {
				return nil, nil, err
			}
		}
		pool, err := pgstore.NewPool(ctx, cfg.Store.DSN, pgstore.PoolConfig{
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
			ApplicationName: "devauthd",
		})
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewUserStore(pool), pool.Close, nil

	case config.BackendGORM:
		db, err := gorm.Open(postgres.Open(cfg.Store.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, fmt.Errorf("open gorm: %w", err)
		}
		if cfg.Store.RunMigrations {
			if err := gormstore.AutoMigrate(db); err != nil {
				return nil, nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewUserStore(db), closeDB, nil

	case config.BackendDatastore:
		client, err := datastore.NewClient(ctx, cfg.Store.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore client: %w", err)
		}
		return gae.NewUserStore(client, cfg.Store.DatastoreNamespace), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
