//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of devauth.UserStore.
// It supports any database GORM supports and is suitable for production
// deployments requiring relational storage.
//
// # Database Schema
//
// AutoMigrate creates a single users table with a unique index on email
// and an index on the reset token digest.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	users := gormstore.NewUserStore(db)
package gorm
