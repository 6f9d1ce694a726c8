//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// devauth.UserStore. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - User: user accounts keyed by user id
//   - UserEmail: email reservations keyed by normalized email
//
// Email uniqueness is enforced by writing the UserEmail reservation and the
// User entity in one transaction.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	users := gae.NewUserStore(client, "") // default namespace
package gae
