// Package devauth provides identity and session management: password
// accounts, password reset, sign-in through Google, GitHub and LinkedIn,
// and a guard that turns bearer session tokens back into users.
//
// # Architecture
//
// Every sign-in method converges on one User record keyed by lowercased
// email and on one stateless session token format (HS256 JWT).
//
// Service: signup, login, password change, reset and provider sign-in.
// It owns no state beyond its UserStore and signing key.
//
// UserStore: persistence contract. Implementations live under stores/
// (file system, GORM, Cloud Datastore, PostgreSQL via pgx).
//
// ProviderClient: one OAuth2 provider. Implementations live in oauth2/.
//
// Guard: verifies "Authorization: Bearer <token>" and loads the user.
// The HTTP middleware and the gRPC interceptors in grpc/ both use it.
//
// # Basic Usage
//
//	users := fs.NewUserStore("/var/lib/devauth")
//	sessions, _ := devauth.NewSessionTokens(secret, 24*time.Hour)
//	svc := devauth.NewService(users, sessions)
//	svc.RegisterProvider(oauth2.NewGitHub(oauth2.Config{...}))
//
//	api := &devauth.HTTPAuth{Service: svc, ResetURL: "https://app.example.com/reset"}
//	http.ListenAndServe(":8080", api.Handler())
//
// # Errors
//
// Operations fail with *AuthError values that can be matched with
// errors.Is against the exported sentinels:
//
//	if errors.Is(err, devauth.ErrDuplicateEmail) { ... }
//
// Store implementations report ErrUserNotFound, ErrEmailConflict and
// ErrBackendFailure; the service translates them.
package devauth
