package devauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type userContextKey struct{}

// Guard resolves a bearer session token to a live user.
type Guard struct {
	Users    UserStore
	Sessions *SessionTokens

	// StoreTimeout bounds the user lookup. Defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration

	// AuthTokenHeaderName is the request header carrying the token.
	// Defaults to "Authorization".
	AuthTokenHeaderName string

	Logger *slog.Logger
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Authenticate verifies the authorization header value and loads the user
// it names. Failures are ErrMissingToken, ErrUnauthenticated,
// ErrUserNoLongerExists or ErrStoreUnavailable.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (*User, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, ErrMissingToken
	}

	userID, err := g.Sessions.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, NewAuthError(ErrCodeUnauthenticated, "Your token has expired. Please log in again", "").WithCause(err)
		}
		return nil, ErrUnauthenticated.WithCause(err)
	}

	timeout := g.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	user, err := g.Users.FindByID(lookupCtx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNoLongerExists
		}
		g.logger().Error("guard user lookup failed", "user_id", userID, "err", err)
		return nil, storeFailure(err)
	}
	return user, nil
}

// Middleware rejects requests without a valid session and makes the user
// available to next through UserFromContext.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	header := g.AuthTokenHeaderName
	if header == "" {
		header = "Authorization"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Authenticate(r.Context(), r.Header.Get(header))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// ContextWithUser returns a copy of ctx carrying user.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user attached by the guard, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
