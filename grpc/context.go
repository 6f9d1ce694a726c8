// Package grpc carries devauth sessions over gRPC: clients send the session
// token as "authorization: Bearer <token>" metadata and server interceptors
// verify it with a devauth.Guard.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	da "github.com/developerus/devauth"
)

// DefaultMetadataKeyAuthorization is the gRPC metadata key holding the
// bearer token. gRPC metadata keys are always lowercase.
const DefaultMetadataKeyAuthorization = "authorization"

// TokenToOutgoingContext attaches a session token to outgoing gRPC metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeyAuthorization)
}

// TokenToOutgoingContextWithKey attaches a session token under a custom key.
func TokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, "Bearer "+token)
}

// authorizationFromIncoming returns the first value of key in the incoming
// metadata, or "".
func authorizationFromIncoming(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// UserFromContext returns the user attached by the interceptors, or nil.
func UserFromContext(ctx context.Context) *da.User {
	return da.UserFromContext(ctx)
}

// UserIDFromContext returns the authenticated user's id, or "".
func UserIDFromContext(ctx context.Context) string {
	if user := da.UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}

// IsAuthenticated reports whether an interceptor attached a user to ctx.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
