package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"

	da "github.com/developerus/devauth"
)

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok123")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	values := md.Get(DefaultMetadataKeyAuthorization)
	if len(values) != 1 || values[0] != "Bearer tok123" {
		t.Errorf("expected [\"Bearer tok123\"], got %v", values)
	}
}

func TestTokenToOutgoingContextWithKey(t *testing.T) {
	ctx := TokenToOutgoingContextWithKey(context.Background(), "tok123", "x-session")

	md, _ := metadata.FromOutgoingContext(ctx)
	if values := md.Get("x-session"); len(values) != 1 || values[0] != "Bearer tok123" {
		t.Errorf("expected token under custom key, got %v", values)
	}
}

func TestAuthorizationFromIncoming(t *testing.T) {
	if got := authorizationFromIncoming(context.Background(), DefaultMetadataKeyAuthorization); got != "" {
		t.Errorf("expected empty authorization without metadata, got %q", got)
	}

	md := metadata.Pairs("authorization", "Bearer abc")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if got := authorizationFromIncoming(ctx, DefaultMetadataKeyAuthorization); got != "Bearer abc" {
		t.Errorf("expected %q, got %q", "Bearer abc", got)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if UserIDFromContext(context.Background()) != "" {
		t.Error("expected empty user ID without a user")
	}
	if IsAuthenticated(context.Background()) {
		t.Error("expected IsAuthenticated to be false without a user")
	}

	ctx := da.ContextWithUser(context.Background(), &da.User{ID: "user123"})
	if got := UserIDFromContext(ctx); got != "user123" {
		t.Errorf("expected user ID %q, got %q", "user123", got)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected IsAuthenticated to be true")
	}
	if UserFromContext(ctx).ID != "user123" {
		t.Error("expected UserFromContext to return the attached user")
	}
}
