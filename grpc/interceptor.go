package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	da "github.com/developerus/devauth"
)

// Authenticator verifies an authorization value. *devauth.Guard implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*da.User, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	Authenticator Authenticator

	// MetadataKey is the metadata key holding the bearer token.
	// Defaults to "authorization".
	MetadataKey string

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed and UserFromContext returns nil
	// unless a valid token was sent.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods.
func NewInterceptorConfig(auth Authenticator) *InterceptorConfig {
	return &InterceptorConfig{
		Authenticator: auth,
		MetadataKey:   DefaultMetadataKeyAuthorization,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(auth Authenticator, publicMethods ...string) *InterceptorConfig {
	config := NewInterceptorConfig(auth)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(auth Authenticator) *InterceptorConfig {
	config := NewInterceptorConfig(auth)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKeyAuthorization
	}
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// bearer token and attaches the user to the handler's context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, info.FullMethod, config)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the
// bearer token and attaches the user to the stream's context.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), info.FullMethod, config)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

func authenticate(ctx context.Context, method string, config *InterceptorConfig) (context.Context, error) {
	required := config.RequireAuth && !config.PublicMethods[method]
	authorization := authorizationFromIncoming(ctx, config.MetadataKey)
	if authorization == "" {
		if required {
			return ctx, toStatus(da.ErrMissingToken)
		}
		return ctx, nil
	}

	user, err := config.Authenticator.Authenticate(ctx, authorization)
	if err != nil {
		if required {
			return ctx, toStatus(err)
		}
		return ctx, nil
	}
	return da.ContextWithUser(ctx, user), nil
}

// toStatus maps guard failures onto gRPC status codes.
func toStatus(err error) error {
	var ae *da.AuthError
	if !errors.As(err, &ae) {
		return status.Error(codes.Internal, "authentication failed")
	}
	if ae.Code == da.ErrCodeStoreUnavailable {
		return status.Error(codes.Unavailable, ae.Message)
	}
	return status.Error(codes.Unauthenticated, ae.Message)
}
