// Package auth enforces API-key authentication and per-key rate limits for the gRPC and HTTP
// surfaces
package auth

import (
	"context"
	"errors"
	"sync"

	"basket_swap/internal/core"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	// MetadataKeyAPIKey is the metadata key (and HTTP header) carrying the API key
	MetadataKeyAPIKey = "x-api-key"

	// DefaultRateLimitPerKey is the default number of requests per second allowed per API key
	DefaultRateLimitPerKey = 100
)

var (
	errMissingKey  = errors.New("missing API key")
	errInvalidKey  = errors.New("invalid API key")
	errRateLimited = errors.New("rate limit exceeded for API key")
)

// APIKeyValidator validates API keys and manages rate limiting
type APIKeyValidator struct {
	validKeys     map[string]bool
	rateLimiters  map[string]*rate.Limiter
	rateLimit     int
	logger        core.ILogger
	mu            sync.RWMutex
	failureLogger core.ILogger
}

// NewAPIKeyValidator creates a validator. An empty key list disables authentication.
func NewAPIKeyValidator(apiKeys []string, rateLimit int, logger core.ILogger) *APIKeyValidator {
	validKeys := make(map[string]bool)
	for _, key := range apiKeys {
		if key != "" {
			validKeys[key] = true
		}
	}

	if rateLimit <= 0 {
		rateLimit = DefaultRateLimitPerKey
	}

	return &APIKeyValidator{
		validKeys:     validKeys,
		rateLimiters:  make(map[string]*rate.Limiter),
		rateLimit:     rateLimit,
		logger:        logger.WithField("component", "auth"),
		failureLogger: logger.WithField("component", "auth_failure"),
	}
}

// Enabled reports whether any key is configured
func (v *APIKeyValidator) Enabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.validKeys) > 0
}

// AddAPIKey adds a new API key to the validator (for key rotation)
func (v *APIKeyValidator) AddAPIKey(apiKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validKeys[apiKey] = true
	v.logger.Info("API key added")
}

// RemoveAPIKey removes an API key from the validator (for key rotation)
func (v *APIKeyValidator) RemoveAPIKey(apiKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.validKeys, apiKey)
	delete(v.rateLimiters, apiKey)
	v.logger.Info("API key removed")
}

// ValidateAPIKey checks if the API key is valid
func (v *APIKeyValidator) ValidateAPIKey(apiKey string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.validKeys[apiKey]
}

// CheckRateLimit takes one token from the key's bucket. Buckets hold rateLimit tokens and
// refill at rateLimit per second.
func (v *APIKeyValidator) CheckRateLimit(apiKey string) bool {
	v.mu.Lock()
	limiter, exists := v.rateLimiters[apiKey]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(v.rateLimit), v.rateLimit)
		v.rateLimiters[apiKey] = limiter
	}
	v.mu.Unlock()

	return limiter.Allow()
}

// authorize checks a presented key. The returned error is one of the package sentinels.
func (v *APIKeyValidator) authorize(apiKey, method, requestID, clientIP string) error {
	var err error
	switch {
	case apiKey == "":
		err = errMissingKey
	case !v.ValidateAPIKey(apiKey):
		err = errInvalidKey
	case !v.CheckRateLimit(apiKey):
		err = errRateLimited
	default:
		return nil
	}
	v.failureLogger.Warn("Authentication failed: "+err.Error(),
		"method", method,
		"request_id", requestID,
		"client_ip", clientIP)
	return err
}

func grpcStatus(err error) error {
	if errors.Is(err, errRateLimited) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	return status.Error(codes.Unauthenticated, err.Error())
}

type requestIDKey struct{}

// WithRequestID stores id in ctx, generating one when id is empty
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the request ID from the context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "unknown"
}

func grpcClientIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}
	return "unknown"
}

func apiKeyFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	keys := md.Get(MetadataKeyAPIKey)
	if len(keys) == 0 {
		return "", true
	}
	return keys[0], true
}

// UnaryServerInterceptor returns a gRPC unary interceptor for API key authentication
func (v *APIKeyValidator) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = WithRequestID(ctx, "")

		apiKey, ok := apiKeyFromMetadata(ctx)
		if !ok {
			v.failureLogger.Warn("Authentication failed: missing metadata",
				"method", info.FullMethod,
				"request_id", RequestID(ctx),
				"client_ip", grpcClientIP(ctx))
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		if err := v.authorize(apiKey, info.FullMethod, RequestID(ctx), grpcClientIP(ctx)); err != nil {
			return nil, grpcStatus(err)
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for API key authentication
func (v *APIKeyValidator) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := WithRequestID(ss.Context(), "")

		apiKey, ok := apiKeyFromMetadata(ctx)
		if !ok {
			v.failureLogger.Warn("Authentication failed: missing metadata",
				"method", info.FullMethod,
				"request_id", RequestID(ctx),
				"client_ip", grpcClientIP(ctx))
			return status.Error(codes.Unauthenticated, "missing metadata")
		}
		if err := v.authorize(apiKey, info.FullMethod, RequestID(ctx), grpcClientIP(ctx)); err != nil {
			return grpcStatus(err)
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// wrappedServerStream wraps grpc.ServerStream to allow context replacement
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
