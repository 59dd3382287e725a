package authfilter

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
// Using a distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	// identityKey stores the authenticated *Identity in the context.
	identityKey contextKey = iota

	// requestIDKey stores the request correlation ID in the context.
	requestIDKey
)

// ContextWithIdentity returns a new context with the given Identity
// attached. The identity can later be retrieved with
// [IdentityFromContext].
//
// This is typically called by the HTTP middleware and gRPC interceptors
// after a successful [Filter.Authenticate].
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the Identity from the context. Returns
// the identity and true if present, or nil and false if no identity has
// been set.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok
}

// MustIdentityFromContext retrieves the Identity from the context,
// panicking if no identity is present. Use only in code paths that run
// strictly after the authentication middleware.
func MustIdentityFromContext(ctx context.Context) *Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("authfilter: no identity in context; ensure authentication middleware is configured")
	}
	return identity
}

// ContextWithRequestID returns a new context with the request
// correlation ID attached.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request correlation ID from the
// context. Returns the ID and true if present, or "" and false.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from the
// context. Returns the trace ID as a hex string and true if a valid
// trace is active, or "" and false otherwise. This lets operators link
// authentication decisions to distributed traces.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
