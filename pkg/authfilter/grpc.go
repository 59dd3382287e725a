package authfilter

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// metadataAuthorization is the incoming metadata key carrying the
// bearer token. gRPC metadata keys are lowercase.
const metadataAuthorization = "authorization"

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates every request through the filter.
//
// The bearer token is read from the "authorization" metadata value. On
// success the validated [Identity] is stored in the handler context.
// Rejections map to gRPC status codes: Unavailable when the key service
// is down, Unauthenticated for everything else, with the rejection
// category as the status message.
func UnaryServerInterceptor(filter *Filter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, filter)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor
// performing the same authentication as [UnaryServerInterceptor],
// wrapping the stream so handlers see the identity-enriched context.
func StreamServerInterceptor(filter *Filter) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), filter)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticateGRPC runs the filter against incoming metadata and
// returns the context enriched with the validated identity.
func authenticateGRPC(ctx context.Context, filter *Filter) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}

	var header string
	if values := md.Get(metadataAuthorization); len(values) > 0 {
		header = values[0]
	}

	identity, err := filter.Authenticate(ctx, header)
	if err != nil {
		return ctx, status.Error(grpcCode(err), ngerr.GetCode(err).Label())
	}

	return ContextWithIdentity(ctx, identity), nil
}

// grpcCode maps a rejection to its gRPC status code.
func grpcCode(err error) codes.Code {
	if ngerr.IsUnavailable(err) {
		return codes.Unavailable
	}
	return codes.Unauthenticated
}

// wrappedServerStream wraps a grpc.ServerStream to override its Context
// method, since ServerStream.Context() returns the original stream
// context without the identity added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the identity-enriched context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
