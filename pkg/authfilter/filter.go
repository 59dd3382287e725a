// Package authfilter implements the gateway's token-authentication
// filter: it parses bearer tokens, verifies their RS256 signatures
// against the provider's published keys, validates the registered
// claims, and produces either an [Identity] for the upstream request or
// a structured rejection.
//
// The filter composes the pieces of this module:
//
//	header -> ParseToken -> checkHeader -> jwks.KeyCache.Lookup
//	       -> SignatureVerifier.Verify -> checkClaims -> Identity
//
// Every rejection carries an error code from pkg/errors; the HTTP
// middleware and gRPC interceptors translate those codes into wire
// responses. The [Filter] is safe for concurrent use.
package authfilter

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
	"github.com/StricklySoft/nexus-gateway-auth/pkg/jwks"
)

// tracerName is the OpenTelemetry instrumentation scope name for
// authentication spans.
const tracerName = "github.com/StricklySoft/nexus-gateway-auth/pkg/authfilter"

// KeyLookup resolves a kid to a signing key. It is implemented by
// [jwks.KeyCache]; tests substitute static lookups.
type KeyLookup interface {
	Lookup(ctx context.Context, kid string) (jwks.SigningKey, error)
}

// Option configures a [Filter] beyond its Config.
type Option func(*Filter)

// WithKeyLookup replaces the provider-backed key cache, bypassing the
// JWKS wiring entirely. Intended for tests.
func WithKeyLookup(keys KeyLookup) Option {
	return func(f *Filter) { f.keys = keys }
}

// WithVerifier replaces the RS256 signature verifier.
func WithVerifier(verifier SignatureVerifier) Option {
	return func(f *Filter) { f.verifier = verifier }
}

// WithFilterLogger sets the logger passed to the key cache for fallback
// warnings. Defaults to [slog.Default].
func WithFilterLogger(logger *slog.Logger) Option {
	return func(f *Filter) { f.logger = logger }
}

// WithHTTPClient replaces the HTTP client used for JWKS fetches.
// Intended for tests.
func WithHTTPClient(client jwks.HTTPClient) Option {
	return func(f *Filter) { f.httpClient = client }
}

// WithSnapshotStore attaches a key set snapshot store to the key cache,
// overriding any SnapshotStoreURI in the config.
func WithSnapshotStore(store jwks.SnapshotStore) Option {
	return func(f *Filter) { f.store = store }
}

// Filter is the token-authentication filter. Create one per provider
// with [New] and share it across requests.
type Filter struct {
	cfg      Config
	keys     KeyLookup
	verifier SignatureVerifier
	tracer   trace.Tracer

	// Construction-time wiring, consumed by New.
	logger     *slog.Logger
	httpClient jwks.HTTPClient
	store      jwks.SnapshotStore
}

// New validates the configuration and wires the filter: a JWKS fetcher
// against the provider's certificate endpoint, a TTL key cache in front
// of it, the optional Redis snapshot store, and the RS256 verifier.
// The ctx is used only to connect the snapshot store when
// SnapshotStoreURI is set.
func New(ctx context.Context, cfg Config, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Filter{
		cfg:      cfg,
		verifier: RS256Verifier{},
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.keys == nil {
		if f.store == nil && cfg.SnapshotStoreURI != "" {
			store, err := jwks.NewRedisStoreFromURI(ctx, cfg.SnapshotStoreURI)
			if err != nil {
				return nil, err
			}
			f.store = store
		}

		fetcherOpts := []jwks.FetcherOption{
			jwks.WithTimeout(cfg.FetchTimeout),
			jwks.WithInsecureTLS(cfg.TLSInsecureSkipVerify),
		}
		if f.httpClient != nil {
			fetcherOpts = append(fetcherOpts, jwks.WithHTTPClient(f.httpClient))
		}
		fetcher := jwks.NewFetcher(cfg.JWKSEndpoint(), fetcherOpts...)

		cacheOpts := []jwks.CacheOption{
			jwks.WithTTL(cfg.CacheTTL),
			jwks.WithLogger(f.logger),
		}
		if f.store != nil {
			cacheOpts = append(cacheOpts, jwks.WithSnapshotStore(f.store))
		}
		f.keys = jwks.NewKeyCache(fetcher, cacheOpts...)
	}

	return f, nil
}

// Authenticate runs the full authentication decision for one request.
// The authorizationHeader is the raw Authorization header value; an
// empty value is rejected as [ngerr.CodeAuthentication].
//
// Checks run in a fixed order and short-circuit on the first failure:
// parse, algorithm, kid, key lookup, signature, expiry, issuer,
// audience. Only the key lookup can touch the network, and only when
// the cached key set has expired.
func (f *Filter) Authenticate(ctx context.Context, authorizationHeader string) (*Identity, error) {
	ctx, span := f.tracer.Start(ctx, "authfilter.Authenticate")
	defer span.End()

	raw := ExtractBearerToken(authorizationHeader)
	if raw == "" {
		return nil, f.reject(span, ngerr.Unauthorized("authfilter: missing bearer token"))
	}

	token, err := ParseToken(raw)
	if err != nil {
		return nil, f.reject(span, err)
	}

	kid, err := checkHeader(token, f.cfg.Algorithm)
	if err != nil {
		return nil, f.reject(span, err)
	}
	span.SetAttributes(attribute.String("auth.kid", kid))

	key, err := f.keys.Lookup(ctx, kid)
	if err != nil {
		return nil, f.reject(span, err)
	}

	if err := f.verifier.Verify(token.SignedContent, token.Signature, key.PublicKey); err != nil {
		return nil, f.reject(span, err)
	}

	if err := checkClaims(token.Claims, f.cfg.ExpectedIssuer, f.cfg.ExpectedAudience, time.Now()); err != nil {
		return nil, f.reject(span, err)
	}

	identity := identityFromClaims(token.Claims)
	span.SetAttributes(
		attribute.String("auth.subject", identity.Subject),
		attribute.String("auth.client_id", identity.ClientID),
	)
	return identity, nil
}

// Warm primes the key cache so that provider misconfiguration surfaces
// at startup instead of on the first request.
func (f *Filter) Warm(ctx context.Context) error {
	cache, ok := f.keys.(*jwks.KeyCache)
	if !ok {
		return nil
	}
	return cache.Refresh(ctx)
}

// reject records the rejection on the span and returns the error
// unchanged.
func (f *Filter) reject(span trace.Span, err error) error {
	span.SetAttributes(attribute.String("auth.code", ngerr.GetCode(err).String()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Compile-time assertion that jwks.KeyCache satisfies KeyLookup.
var _ KeyLookup = (*jwks.KeyCache)(nil)
