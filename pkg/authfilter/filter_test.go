package authfilter

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/nexus-gateway-auth/internal/testutil"
	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// authTestGenerateRSAKey generates a 2048-bit RSA key pair for testing.
func authTestGenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")
	return key
}

// authTestSignToken creates an RS256-signed JWT with the given claims
// and kid.
func authTestSignToken(t *testing.T, key *rsa.PrivateKey, kid string, claims map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	if kid != "" {
		token.Header["kid"] = kid
	}
	raw, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return raw
}

// authTestJWKSServer starts an httptest.Server serving a JWKS document
// for the given RSA public keys on the Keycloak certificate path,
// counting requests in hits.
func authTestJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	var entries []map[string]any
	for kid, pub := range keys {
		entries = append(entries, map[string]any{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	doc, err := json.Marshal(map[string]any{"keys": entries})
	require.NoError(t, err, "failed to marshal JWKS document")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/nexus/protocol/openid-connect/certs", r.URL.Path)
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// authTestConfig returns a valid Config pointed at the given provider
// base URL.
func authTestConfig(providerURL string) Config {
	return Config{
		ProviderURL:      providerURL,
		Realm:            "nexus",
		ExpectedIssuer:   testIssuer,
		ExpectedAudience: testAudience,
		Algorithm:        "RS256",
		CacheTTL:         time.Hour,
		FetchTimeout:     5 * time.Second,
	}
}

// authTestClaims returns a claim set accepted by authTestConfig.
func authTestClaims() map[string]any {
	return map[string]any{
		"sub":                "user-42",
		"iss":                testIssuer,
		"aud":                testAudience,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"azp":                "web-app",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"realm_access":       map[string]any{"roles": []any{"admin"}},
	}
}

// authTestFilter wires a filter against a counting JWKS server for the
// given signing keys.
func authTestFilter(t *testing.T, keys map[string]*rsa.PublicKey, hits *atomic.Int32) *Filter {
	t.Helper()
	srv := authTestJWKSServer(t, keys, hits)
	filter, err := New(context.Background(), authTestConfig(srv.URL))
	require.NoError(t, err, "failed to create filter")
	return filter
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestAuthenticate_AllowsValidToken(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	raw := authTestSignToken(t, key, "key-1", authTestClaims())
	identity, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	require.NoError(t, err)

	assert.Equal(t, "user-42", identity.Subject)
	assert.Equal(t, "web-app", identity.ClientID)
	assert.Equal(t, "jdoe", identity.Username)
	assert.Equal(t, "jdoe@example.com", identity.Email)
	assert.Equal(t, []string{"admin"}, identity.Roles)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &hits)

	_, err := filter.Authenticate(context.Background(), "")
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthentication)
	assert.Equal(t, int32(0), hits.Load(), "missing header must be rejected before any network I/O")
}

func TestAuthenticate_MalformedTokenRejectedBeforeNetwork(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &hits)

	_, err := filter.Authenticate(context.Background(), "Bearer only.two")
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthMalformedToken)
	assert.Equal(t, int32(0), hits.Load(), "malformed token must be rejected before any network I/O")
}

func TestAuthenticate_UnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &hits)

	raw := tokenTestCompact(`{"alg":"none","kid":"key-1"}`, `{"sub":"user-42"}`)
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthUnsupportedAlgorithm)
	assert.Equal(t, int32(0), hits.Load())
}

func TestAuthenticate_MissingKid(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &hits)

	raw := authTestSignToken(t, key, "", authTestClaims())
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthMissingKeyID)
	assert.Equal(t, int32(0), hits.Load())
}

func TestAuthenticate_UnknownKid(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	raw := authTestSignToken(t, key, "rotated-away", authTestClaims())
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthKeyNotFound)
}

func TestAuthenticate_InvalidSignature(t *testing.T) {
	t.Parallel()

	publishedKey := authTestGenerateRSAKey(t)
	attackerKey := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &publishedKey.PublicKey}, nil)

	// Signed by a key the provider never published, but claiming the
	// published kid.
	raw := authTestSignToken(t, attackerKey, "key-1", authTestClaims())
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthInvalidSignature)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	claims := authTestClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	raw := authTestSignToken(t, key, "key-1", claims)
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthExpired)
}

func TestAuthenticate_ExpiryBoundaryIsExpired(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	// exp equal to the decision time is already expired; by the time
	// the claim check runs, now has only moved further past it.
	claims := authTestClaims()
	claims["exp"] = time.Now().Unix()
	raw := authTestSignToken(t, key, "key-1", claims)
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthExpired)
}

func TestAuthenticate_ExpiryCheckedBeforeIssuer(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	claims := authTestClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	claims["iss"] = "https://evil.example.com"
	raw := authTestSignToken(t, key, "key-1", claims)
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthExpired)
}

func TestAuthenticate_WrongIssuer(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	claims := authTestClaims()
	claims["iss"] = "https://keycloak.example.com/realms/other"
	raw := authTestSignToken(t, key, "key-1", claims)
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthInvalidIssuer)
}

func TestAuthenticate_WrongAudience(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	claims := authTestClaims()
	claims["aud"] = "other-service"
	raw := authTestSignToken(t, key, "key-1", claims)
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeAuthInvalidAudience)
}

func TestAuthenticate_AudienceArrayContainingExpected(t *testing.T) {
	t.Parallel()

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	claims := authTestClaims()
	claims["aud"] = []string{"account", testAudience}
	raw := authTestSignToken(t, key, "key-1", claims)
	identity, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.Subject)
}

func TestAuthenticate_SelectsMatchingKeyAmongSeveral(t *testing.T) {
	t.Parallel()

	key1 := authTestGenerateRSAKey(t)
	key2 := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{
		"key-1": &key1.PublicKey,
		"key-2": &key2.PublicKey,
	}, nil)

	raw := authTestSignToken(t, key2, "key-2", authTestClaims())
	identity, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.Subject)
}

func TestAuthenticate_SingleFetchAcrossManyRequests(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &hits)

	raw := authTestSignToken(t, key, "key-1", authTestClaims())
	for i := 0; i < 10; i++ {
		_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load(), "expected exactly one JWKS fetch within the TTL")
}

func TestAuthenticate_KeyServiceUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	filter, err := New(context.Background(), authTestConfig(url))
	require.NoError(t, err)

	key := authTestGenerateRSAKey(t)
	raw := authTestSignToken(t, key, "key-1", authTestClaims())
	_, err = filter.Authenticate(context.Background(), "Bearer "+raw)
	testutil.RequireErrorCode(t, err, ngerr.CodeKeyServiceUnavailable)
}

// TestAuthenticate_RecordsSpans installs a global tracer provider, so it
// must not run in parallel with itself across packages; within this
// package it restores the previous provider on cleanup.
func TestAuthenticate_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)

	raw := authTestSignToken(t, key, "key-1", authTestClaims())
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	require.NoError(t, err)

	_, err = filter.Authenticate(context.Background(), "Bearer not-a-jwt")
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	success := spans[0]
	assert.Equal(t, "authfilter.Authenticate", success.Name)
	assert.Contains(t, success.Attributes, attribute.String("auth.subject", "user-42"))
	assert.Contains(t, success.Attributes, attribute.String("auth.kid", "key-1"))

	rejection := spans[1]
	assert.Equal(t, otelcodes.Error, rejection.Status.Code)
	assert.Contains(t, rejection.Attributes, attribute.String("auth.code", "AUTH_002"))
}

// ---------------------------------------------------------------------------
// New / Warm
// ---------------------------------------------------------------------------

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "relative provider URL", mutate: func(c *Config) { c.ProviderURL = "keycloak.example.com" }},
		{name: "empty provider URL", mutate: func(c *Config) { c.ProviderURL = "" }},
		{name: "empty realm", mutate: func(c *Config) { c.Realm = "" }},
		{name: "empty expected issuer", mutate: func(c *Config) { c.ExpectedIssuer = "" }},
		{name: "empty expected audience", mutate: func(c *Config) { c.ExpectedAudience = "" }},
		{name: "unsupported algorithm", mutate: func(c *Config) { c.Algorithm = "HS256" }},
		{name: "zero cache TTL", mutate: func(c *Config) { c.CacheTTL = 0 }},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.FetchTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := authTestConfig("https://keycloak.example.com")
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg)
			testutil.AssertErrorCode(t, err, ngerr.CodeValidation)
		})
	}
}

func TestWarm_PrimesKeyCache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	key := authTestGenerateRSAKey(t)
	filter := authTestFilter(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &hits)

	require.NoError(t, filter.Warm(context.Background()))
	assert.Equal(t, int32(1), hits.Load())

	raw := authTestSignToken(t, key, "key-1", authTestClaims())
	_, err := filter.Authenticate(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "warmed cache must serve the first request without fetching")
}

func TestWarm_FailsOnUnreachableProvider(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	filter, err := New(context.Background(), authTestConfig(url))
	require.NoError(t, err)
	err = filter.Warm(context.Background())
	testutil.RequireErrorCode(t, err, ngerr.CodeKeyServiceUnavailable)
}

func TestConfigJWKSEndpoint(t *testing.T) {
	t.Parallel()

	cfg := authTestConfig("https://keycloak.example.com")
	assert.Equal(t,
		"https://keycloak.example.com/realms/nexus/protocol/openid-connect/certs",
		cfg.JWKSEndpoint())
}
