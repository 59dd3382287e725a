package jwks

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// DefaultFetchTimeout bounds a single JWKS request, independent of any
// deadline on the caller's context.
const DefaultFetchTimeout = 10 * time.Second

// maxJWKSResponseSize limits the JWKS response body to 1 MB to prevent
// resource exhaustion from a misbehaving provider.
const maxJWKSResponseSize = 1 << 20

// HTTPClient abstracts the HTTP client used for fetching the JWKS
// document. The standard [http.Client] satisfies this interface; tests
// inject counting or failing clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// JWKSEndpoint returns the certificate endpoint for a Keycloak-style
// provider: {base}/realms/{realm}/protocol/openid-connect/certs.
func JWKSEndpoint(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + realm + "/protocol/openid-connect/certs"
}

// FetcherOption configures a [Fetcher].
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default HTTP client. When set, the
// WithTimeout and WithInsecureTLS options have no effect on transport
// behavior; the injected client's own settings apply.
func WithHTTPClient(client HTTPClient) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// WithTimeout sets the per-fetch timeout. Values <= 0 leave the default
// of [DefaultFetchTimeout] in place.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithInsecureTLS disables TLS certificate verification on the default
// client. Intended for development setups with self-signed provider
// certificates.
func WithInsecureTLS(insecure bool) FetcherOption {
	return func(f *Fetcher) { f.insecureTLS = insecure }
}

// Fetcher retrieves the provider's JWKS document and converts it into
// usable signing keys. A Fetcher is stateless apart from its HTTP
// client and safe for concurrent use.
type Fetcher struct {
	endpoint    string
	timeout     time.Duration
	insecureTLS bool
	client      HTTPClient
}

// NewFetcher creates a Fetcher for the given JWKS endpoint URL. Use
// [JWKSEndpoint] to derive the URL from a provider base URL and realm.
func NewFetcher(endpoint string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		endpoint: endpoint,
		timeout:  DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if f.insecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		f.client = &http.Client{
			Timeout:   f.timeout,
			Transport: transport,
		}
	}
	return f
}

// Endpoint returns the JWKS URL this fetcher targets.
func (f *Fetcher) Endpoint() string { return f.endpoint }

// jwksDocument is the JSON structure of a JWKS endpoint response.
type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

// jwkEntry is a single key in a JWKS response. Only the fields needed
// for RSA key reconstruction are included.
type jwkEntry struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Fetch performs a single GET against the JWKS endpoint and returns the
// RSA signature keys it publishes, keyed by kid.
//
// Only keys with kty "RSA" and use "sig" (or no use field) are
// retained; entries with missing kids or malformed key material are
// skipped rather than failing the whole fetch. A non-2xx status,
// unparseable JSON, or transport failure returns an error.
//
// The request carries its own timeout in addition to any deadline
// already on ctx.
func (f *Fetcher) Fetch(ctx context.Context) (map[string]SigningKey, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to create request for %s: %w", f.endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks: request to %s failed: %w", f.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("jwks: endpoint %s returned status %d", f.endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to read response from %s: %w", f.endpoint, err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("jwks: failed to parse JWKS JSON from %s: %w", f.endpoint, err)
	}

	keys := make(map[string]SigningKey, len(doc.Keys))
	for _, entry := range doc.Keys {
		if entry.Kid == "" || entry.Kty != "RSA" {
			continue
		}
		if entry.Use != "" && entry.Use != "sig" {
			continue
		}
		pubKey, err := parseRSAPublicKey(entry.N, entry.E)
		if err != nil {
			continue // Skip malformed keys.
		}
		keys[entry.Kid] = SigningKey{
			KeyID:     entry.Kid,
			KeyType:   entry.Kty,
			Algorithm: entry.Alg,
			PublicKey: pubKey,
		}
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to decode RSA exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, fmt.Errorf("jwks: RSA modulus and exponent must not be empty")
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if e.BitLen() == 0 || e.BitLen() > 31 {
		return nil, fmt.Errorf("jwks: RSA exponent out of range")
	}

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
