package authfilter

import (
	"net/url"
	"time"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
	"github.com/StricklySoft/nexus-gateway-auth/pkg/jwks"
)

// Config holds the filter configuration. Load it through pkg/config to
// get defaults, file overrides, and environment variables:
//
//	cfg, err := config.New().
//	    WithEnvPrefix("AUTHFILTER").
//	    WithFile(os.Getenv("AUTHFILTER_CONFIG")).
//	    Load(&authfilter.Config{})
type Config struct {
	// ProviderURL is the base URL of the identity provider, e.g.
	// "https://keycloak.example.com".
	ProviderURL string `env:"PROVIDER_URL" yaml:"provider_url" json:"provider_url" required:"true"`

	// Realm is the provider realm whose keys sign the tokens.
	Realm string `env:"REALM" yaml:"realm" json:"realm" required:"true"`

	// ExpectedIssuer is the exact iss claim value accepted in tokens.
	ExpectedIssuer string `env:"EXPECTED_ISSUER" yaml:"expected_issuer" json:"expected_issuer" required:"true"`

	// ExpectedAudience is the audience the aud claim must equal or
	// contain.
	ExpectedAudience string `env:"EXPECTED_AUDIENCE" yaml:"expected_audience" json:"expected_audience" required:"true"`

	// Algorithm is the accepted signing algorithm. Only RS256 is
	// supported.
	Algorithm string `env:"ALGORITHM" envDefault:"RS256" yaml:"algorithm" json:"algorithm"`

	// CacheTTL is how long a fetched key set is served before being
	// refreshed from the provider.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"3600s" yaml:"cache_ttl" json:"cache_ttl"`

	// FetchTimeout bounds a single JWKS request to the provider.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s" yaml:"fetch_timeout" json:"fetch_timeout"`

	// TLSInsecureSkipVerify disables TLS certificate verification on
	// JWKS requests. Development setups only.
	TLSInsecureSkipVerify bool `env:"TLS_INSECURE_SKIP_VERIFY" envDefault:"false" yaml:"tls_insecure_skip_verify" json:"tls_insecure_skip_verify"`

	// SnapshotStoreURI, when set, is a redis:// URI for the shared key
	// set snapshot store. Empty disables the snapshot store.
	SnapshotStoreURI string `env:"SNAPSHOT_STORE_URI" yaml:"snapshot_store_uri,omitempty" json:"snapshot_store_uri,omitempty"`
}

// Validate implements the pkg/config Validator interface.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.ProviderURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ngerr.Newf(ngerr.CodeValidation,
			"authfilter: provider URL %q must be an absolute http(s) URL", c.ProviderURL)
	}
	if c.Realm == "" {
		return ngerr.New(ngerr.CodeValidation,
			"authfilter: realm must not be empty")
	}
	if c.ExpectedIssuer == "" {
		return ngerr.New(ngerr.CodeValidation,
			"authfilter: expected issuer must not be empty")
	}
	if c.ExpectedAudience == "" {
		return ngerr.New(ngerr.CodeValidation,
			"authfilter: expected audience must not be empty")
	}
	if c.Algorithm != "RS256" {
		return ngerr.Newf(ngerr.CodeValidation,
			"authfilter: unsupported algorithm %q, only RS256 is supported", c.Algorithm)
	}
	if c.CacheTTL <= 0 {
		return ngerr.New(ngerr.CodeValidation,
			"authfilter: cache TTL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return ngerr.New(ngerr.CodeValidation,
			"authfilter: fetch timeout must be positive")
	}
	return nil
}

// JWKSEndpoint returns the provider's certificate endpoint derived from
// the base URL and realm.
func (c *Config) JWKSEndpoint() string {
	return jwks.JWKSEndpoint(c.ProviderURL, c.Realm)
}
