package authfilter

import (
	"encoding/json"
	"time"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// Identity is the result of a successful authentication decision. It
// carries the claims the gateway forwards to upstream services.
type Identity struct {
	// Subject is the sub claim, the provider's stable user identifier.
	Subject string

	// ClientID is the client_id claim, falling back to azp (Keycloak
	// tokens carry the authorized party there).
	ClientID string

	// Username is the preferred_username claim.
	Username string

	// Email is the email claim.
	Email string

	// Roles holds realm_access.roles.
	Roles []string

	// Claims is the full decoded payload, for callers needing claims
	// beyond the extracted fields.
	Claims map[string]any
}

// checkHeader enforces the pre-lookup header checks: the token must be
// signed with the expected algorithm and must name its signing key.
// Returns the kid on success.
//
// The alg check runs first, so an unsigned token (alg "none") is
// rejected as [ngerr.CodeAuthUnsupportedAlgorithm] before any key
// handling.
func checkHeader(token *Token, expectedAlg string) (string, error) {
	if alg := token.Algorithm(); alg != expectedAlg {
		return "", ngerr.Newf(ngerr.CodeAuthUnsupportedAlgorithm,
			"authfilter: token algorithm %q is not supported, expected %q", alg, expectedAlg)
	}
	kid := token.KeyID()
	if kid == "" {
		return "", ngerr.New(ngerr.CodeAuthMissingKeyID,
			"authfilter: token header has no kid")
	}
	return kid, nil
}

// checkClaims validates the registered claims after the signature has
// been verified. Checks run in a fixed order and short-circuit on the
// first failure: expiry, then issuer, then audience.
func checkClaims(claims map[string]any, expectedIssuer, expectedAudience string, now time.Time) error {
	exp, ok := numericClaim(claims["exp"])
	if !ok {
		return ngerr.New(ngerr.CodeAuthExpired, "authfilter: token has no exp claim")
	}
	// A token expiring exactly now is already expired. Whole seconds
	// are exact in float64; the nanosecond remainder covers sub-second
	// exp values.
	nowSeconds := float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second)
	if exp <= nowSeconds {
		return ngerr.New(ngerr.CodeAuthExpired, "authfilter: token has expired")
	}

	if iss, _ := claims["iss"].(string); iss != expectedIssuer {
		return ngerr.Newf(ngerr.CodeAuthInvalidIssuer,
			"authfilter: token issuer %q does not match expected issuer", iss)
	}

	if !audienceMatches(claims["aud"], expectedAudience) {
		return ngerr.New(ngerr.CodeAuthInvalidAudience,
			"authfilter: token audience does not include expected audience")
	}

	return nil
}

// numericClaim converts a JSON-decoded claim to a float64. JWT numeric
// dates arrive as float64 from encoding/json, but json.Number also
// shows up when decoders use UseNumber.
func numericClaim(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// audienceMatches reports whether the aud claim equals (string form) or
// contains (array form) the expected audience. Any other shape,
// including a missing claim, does not match.
func audienceMatches(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

// identityFromClaims builds the forwarded identity from a validated
// payload. Missing optional claims leave their fields empty.
func identityFromClaims(claims map[string]any) *Identity {
	identity := &Identity{Claims: claims}
	identity.Subject, _ = claims["sub"].(string)
	identity.Username, _ = claims["preferred_username"].(string)
	identity.Email, _ = claims["email"].(string)

	identity.ClientID, _ = claims["client_id"].(string)
	if identity.ClientID == "" {
		identity.ClientID, _ = claims["azp"].(string)
	}

	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		if roles, ok := realmAccess["roles"].([]any); ok {
			for _, role := range roles {
				if s, ok := role.(string); ok {
					identity.Roles = append(identity.Roles, s)
				}
			}
		}
	}

	return identity
}
