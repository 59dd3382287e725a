// Package errors provides the structured error types used throughout the
// Nexus Gateway authentication filter. It defines the rejection taxonomy
// for token validation, machine-readable error codes, and helpers for
// creating, wrapping, and inspecting errors.
//
// # Rejection Taxonomy
//
// Every way a request can be denied has a distinct code:
//
//   - MalformedToken: the bearer token cannot be parsed
//   - UnsupportedAlgorithm: the token's alg header is not the configured one
//   - MissingKeyID: the token header carries no kid
//   - KeyNotFound: no published signing key matches the token's kid
//   - InvalidSignature: the cryptographic signature check failed
//   - Expired: the exp claim is at or before the current time
//   - InvalidIssuer: the iss claim does not match the configured issuer
//   - InvalidAudience: the aud claim does not include the configured audience
//   - KeyServiceUnavailable: the provider is unreachable and no cached keys exist
//
// All of these map to HTTP 401 except KeyServiceUnavailable, which maps to
// HTTP 503 because the failure is on the gateway side, not the caller's.
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "AUTH_002") used for
// metrics, alerting, and the JSON error body returned to clients. Codes
// follow the pattern CATEGORY_XXX.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeAuthExpired, "token has expired")
//
// Wrap an underlying error:
//
//	err := errors.Wrap(err, errors.CodeKeyServiceUnavailable, "JWKS fetch failed")
//
// Inspect an error:
//
//	if errors.HasCode(err, errors.CodeAuthMalformedToken) {
//	    // reject with 401
//	}
package errors
