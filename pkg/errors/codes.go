package errors

// Code represents a machine-readable error code for categorizing errors.
// Codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, INT) and XXX is a three-digit numeric code.
//
// Codes are designed to be:
//   - Stable: a code never changes meaning once assigned
//   - Unique: each rejection reason has exactly one code
//   - Machine-readable: suitable for automated handling and alerting
type Code string

// Error code categories and their HTTP mappings:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication rejections (401 Unauthorized)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when configuration or input fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// Authentication rejections (AUTH_xxx) - HTTP 401
	// One code per step of the token validation state machine.

	// CodeAuthentication indicates a general authentication failure,
	// including a missing or non-bearer Authorization header.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthMalformedToken indicates the bearer token could not be
	// parsed: wrong segment count, bad base64url, or invalid JSON.
	CodeAuthMalformedToken Code = "AUTH_002"

	// CodeAuthUnsupportedAlgorithm indicates the token's alg header does
	// not match the configured signing algorithm.
	CodeAuthUnsupportedAlgorithm Code = "AUTH_003"

	// CodeAuthMissingKeyID indicates the token header carries no kid.
	CodeAuthMissingKeyID Code = "AUTH_004"

	// CodeAuthKeyNotFound indicates no published signing key matches the
	// token's kid.
	CodeAuthKeyNotFound Code = "AUTH_005"

	// CodeAuthInvalidSignature indicates the cryptographic signature
	// check failed.
	CodeAuthInvalidSignature Code = "AUTH_006"

	// CodeAuthExpired indicates the exp claim is at or before the
	// current time, or is missing entirely.
	CodeAuthExpired Code = "AUTH_007"

	// CodeAuthInvalidIssuer indicates the iss claim does not match the
	// configured expected issuer.
	CodeAuthInvalidIssuer Code = "AUTH_008"

	// CodeAuthInvalidAudience indicates the aud claim does not equal or
	// contain the configured expected audience.
	CodeAuthInvalidAudience Code = "AUTH_009"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_002"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503
	// Used when the filter cannot make a decision through no fault of
	// the caller.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeKeyServiceUnavailable indicates the identity provider's JWKS
	// endpoint is unreachable and no cached key set exists to fall back
	// on. Requests cannot be authenticated until the provider recovers.
	CodeKeyServiceUnavailable Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout Code = "TIMEOUT_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

// Label returns the human-readable rejection category for the code, used
// as the "error" field of JSON error responses. Codes without a specific
// label fall back to their category prefix.
func (c Code) Label() string {
	switch c {
	case CodeAuthentication:
		return "AuthorizationRequired"
	case CodeAuthMalformedToken:
		return "MalformedToken"
	case CodeAuthUnsupportedAlgorithm:
		return "UnsupportedAlgorithm"
	case CodeAuthMissingKeyID:
		return "MissingKeyID"
	case CodeAuthKeyNotFound:
		return "KeyNotFound"
	case CodeAuthInvalidSignature:
		return "InvalidSignature"
	case CodeAuthExpired:
		return "Expired"
	case CodeAuthInvalidIssuer:
		return "InvalidIssuer"
	case CodeAuthInvalidAudience:
		return "InvalidAudience"
	case CodeKeyServiceUnavailable:
		return "KeyServiceUnavailable"
	default:
		return c.Category()
	}
}
