package authfilter

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// maxTokenSize is the maximum accepted size for a bearer token (8 KB).
// Tokens larger than this are rejected to prevent resource exhaustion.
const maxTokenSize = 8192

// Token is the decoded structure of a JWT before verification. It is
// per-request state, discarded after the authentication decision; token
// material never leaks into any cache.
type Token struct {
	// Header is the decoded JOSE header (alg, kid, typ).
	Header map[string]any

	// Claims is the decoded payload.
	Claims map[string]any

	// Signature is the raw signature bytes from the third segment.
	// It is treated as opaque until the verifier checks it.
	Signature []byte

	// SignedContent is the exact byte sequence the signature covers:
	// the first two base64url segments joined by a dot.
	SignedContent []byte
}

// Algorithm returns the alg header value, or "" if absent.
func (t *Token) Algorithm() string {
	alg, _ := t.Header["alg"].(string)
	return alg
}

// KeyID returns the kid header value, or "" if absent.
func (t *Token) KeyID() string {
	kid, _ := t.Header["kid"].(string)
	return kid
}

// ExtractBearerToken returns the token portion of an Authorization
// header value. The "Bearer " scheme prefix is matched
// case-insensitively and is optional; a header carrying a bare token is
// accepted. Returns "" when the header is empty or holds only the
// scheme.
func ExtractBearerToken(headerValue string) string {
	headerValue = strings.TrimSpace(headerValue)
	if len(headerValue) >= 7 && strings.EqualFold(headerValue[:7], "bearer ") {
		return strings.TrimSpace(headerValue[7:])
	}
	return headerValue
}

// ParseToken splits a compact JWT into its three segments and decodes
// the header and claims. The signature segment is decoded but otherwise
// left opaque. No network I/O and no verification happens here; a token
// that does not even parse is rejected before any key lookup.
//
// All parse failures return [ngerr.CodeAuthMalformedToken].
func ParseToken(raw string) (*Token, error) {
	if raw == "" {
		return nil, ngerr.New(ngerr.CodeAuthMalformedToken, "authfilter: token must not be empty")
	}
	if len(raw) > maxTokenSize {
		return nil, ngerr.New(ngerr.CodeAuthMalformedToken, "authfilter: token exceeds maximum size")
	}

	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, ngerr.Newf(ngerr.CodeAuthMalformedToken,
			"authfilter: token must have 3 segments, got %d", len(segments))
	}

	headerBytes, err := decodeSegment(segments[0])
	if err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeAuthMalformedToken,
			"authfilter: failed to decode token header")
	}
	claimBytes, err := decodeSegment(segments[1])
	if err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeAuthMalformedToken,
			"authfilter: failed to decode token claims")
	}
	signature, err := decodeSegment(segments[2])
	if err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeAuthMalformedToken,
			"authfilter: failed to decode token signature")
	}

	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeAuthMalformedToken,
			"authfilter: token header is not a JSON object")
	}
	var claims map[string]any
	if err := json.Unmarshal(claimBytes, &claims); err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeAuthMalformedToken,
			"authfilter: token claims are not a JSON object")
	}

	return &Token{
		Header:        header,
		Claims:        claims,
		Signature:     signature,
		SignedContent: []byte(segments[0] + "." + segments[1]),
	}, nil
}

// decodeSegment decodes a base64url segment, tolerating both padded and
// unpadded encodings.
func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}
