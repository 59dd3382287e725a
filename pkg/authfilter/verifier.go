package authfilter

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// SignatureVerifier checks a token's signature over its signed content.
// The production implementation is [RS256Verifier]; tests substitute
// stub verifiers to exercise orchestration paths.
type SignatureVerifier interface {
	// Verify returns nil when signature is a valid signature over
	// signedContent under key, and [ngerr.CodeAuthInvalidSignature]
	// otherwise.
	Verify(signedContent, signature []byte, key *rsa.PublicKey) error
}

// RS256Verifier verifies RSASSA-PKCS1-v1_5 signatures with SHA-256,
// delegating the cryptographic check to golang-jwt's RS256 method.
type RS256Verifier struct{}

// Compile-time assertion that RS256Verifier implements SignatureVerifier.
var _ SignatureVerifier = RS256Verifier{}

// Verify implements [SignatureVerifier].
func (RS256Verifier) Verify(signedContent, signature []byte, key *rsa.PublicKey) error {
	if key == nil {
		return ngerr.New(ngerr.CodeAuthInvalidSignature,
			"authfilter: no public key available for signature verification")
	}
	if err := jwt.SigningMethodRS256.Verify(string(signedContent), signature, key); err != nil {
		return ngerr.Wrap(err, ngerr.CodeAuthInvalidSignature,
			"authfilter: token signature verification failed")
	}
	return nil
}
