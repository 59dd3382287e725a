// Package jwks fetches and caches JSON Web Key Sets published by an
// OpenID Connect identity provider.
//
// The package has two main pieces:
//
//   - [Fetcher] performs a single bounded HTTP GET against the provider's
//     JWKS endpoint and converts the JWK documents into [SigningKey]
//     values with usable *rsa.PublicKey material.
//   - [KeyCache] holds the most recent [KeySet] behind an atomic pointer,
//     refreshes it after a configurable TTL with single-flight
//     deduplication, and falls back to the stale set (or an optional
//     [SnapshotStore]) when the provider is unreachable.
//
// All types are safe for concurrent use by multiple goroutines.
package jwks

import (
	"crypto/rsa"
	"time"
)

// SigningKey is a single public signing key published by the identity
// provider. It is an immutable value; the embedded *rsa.PublicKey must
// not be modified after construction.
type SigningKey struct {
	// KeyID is the JWK "kid" value. Tokens reference their signing key
	// through the kid field of the JWT header.
	KeyID string

	// KeyType is the JWK "kty" value. Only "RSA" keys are retained.
	KeyType string

	// Algorithm is the JWK "alg" value, if the provider published one.
	// May be empty; the filter enforces its own expected algorithm.
	Algorithm string

	// PublicKey is the reconstructed RSA public key.
	PublicKey *rsa.PublicKey
}

// KeySet is an immutable snapshot of the provider's published signing
// keys at a point in time. A KeySet is replaced wholesale by the
// [KeyCache]; it is never mutated after construction.
type KeySet struct {
	keys      map[string]SigningKey
	fetchedAt time.Time
	expiresAt time.Time
}

// NewKeySet builds a KeySet from the given keys. The set is considered
// fresh until fetchedAt+ttl. The keys map is not copied; callers must
// not retain or modify it.
func NewKeySet(keys map[string]SigningKey, fetchedAt time.Time, ttl time.Duration) *KeySet {
	return &KeySet{
		keys:      keys,
		fetchedAt: fetchedAt,
		expiresAt: fetchedAt.Add(ttl),
	}
}

// Key returns the signing key with the given kid, if present.
func (s *KeySet) Key(kid string) (SigningKey, bool) {
	key, ok := s.keys[kid]
	return key, ok
}

// KeyIDs returns the kids of all keys in the set. The order is not
// deterministic.
func (s *KeySet) KeyIDs() []string {
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	return ids
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int { return len(s.keys) }

// FetchedAt returns the time the set was retrieved from the provider.
func (s *KeySet) FetchedAt() time.Time { return s.fetchedAt }

// ExpiresAt returns the time after which the set is considered stale.
func (s *KeySet) ExpiresAt() time.Time { return s.expiresAt }

// Fresh reports whether the set is still within its TTL at the given
// instant. A set expiring exactly at now is no longer fresh.
func (s *KeySet) Fresh(now time.Time) bool {
	return now.Before(s.expiresAt)
}
