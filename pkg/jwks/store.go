package jwks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// DefaultSnapshotKey is the Redis key under which the key set snapshot
// is published.
const DefaultSnapshotKey = "nexus:jwks:snapshot"

// snapshotRetention is how long a published snapshot lives in Redis.
// It is deliberately much longer than the cache TTL; a stale snapshot
// is still better than no keys at all when the provider is down.
const snapshotRetention = 7 * 24 * time.Hour

// SnapshotStore persists the most recent key set so that other gateway
// replicas (or a restarted one) can recover keys while the provider is
// unreachable. Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Save publishes the key set, replacing any previous snapshot.
	Save(ctx context.Context, set *KeySet) error

	// Load returns the last published key set, or (nil, nil) if no
	// snapshot exists.
	Load(ctx context.Context) (*KeySet, error)
}

// SnapshotCmdable is the narrow slice of Redis commands the snapshot
// store needs. It is satisfied by [*redis.Client] and by mock
// implementations for unit testing.
type SnapshotCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Compile-time assertion that *redis.Client satisfies SnapshotCmdable.
var _ SnapshotCmdable = (*redis.Client)(nil)

// RedisStore is a [SnapshotStore] backed by Redis. The snapshot is a
// single JSON document holding the JWK material (kid, alg, n, e) and
// the original fetch timestamps, so a loaded set reports the same
// freshness window it had when published.
type RedisStore struct {
	cmdable SnapshotCmdable
	key     string
}

// NewRedisStore creates a RedisStore on an existing Redis client. Pass
// an empty key to use [DefaultSnapshotKey].
func NewRedisStore(cmdable SnapshotCmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisStore{cmdable: cmdable, key: key}
}

// NewRedisStoreFromURI connects to Redis using a redis:// URI and
// verifies connectivity with a ping before returning the store.
func NewRedisStoreFromURI(ctx context.Context, uri string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeValidation,
			"jwks: failed to parse snapshot store URI")
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, ngerr.Wrap(err, ngerr.CodeUnavailable,
			"jwks: failed to connect to snapshot store")
	}

	return NewRedisStore(rdb, ""), nil
}

// snapshotDocument is the JSON layout of a published snapshot.
type snapshotDocument struct {
	FetchedAt time.Time     `json:"fetched_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Keys      []snapshotKey `json:"keys"`
}

// snapshotKey stores one signing key in JWK form.
type snapshotKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Save publishes the key set as a JSON snapshot.
func (s *RedisStore) Save(ctx context.Context, set *KeySet) error {
	doc := snapshotDocument{
		FetchedAt: set.FetchedAt(),
		ExpiresAt: set.ExpiresAt(),
	}
	for _, kid := range set.KeyIDs() {
		key, _ := set.Key(kid)
		doc.Keys = append(doc.Keys, snapshotKey{
			Kid: key.KeyID,
			Kty: key.KeyType,
			Alg: key.Algorithm,
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		})
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return ngerr.Wrap(err, ngerr.CodeInternal,
			"jwks: failed to encode key set snapshot")
	}

	if err := s.cmdable.Set(ctx, s.key, payload, snapshotRetention).Err(); err != nil {
		return ngerr.Wrap(err, ngerr.CodeUnavailable,
			"jwks: failed to publish key set snapshot")
	}
	return nil
}

// Load reads the last published snapshot and rebuilds the key set.
// Snapshot entries with malformed key material are skipped, mirroring
// the fetcher's tolerance for bad JWK entries.
func (s *RedisStore) Load(ctx context.Context) (*KeySet, error) {
	payload, err := s.cmdable.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, ngerr.Wrap(err, ngerr.CodeUnavailable,
			"jwks: failed to read key set snapshot")
	}

	var doc snapshotDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, ngerr.Wrap(err, ngerr.CodeInternal,
			"jwks: failed to decode key set snapshot")
	}

	keys := make(map[string]SigningKey, len(doc.Keys))
	for _, entry := range doc.Keys {
		if entry.Kid == "" {
			continue
		}
		pubKey, err := parseRSAPublicKey(entry.N, entry.E)
		if err != nil {
			continue
		}
		keys[entry.Kid] = SigningKey{
			KeyID:     entry.Kid,
			KeyType:   entry.Kty,
			Algorithm: entry.Alg,
			PublicKey: pubKey,
		}
	}

	return NewKeySet(keys, doc.FetchedAt, doc.ExpiresAt.Sub(doc.FetchedAt)), nil
}
