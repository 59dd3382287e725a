//go:build integration

// Integration tests for the Redis snapshot store, gated behind the
// "integration" build tag. They require a running Docker daemon:
//
//	go test -v -race -tags=integration ./pkg/jwks/...
package jwks

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/nexus-gateway-auth/internal/testutil/containers"
)

// SnapshotStoreIntegrationSuite runs the snapshot store tests against a
// single shared Redis container, started once in SetupSuite. Tests use
// distinct snapshot keys for isolation.
type SnapshotStoreIntegrationSuite struct {
	suite.Suite

	ctx    context.Context
	client *redis.Client
}

func (s *SnapshotStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	result := containers.StartRedis(s.ctx, s.T())

	opts, err := redis.ParseURL(result.ConnString)
	require.NoError(s.T(), err, "failed to parse container connection string")
	s.client = redis.NewClient(opts)
	require.NoError(s.T(), s.client.Ping(s.ctx).Err(), "failed to ping redis container")
}

func (s *SnapshotStoreIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *SnapshotStoreIntegrationSuite) TestSaveLoadRoundTrip() {
	key := jwksTestGenerateRSAKey(s.T())
	fetchedAt := time.Now().Truncate(time.Millisecond)
	original := NewKeySet(map[string]SigningKey{
		"it-key-1": {KeyID: "it-key-1", KeyType: "RSA", Algorithm: "RS256", PublicKey: &key.PublicKey},
	}, fetchedAt, time.Hour)

	store := NewRedisStore(s.client, "it:roundtrip")
	require.NoError(s.T(), store.Save(s.ctx, original))

	loaded, err := store.Load(s.ctx)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), loaded)

	got, ok := loaded.Key("it-key-1")
	require.True(s.T(), ok)
	assert.Equal(s.T(), 0, got.PublicKey.N.Cmp(key.PublicKey.N))
	assert.Equal(s.T(), key.PublicKey.E, got.PublicKey.E)
	assert.WithinDuration(s.T(), original.ExpiresAt(), loaded.ExpiresAt(), time.Millisecond)
}

func (s *SnapshotStoreIntegrationSuite) TestLoadMissingKeyReturnsNil() {
	store := NewRedisStore(s.client, "it:never-written")
	loaded, err := store.Load(s.ctx)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), loaded)
}

func (s *SnapshotStoreIntegrationSuite) TestSaveReplacesPreviousSnapshot() {
	key1 := jwksTestGenerateRSAKey(s.T())
	key2 := jwksTestGenerateRSAKey(s.T())
	store := NewRedisStore(s.client, "it:replace")

	first := NewKeySet(map[string]SigningKey{
		"old": {KeyID: "old", KeyType: "RSA", PublicKey: &key1.PublicKey},
	}, time.Now(), time.Hour)
	require.NoError(s.T(), store.Save(s.ctx, first))

	second := NewKeySet(map[string]SigningKey{
		"new": {KeyID: "new", KeyType: "RSA", PublicKey: &key2.PublicKey},
	}, time.Now(), time.Hour)
	require.NoError(s.T(), store.Save(s.ctx, second))

	loaded, err := store.Load(s.ctx)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), loaded)
	assert.ElementsMatch(s.T(), []string{"new"}, loaded.KeyIDs())
}

func (s *SnapshotStoreIntegrationSuite) TestNewRedisStoreFromURI() {
	// Re-derive the URI from the shared client options.
	uri := "redis://" + s.client.Options().Addr
	store, err := NewRedisStoreFromURI(s.ctx, uri)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), store)
}

func TestSnapshotStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(SnapshotStoreIntegrationSuite))
}
