//go:build integration

// Package containers provides helpers for starting throwaway service
// containers in integration tests using testcontainers-go.
//
// Everything in this package is behind the "integration" build tag.
// Integration tests require a running Docker daemon:
//
//	go test -tags integration ./...
package containers

import (
	"context"
	"fmt"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/stretchr/testify/require"
)

// DefaultRedisImage is used by StartRedis when no override is needed.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult holds a started Redis container and its connection string.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts a Redis container and registers cleanup with t.
// The returned ConnString is a redis:// URL suitable for redis.ParseURL.
func StartRedis(ctx context.Context, t testing.TB) *RedisResult {
	t.Helper()

	container, err := tcredis.Run(ctx, DefaultRedisImage)
	require.NoError(t, err, "failed to start redis container")

	t.Cleanup(func() {
		if terminateErr := container.Terminate(context.Background()); terminateErr != nil {
			t.Logf("failed to terminate redis container: %v", terminateErr)
		}
	})

	connString, err := container.ConnectionString(ctx)
	if err != nil {
		require.NoError(t, err, fmt.Sprintf("failed to get redis connection string: %v", err))
	}

	return &RedisResult{
		Container:  container,
		ConnString: connString,
	}
}
