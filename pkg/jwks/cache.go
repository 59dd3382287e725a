package jwks

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// DefaultCacheTTL is how long a fetched key set is served before being
// refreshed from the provider.
const DefaultCacheTTL = time.Hour

// CacheOption configures a [KeyCache].
type CacheOption func(*KeyCache)

// WithTTL sets the key set freshness window. Values <= 0 leave the
// default of [DefaultCacheTTL] in place.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *KeyCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for fallback warnings. Defaults to
// [slog.Default].
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *KeyCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSnapshotStore attaches a shared snapshot store. After each
// successful fetch the key set is published to the store; when a fetch
// fails and no in-memory set exists, the cache attempts to recover the
// last published set instead of failing the request.
func WithSnapshotStore(store SnapshotStore) CacheOption {
	return func(c *KeyCache) { c.store = store }
}

// KeyCache serves signing keys from an in-memory [KeySet], refreshing
// it from the provider after the TTL expires.
//
// The current set lives behind an atomic pointer and is swapped
// wholesale on refresh; readers never block writers. Concurrent lookups
// that find the set expired share a single provider fetch through
// singleflight. When that fetch fails, the expired set keeps being
// served; only an empty cache with an unreachable provider surfaces as
// [ngerr.CodeKeyServiceUnavailable].
type KeyCache struct {
	fetcher *Fetcher
	ttl     time.Duration
	logger  *slog.Logger
	store   SnapshotStore

	current atomic.Pointer[KeySet]
	group   singleflight.Group
}

// NewKeyCache creates a KeyCache backed by the given fetcher. The cache
// starts empty; the first lookup (or an explicit [KeyCache.Refresh])
// populates it.
func NewKeyCache(fetcher *Fetcher, opts ...CacheOption) *KeyCache {
	c := &KeyCache{
		fetcher: fetcher,
		ttl:     DefaultCacheTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the signing key for the given kid.
//
// While the current set is fresh, lookups are pure memory reads and a
// kid absent from the set is reported as [ngerr.CodeAuthKeyNotFound]
// without contacting the provider. Once the set has expired (or none
// was ever fetched), the lookup joins the shared refresh and resolves
// the kid against whichever set the refresh produced.
func (c *KeyCache) Lookup(ctx context.Context, kid string) (SigningKey, error) {
	if set := c.current.Load(); set != nil && set.Fresh(time.Now()) {
		return c.keyFrom(set, kid)
	}

	set, err := c.refreshShared(ctx)
	if err != nil {
		return SigningKey{}, err
	}
	return c.keyFrom(set, kid)
}

// Current returns the cached key set, which may be stale or nil if
// nothing has been fetched yet.
func (c *KeyCache) Current() *KeySet {
	return c.current.Load()
}

// Refresh forces a provider fetch if the current set is missing or
// expired, sharing in-flight refreshes with concurrent lookups. Use it
// at startup to fail fast on provider misconfiguration.
func (c *KeyCache) Refresh(ctx context.Context) error {
	if set := c.current.Load(); set != nil && set.Fresh(time.Now()) {
		return nil
	}
	_, err := c.refreshShared(ctx)
	return err
}

func (c *KeyCache) keyFrom(set *KeySet, kid string) (SigningKey, error) {
	key, ok := set.Key(kid)
	if !ok {
		return SigningKey{}, ngerr.Newf(ngerr.CodeAuthKeyNotFound, "jwks: no signing key with kid %q", kid)
	}
	return key, nil
}

// refreshShared funnels concurrent refresh attempts into one provider
// fetch. Every waiter still in flight receives the same outcome: the
// freshly swapped set, the stale fallback, or the shared unavailability
// error. A waiter whose context ends is released immediately with the
// context error; the fetch keeps running for the remaining waiters and
// still populates the cache.
func (c *KeyCache) refreshShared(ctx context.Context) (*KeySet, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, ngerr.Wrap(ctx.Err(), ngerr.CodeTimeout,
			"jwks: request ended while waiting for key refresh")
	}
}

// refresh fetches the key set and decides what this round of lookups
// should be served. The fetch runs on a context detached from the
// triggering request's cancellation so that one client disconnect does
// not abort the refresh other requests are waiting on; the fetcher's
// own timeout still bounds it.
func (c *KeyCache) refresh(ctx context.Context) (*KeySet, error) {
	fetchCtx := context.WithoutCancel(ctx)

	keys, fetchErr := c.fetcher.Fetch(fetchCtx)
	if fetchErr == nil {
		set := NewKeySet(keys, time.Now(), c.ttl)
		c.current.Store(set)
		c.publishSnapshot(fetchCtx, set)
		return set, nil
	}

	// Stale fallback: the expired set stays current, so the next lookup
	// past the TTL retries the provider.
	if stale := c.current.Load(); stale != nil && stale.Len() > 0 {
		c.logger.WarnContext(ctx, "serving stale key set after fetch failure",
			slog.String("endpoint", c.fetcher.Endpoint()),
			slog.Time("fetched_at", stale.FetchedAt()),
			slog.Int("keys", stale.Len()),
			slog.Any("error", fetchErr),
		)
		return stale, nil
	}

	if c.store != nil {
		if snap, loadErr := c.store.Load(fetchCtx); loadErr == nil && snap != nil && snap.Len() > 0 {
			c.logger.WarnContext(ctx, "recovered key set from snapshot store after fetch failure",
				slog.String("endpoint", c.fetcher.Endpoint()),
				slog.Time("fetched_at", snap.FetchedAt()),
				slog.Int("keys", snap.Len()),
				slog.Any("error", fetchErr),
			)
			c.current.Store(snap)
			return snap, nil
		}
	}

	return nil, ngerr.Wrap(fetchErr, ngerr.CodeKeyServiceUnavailable,
		"jwks: provider unreachable and no cached key set available")
}

// publishSnapshot writes the fresh set to the snapshot store, if one is
// configured. Failures are logged and otherwise ignored; the in-memory
// cache is authoritative.
func (c *KeyCache) publishSnapshot(ctx context.Context, set *KeySet) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, set); err != nil {
		c.logger.WarnContext(ctx, "failed to publish key set snapshot",
			slog.Any("error", err),
		)
	}
}
