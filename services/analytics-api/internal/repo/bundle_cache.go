package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"storefront-analytics/shared/pkg/cache"
)

// BundleStore is the part of *cache.Redis the bundle cache needs.
type BundleStore interface {
	Counter(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// BundleCacheRedis stores rendered bundles under
// "analytics:<tenant>:bundle:v<version>:<sha256(query)>". The version is
// bumped by the projector whenever the tenant's rollup changes.
type BundleCacheRedis struct {
	Redis BundleStore
	TTL   time.Duration
}

func BundleKey(tenantID string, version int64, canonicalQuery string) string {
	sum := sha256.Sum256([]byte(canonicalQuery))
	return "analytics:" + tenantID + ":bundle:v" + strconv.FormatInt(version, 10) + ":" + hex.EncodeToString(sum[:12])
}

// Get looks the bundle up under the tenant's current version and returns
// that version. A bundle built after a miss must be stored with Set under
// the returned version, so a bump that lands mid-build orphans it.
func (c *BundleCacheRedis) Get(ctx context.Context, tenantID, canonicalQuery string) ([]byte, int64, bool, error) {
	ver, err := c.Redis.Counter(ctx, cache.TenantVersionKey(tenantID))
	if err != nil {
		return nil, 0, false, err
	}
	b, err := c.Redis.Get(ctx, BundleKey(tenantID, ver, canonicalQuery))
	if errors.Is(err, cache.ErrMiss) {
		return nil, ver, false, nil
	}
	if err != nil {
		return nil, ver, false, err
	}
	return b, ver, true, nil
}

func (c *BundleCacheRedis) Set(ctx context.Context, tenantID, canonicalQuery string, version int64, body []byte) error {
	return c.Redis.Set(ctx, BundleKey(tenantID, version, canonicalQuery), body, c.TTL)
}

// NoCache is used when Redis is unreachable at startup.
type NoCache struct{}

func (NoCache) Get(context.Context, string, string) ([]byte, int64, bool, error) {
	return nil, 0, false, nil
}
func (NoCache) Set(context.Context, string, string, int64, []byte) error { return nil }
