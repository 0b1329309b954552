package tokencache

import (
	"context"
	"crypto/sha256"
	"diagnostic-service/internal/remote"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes positive verdicts from the auth service for a short TTL so
// a burst of requests carrying the same token doesn't re-verify every time.
// Only successful verifications are cached; denials always go upstream.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key derivation hashes the token so raw bearer tokens never land in Redis.
func cacheKey(token string, allowedRoles []string) string {
	sum := sha256.Sum256([]byte(token))
	return "authz:" + hex.EncodeToString(sum[:]) + ":" + strings.Join(allowedRoles, ",")
}

// Get returns the cached identity, or nil on a miss. Redis being down is a
// miss, never an error: the middleware falls through to the auth service.
func (c *Cache) Get(ctx context.Context, token string, allowedRoles []string) *remote.Identity {
	if c == nil || c.rdb == nil {
		return nil
	}

	raw, err := c.rdb.Get(ctx, cacheKey(token, allowedRoles)).Result()
	if err != nil {
		return nil
	}

	var identity remote.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil
	}
	return &identity
}

// Set stores a verified identity, best effort.
func (c *Cache) Set(ctx context.Context, token string, allowedRoles []string, identity *remote.Identity) {
	if c == nil || c.rdb == nil || identity == nil {
		return
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, cacheKey(token, allowedRoles), raw, c.ttl)
}
