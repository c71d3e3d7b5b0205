package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dispatch-ext/backend/internal/authprovider"
)

const sessionKeyPrefix = "session:"

// Fingerprint hashes the credential headers into a cache key. It returns "" when there are none.
func Fingerprint(headers http.Header) string {
	cookie := headers.Get("Cookie")
	authz := headers.Get("Authorization")
	if cookie == "" && authz == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(cookie + "\x00" + authz))
	return hex.EncodeToString(sum[:])
}

// RedisSessionCache stores verified sessions in Redis.
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionCache creates a session cache. Entries live for ttl, capped at the session's expiry.
func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	return &RedisSessionCache{client: client, ttl: ttl}
}

// Get returns the cached session or nil on a miss.
func (c *RedisSessionCache) Get(ctx context.Context, key string) (*authprovider.Session, error) {
	raw, err := c.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var s authprovider.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

// Set caches s.
func (c *RedisSessionCache) Set(ctx context.Context, key string, s *authprovider.Session) error {
	ttl := c.ttl
	if !s.ExpiresAt.IsZero() {
		if left := time.Until(s.ExpiresAt); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.client.Set(ctx, sessionKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
