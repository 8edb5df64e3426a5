// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshots caches projector snapshots per (game, lobby code) so hot state
// polls skip the database. Entries are short-lived and writers invalidate on
// every mutation, so a stale read is bounded by the TTL either way.
type Snapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect builds the client from REDIS_ADDR / REDIS_DB / SNAPSHOT_CACHE_TTL
// and pings it. A nil *Snapshots is a valid no-op cache, so callers can run
// without Redis.
func Connect(ctx context.Context) (*Snapshots, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)
	ttl := getEnvDuration("SNAPSHOT_CACHE_TTL", 2*time.Second)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &Snapshots{rdb: rdb, ttl: ttl}, nil
}

func snapshotKey(gameKey, code string) string {
	return fmt.Sprintf("snapshot:%s:%s", gameKey, code)
}

// Get returns the cached snapshot JSON for a lobby, or false on miss.
func (c *Snapshots) Get(ctx context.Context, gameKey, code string, dest interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	data, err := c.rdb.Get(ctx, snapshotKey(gameKey, code)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a snapshot under the configured TTL.
func (c *Snapshots) Set(ctx context.Context, gameKey, code string, snapshot interface{}) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.rdb.Set(ctx, snapshotKey(gameKey, code), data, c.ttl).Err()
}

// Invalidate drops the cached snapshot after a mutation commits.
func (c *Snapshots) Invalidate(ctx context.Context, gameKey, code string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, snapshotKey(gameKey, code)).Err()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return v
}
