package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/mirac/internal/api"
	"github.com/smokyabdulrahman/mirac/internal/geo"
)

const (
	redisPrefix = "mirac:"
	// Timings outlive their day only long enough for a late wraparound.
	timingsTTL = 48 * time.Hour
)

// RedisStore caches entries in Redis with expirations, so several hosts
// running the adhan daemon can share one cache.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to addr and checks the server is reachable.
func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis cache backend requires redis_addr")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cannot reach redis at %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func timingsKey(dateStr string, key Key) string {
	return redisPrefix + "timings:" + key.hash(dateStr)
}

func geoKey() string {
	return redisPrefix + "geo"
}

// LoadTimings reads cached prayer times for date and key.
func (s *RedisStore) LoadTimings(ctx context.Context, date time.Time, key Key) *PrayerCacheEntry {
	dateStr := date.Format("2006-01-02")

	var entry PrayerCacheEntry
	if !s.getJSON(ctx, timingsKey(dateStr, key), &entry) {
		return nil
	}
	if entry.Date != dateStr {
		return nil
	}
	return &entry
}

// SaveTimings writes prayer times with a two-day expiry.
func (s *RedisStore) SaveTimings(ctx context.Context, date time.Time, key Key, resp *api.Response) error {
	dateStr := date.Format("2006-01-02")
	return s.setJSON(ctx, timingsKey(dateStr, key), newEntry(dateStr, key, resp), timingsTTL)
}

// LoadGeo reads a cached geolocation result.
func (s *RedisStore) LoadGeo(ctx context.Context) *geo.Location {
	var entry GeoCacheEntry
	if !s.getJSON(ctx, geoKey(), &entry) {
		return nil
	}
	return &entry.Location
}

// SaveGeo writes a geolocation result with the geolocation TTL.
func (s *RedisStore) SaveGeo(ctx context.Context, loc *geo.Location) error {
	return s.setJSON(ctx, geoKey(), GeoCacheEntry{Location: *loc, CachedAt: time.Now()}, geoTTL)
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dest any) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("redis cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache entry corrupt")
		return false
	}
	return true
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", key, err)
	}
	return nil
}
