// Package cache stores fetched prayer timings and geolocation results so
// repeated invocations and the adhan daemon avoid hitting the network.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/smokyabdulrahman/mirac/internal/api"
	"github.com/smokyabdulrahman/mirac/internal/geo"
)

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"

	geoTTL = 24 * time.Hour
)

// Key holds the parameters that affect a day's timings.
type Key struct {
	Latitude           float64
	Longitude          float64
	City               string
	Country            string
	Method             int
	School             int
	LatitudeAdjustment int
}

// hash builds a deterministic id for date and key, so different
// locations and calculation settings never share an entry.
func (k Key) hash(date string) string {
	raw := fmt.Sprintf("%s|%.6f|%.6f|%s|%s|%d|%d|%d",
		date, k.Latitude, k.Longitude, k.City, k.Country, k.Method, k.School, k.LatitudeAdjustment)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

// PrayerCacheEntry stores a day's prayer times along with metadata for validation.
type PrayerCacheEntry struct {
	Date     string       `json:"date"` // YYYY-MM-DD
	Method   int          `json:"method"`
	School   int          `json:"school"`
	Timings  api.Timings  `json:"timings"`
	Meta     api.Meta     `json:"meta"`
	DateInfo api.DateInfo `json:"date_info"`
}

// GeoCacheEntry stores a cached geolocation result with a timestamp.
type GeoCacheEntry struct {
	Location geo.Location `json:"location"`
	CachedAt time.Time    `json:"cached_at"`
}

// Store is a cache backend. Loads return nil on a miss, a stale entry or a
// backend failure; callers then fall through to the network.
type Store interface {
	LoadTimings(ctx context.Context, date time.Time, key Key) *PrayerCacheEntry
	SaveTimings(ctx context.Context, date time.Time, key Key, resp *api.Response) error
	LoadGeo(ctx context.Context) *geo.Location
	SaveGeo(ctx context.Context, loc *geo.Location) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string // "file" (default), "redis" or "sqlite"
	Dir       string
	RedisAddr string
}

// Open returns the backend named in opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return New(opts.Dir)
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr)
	case BackendSQLite:
		return NewSQLiteStore(opts.Dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q (valid: %s, %s, %s)", opts.Backend, BackendFile, BackendRedis, BackendSQLite)
	}
}

func newEntry(date string, key Key, resp *api.Response) PrayerCacheEntry {
	return PrayerCacheEntry{
		Date:     date,
		Method:   key.Method,
		School:   key.School,
		Timings:  resp.Data.Timings,
		Meta:     resp.Data.Meta,
		DateInfo: resp.Data.Date,
	}
}
