package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smokyabdulrahman/mirac/internal/api"
	"github.com/smokyabdulrahman/mirac/internal/geo"
)

const (
	prayerCacheFile = "timings_%s.json" // keyed by hash
	geoCacheFile    = "geolocation.json"
)

// FileStore caches entries as JSON files in a directory.
type FileStore struct {
	dir string
}

// New creates a FileStore rooted at the given directory.
// If dir is empty, it defaults to ~/.cache/mirac/.
func New(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "mirac")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Close is a no-op; files are closed after every read and write.
func (c *FileStore) Close() error {
	return nil
}

// Dir returns the cache directory.
func (c *FileStore) Dir() string {
	return c.dir
}

func (c *FileStore) timingsPath(dateStr string, key Key) string {
	return filepath.Join(c.dir, fmt.Sprintf(prayerCacheFile, key.hash(dateStr)))
}

// LoadTimings reads cached prayer times for date and key.
// Returns nil if the cache is missing or stale (wrong date).
func (c *FileStore) LoadTimings(_ context.Context, date time.Time, key Key) *PrayerCacheEntry {
	dateStr := date.Format("2006-01-02")

	data, err := os.ReadFile(c.timingsPath(dateStr, key))
	if err != nil {
		return nil
	}

	var entry PrayerCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}

	// A stale cache for a previous day is useless.
	if entry.Date != dateStr {
		return nil
	}

	return &entry
}

// SaveTimings writes prayer times to the cache.
func (c *FileStore) SaveTimings(_ context.Context, date time.Time, key Key, resp *api.Response) error {
	dateStr := date.Format("2006-01-02")

	data, err := json.Marshal(newEntry(dateStr, key, resp))
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := os.WriteFile(c.timingsPath(dateStr, key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// LoadGeo reads a cached geolocation result.
// Returns nil if the cache is missing or older than the TTL (24 hours).
func (c *FileStore) LoadGeo(_ context.Context) *geo.Location {
	data, err := os.ReadFile(filepath.Join(c.dir, geoCacheFile))
	if err != nil {
		return nil
	}

	var entry GeoCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}

	if time.Since(entry.CachedAt) > geoTTL {
		return nil
	}

	return &entry.Location
}

// SaveGeo writes a geolocation result to the cache.
func (c *FileStore) SaveGeo(_ context.Context, loc *geo.Location) error {
	entry := GeoCacheEntry{
		Location: *loc,
		CachedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal geo cache: %w", err)
	}

	if err := os.WriteFile(filepath.Join(c.dir, geoCacheFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write geo cache: %w", err)
	}

	return nil
}
