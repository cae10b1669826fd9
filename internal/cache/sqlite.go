package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/smokyabdulrahman/mirac/internal/api"
	"github.com/smokyabdulrahman/mirac/internal/geo"
)

const sqliteFile = "mirac.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS timings (
	id         TEXT PRIMARY KEY,
	date       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	cached_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS timings_date ON timings (date);
CREATE TABLE IF NOT EXISTS geolocation (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    TEXT NOT NULL,
	cached_at  INTEGER NOT NULL
);`

// SQLiteStore keeps every cached day in one database file, which suits
// long-running daemons that would otherwise leave a file per day behind.
type SQLiteStore struct {
	db *sqlx.DB
}

type cacheRow struct {
	Payload  string `db:"payload"`
	CachedAt int64  `db:"cached_at"`
}

// NewSQLiteStore opens (or creates) mirac.db in dir. If dir is empty, it
// defaults to ~/.cache/mirac/.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
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

	db, err := sqlx.Connect("sqlite", filepath.Join(dir, sqliteFile))
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite cache: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create sqlite cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadTimings reads cached prayer times for date and key.
func (s *SQLiteStore) LoadTimings(ctx context.Context, date time.Time, key Key) *PrayerCacheEntry {
	dateStr := date.Format("2006-01-02")

	var row cacheRow
	err := s.db.GetContext(ctx, &row, `SELECT payload, cached_at FROM timings WHERE id = ?`, key.hash(dateStr))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn().Err(err).Msg("sqlite cache read failed")
		}
		return nil
	}

	var entry PrayerCacheEntry
	if err := json.Unmarshal([]byte(row.Payload), &entry); err != nil {
		log.Warn().Err(err).Msg("sqlite cache entry corrupt")
		return nil
	}
	if entry.Date != dateStr {
		return nil
	}
	return &entry
}

// SaveTimings writes prayer times and drops days older than timingsTTL.
func (s *SQLiteStore) SaveTimings(ctx context.Context, date time.Time, key Key, resp *api.Response) error {
	dateStr := date.Format("2006-01-02")
	data, err := json.Marshal(newEntry(dateStr, key, resp))
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO timings (id, date, payload, cached_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET date = excluded.date, payload = excluded.payload, cached_at = excluded.cached_at`,
		key.hash(dateStr), dateStr, string(data), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to write sqlite cache: %w", err)
	}

	cutoff := now.Add(-timingsTTL).Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timings WHERE cached_at < ?`, cutoff); err != nil {
		log.Debug().Err(err).Msg("sqlite cache prune failed")
	}
	return nil
}

// LoadGeo reads a cached geolocation result younger than the geo TTL.
func (s *SQLiteStore) LoadGeo(ctx context.Context) *geo.Location {
	var row cacheRow
	if err := s.db.GetContext(ctx, &row, `SELECT payload, cached_at FROM geolocation WHERE id = 1`); err != nil {
		return nil
	}

	var entry GeoCacheEntry
	if err := json.Unmarshal([]byte(row.Payload), &entry); err != nil {
		return nil
	}
	if time.Since(entry.CachedAt) > geoTTL {
		return nil
	}
	return &entry.Location
}

// SaveGeo writes a geolocation result.
func (s *SQLiteStore) SaveGeo(ctx context.Context, loc *geo.Location) error {
	entry := GeoCacheEntry{Location: *loc, CachedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal geo cache: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO geolocation (id, payload, cached_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		string(data), entry.CachedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to write geo cache: %w", err)
	}
	return nil
}
