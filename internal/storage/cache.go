package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Favicons and pwned-prefix bodies are content-addressed caches with a
// freshness timestamp. Stale rows are reported as misses so callers
// re-fetch when a network path is allowed; the rows themselves stay until
// overwritten.

// GetFavicon returns the cached icon for a normalized host, or ok=false on
// a miss or a stale row.
func (s *Store) GetFavicon(host string, now time.Time) (icon []byte, ok bool, err error) {
	return getCached(s.db, `SELECT icon, fetched_at FROM favicon_cache WHERE host = ?`, host, now, FaviconTTL)
}

// PutFavicon stores or refreshes the cached icon for a host.
func (s *Store) PutFavicon(host string, icon []byte, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO favicon_cache(host, icon, fetched_at) VALUES(?, ?, ?)`,
		host, icon, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache favicon: %w", err)
	}
	return nil
}

// GetPwnedPrefix returns the cached range body for a 5-hex prefix, or
// ok=false on a miss or a stale row.
func GetPwnedPrefix(db *sql.DB, prefix string, now time.Time) (body []byte, ok bool, err error) {
	return getCached(db, `SELECT body, fetched_at FROM pwned_prefix_cache WHERE prefix = ?`, prefix, now, PwnedPrefixTTL)
}

// PutPwnedPrefix stores or refreshes the cached range body for a prefix.
func PutPwnedPrefix(db *sql.DB, prefix string, body []byte, now time.Time) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO pwned_prefix_cache(prefix, body, fetched_at) VALUES(?, ?, ?)`,
		prefix, body, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache pwned prefix: %w", err)
	}
	return nil
}

func getCached(db *sql.DB, query, key string, now time.Time, ttl time.Duration) ([]byte, bool, error) {
	var body []byte
	var fetchedAt int64
	err := db.QueryRow(query, key).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	age := now.Unix() - fetchedAt
	if age < 0 || age > int64(ttl.Seconds()) || len(body) == 0 {
		return nil, false, nil
	}
	return body, true, nil
}
