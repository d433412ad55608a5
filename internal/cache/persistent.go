package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistent cache tier.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// KeyStat pairs a cache key with its cumulative read count.
type KeyStat struct {
	Key         string
	SearchCount int
}

// NewStore opens (creating if needed) the persistent tier at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(Schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Get retrieves a non-expired entry. A hit increments search_count; the
// increment is best-effort and never fails the read.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	var expiresAt time.Time
	err := s.db.QueryRow(
		`SELECT data, expires_at FROM book_api_cache WHERE cache_key = ?`, key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	if !expiresAt.After(time.Now().UTC()) {
		return "", false, nil
	}

	if _, err := s.db.Exec(
		`UPDATE book_api_cache SET search_count = search_count + 1 WHERE cache_key = ?`, key,
	); err != nil {
		slog.Warn("Failed to bump cache search count", "key", key, "error", err)
	}

	return data, true, nil
}

// Set upserts an entry with the given expiry. Repeat writes of the same key
// accumulate search_count so popular queries stay visible to warm-up.
func (s *Store) Set(key, data string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO book_api_cache (cache_key, data, search_count, cached_at, expires_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			data = excluded.data,
			search_count = book_api_cache.search_count + 1,
			cached_at = CURRENT_TIMESTAMP,
			expires_at = excluded.expires_at
	`, key, data, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Delete removes a single key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM book_api_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteLike removes every key containing substr and returns the count.
func (s *Store) DeleteLike(substr string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`DELETE FROM book_api_cache WHERE cache_key LIKE '%' || ? || '%'`, substr,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return result.RowsAffected()
}

// ClearExpired removes entries whose expiry has passed.
func (s *Store) ClearExpired() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`DELETE FROM book_api_cache WHERE expires_at < ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cache: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("Cleared expired cache entries", "table", TableName, "count", rows)
	}
	return rows, nil
}

// Clear removes all entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM book_api_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	slog.Info("Cache cleared", "table", TableName)
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM book_api_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// TopKeys returns the most-read keys, for cache warming.
func (s *Store) TopKeys(limit int) ([]KeyStat, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT cache_key, search_count FROM book_api_cache ORDER BY search_count DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query top keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []KeyStat
	for rows.Next() {
		var ks KeyStat
		if err := rows.Scan(&ks.Key, &ks.SearchCount); err != nil {
			return nil, fmt.Errorf("failed to scan top key: %w", err)
		}
		stats = append(stats, ks)
	}
	return stats, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
