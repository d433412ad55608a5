package usagelog

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Schema defines the daily usage aggregate table. One row per
// (date, endpoint, method); individual records are folded in on flush.
const Schema = `
CREATE TABLE IF NOT EXISTS api_usage_log (
	date TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	method TEXT NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	total_latency_ms INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (date, endpoint, method)
);

CREATE INDEX IF NOT EXISTS idx_api_usage_log_date ON api_usage_log(date);
`

// Store persists usage aggregates in SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// DailyStat is one endpoint's aggregate for a single day.
type DailyStat struct {
	Date          string  `json:"date"`
	Endpoint      string  `json:"endpoint"`
	Method        string  `json:"method"`
	TotalRequests int     `json:"totalRequests"`
	SuccessCount  int     `json:"successCount"`
	ErrorCount    int     `json:"errorCount"`
	AvgLatencyMs  float64 `json:"averageLatencyMs"`
	ErrorRate     float64 `json:"errorRate"`
}

// TrendPoint is one day in a usage trend series.
type TrendPoint struct {
	Date      string  `json:"date"`
	Requests  int     `json:"requests"`
	Errors    int     `json:"errors"`
	ErrorRate float64 `json:"errorRate"`
}

// EndpointStat ranks an endpoint by traffic volume.
type EndpointStat struct {
	Endpoint      string  `json:"endpoint"`
	Method        string  `json:"method"`
	TotalRequests int     `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
}

// ErrorPattern describes an endpoint with recorded failures.
type ErrorPattern struct {
	Endpoint      string  `json:"endpoint"`
	Method        string  `json:"method"`
	ErrorCount    int     `json:"errorCount"`
	TotalRequests int     `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
}

// NewStore opens (creating if needed) the usage aggregate store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to usage database: %w", err), closeErr)
	}

	if _, err := db.Exec(Schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create usage table: %w", err), closeErr)
	}

	return &Store{db: db}, nil
}

// Upsert folds a flushed batch group into its aggregate row, incrementing
// counters on conflict.
func (s *Store) Upsert(date, endpoint, method string, successes, failures int, latencyMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO api_usage_log (date, endpoint, method, success_count, error_count, total_latency_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date, endpoint, method) DO UPDATE SET
			success_count = api_usage_log.success_count + excluded.success_count,
			error_count = api_usage_log.error_count + excluded.error_count,
			total_latency_ms = api_usage_log.total_latency_ms + excluded.total_latency_ms,
			updated_at = CURRENT_TIMESTAMP
	`, date, endpoint, method, successes, failures, latencyMs)
	if err != nil {
		return fmt.Errorf("failed to upsert usage stats: %w", err)
	}
	return nil
}

// DailyStats returns the aggregates for a single day sorted by volume
// descending.
func (s *Store) DailyStats(date string) ([]DailyStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT date, endpoint, method, success_count, error_count, total_latency_ms
		FROM api_usage_log
		WHERE date = ?
		ORDER BY success_count + error_count DESC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []DailyStat
	for rows.Next() {
		var st DailyStat
		var totalLatency int64
		if err := rows.Scan(&st.Date, &st.Endpoint, &st.Method, &st.SuccessCount, &st.ErrorCount, &totalLatency); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		st.TotalRequests = st.SuccessCount + st.ErrorCount
		if st.TotalRequests > 0 {
			st.AvgLatencyMs = float64(totalLatency) / float64(st.TotalRequests)
			st.ErrorRate = float64(st.ErrorCount) / float64(st.TotalRequests) * 100
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// TrendSince returns per-day request/error totals for dates >= from,
// ascending by date.
func (s *Store) TrendSince(from string) ([]TrendPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT date, SUM(success_count), SUM(error_count)
		FROM api_usage_log
		WHERE date >= ?
		GROUP BY date
		ORDER BY date ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage trend: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var series []TrendPoint
	for rows.Next() {
		var p TrendPoint
		var successes int
		if err := rows.Scan(&p.Date, &successes, &p.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		p.Requests = successes + p.Errors
		if p.Requests > 0 {
			p.ErrorRate = float64(p.Errors) / float64(p.Requests) * 100
		}
		series = append(series, p)
	}
	return series, rows.Err()
}

// PopularSince ranks endpoints by total traffic for dates >= from.
func (s *Store) PopularSince(from string, limit int) ([]EndpointStat, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT endpoint, method, SUM(success_count), SUM(error_count)
		FROM api_usage_log
		WHERE date >= ?
		GROUP BY endpoint, method
		ORDER BY SUM(success_count) + SUM(error_count) DESC
		LIMIT ?
	`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular endpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []EndpointStat
	for rows.Next() {
		var st EndpointStat
		var successes, failures int
		if err := rows.Scan(&st.Endpoint, &st.Method, &successes, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint stat: %w", err)
		}
		st.TotalRequests = successes + failures
		if st.TotalRequests > 0 {
			st.ErrorRate = float64(failures) / float64(st.TotalRequests) * 100
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ErrorsSince returns endpoints with failures for dates >= from, worst
// first.
func (s *Store) ErrorsSince(from string) ([]ErrorPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT endpoint, method, SUM(success_count), SUM(error_count)
		FROM api_usage_log
		WHERE date >= ?
		GROUP BY endpoint, method
		HAVING SUM(error_count) > 0
		ORDER BY SUM(error_count) DESC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query error patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []ErrorPattern
	for rows.Next() {
		var p ErrorPattern
		var successes int
		if err := rows.Scan(&p.Endpoint, &p.Method, &successes, &p.ErrorCount); err != nil {
			return nil, fmt.Errorf("failed to scan error pattern: %w", err)
		}
		p.TotalRequests = successes + p.ErrorCount
		if p.TotalRequests > 0 {
			p.ErrorRate = float64(p.ErrorCount) / float64(p.TotalRequests) * 100
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// DeleteBefore removes aggregate rows older than cutoff (exclusive) and
// returns the count removed.
func (s *Store) DeleteBefore(cutoff string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM api_usage_log WHERE date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old usage rows: %w", err)
	}
	return result.RowsAffected()
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

// DateKey formats t as the store's calendar-day key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
