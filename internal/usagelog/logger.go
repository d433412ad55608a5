// Package usagelog records per-endpoint call outcomes and folds them into
// daily aggregate counters. Logging is best-effort telemetry: nothing in
// this package ever fails the request path that feeds it.
package usagelog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// BatchSize triggers an immediate flush when the queue reaches it.
	BatchSize = 50
	// FlushInterval is the periodic flush cadence.
	FlushInterval = time.Minute
	// requeueLimit bounds how much of a failed batch is retried, so a
	// persistent storage outage cannot grow the queue without bound.
	requeueLimit = 10
)

// Record is one API call outcome. Records are ephemeral; only the daily
// aggregates survive a flush.
type Record struct {
	Endpoint  string
	Method    string
	Success   bool
	LatencyMs int64
	ErrorKind string
}

// Logger batches records and flushes them into a Store.
type Logger struct {
	store *Store

	mu    sync.Mutex
	queue []Record

	now func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock replaces the wall clock for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a logger writing aggregates to store.
func New(store *Store, opts ...Option) *Logger {
	l := &Logger{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log enqueues a record. When the queue reaches BatchSize the batch is
// flushed immediately; flush failures are swallowed, so Log never errors.
func (l *Logger) Log(record Record) {
	l.mu.Lock()
	l.queue = append(l.queue, record)
	full := len(l.queue) >= BatchSize
	l.mu.Unlock()

	if full {
		l.Flush()
	}
}

type groupKey struct {
	endpoint string
	method   string
}

type groupTotals struct {
	successes int
	failures  int
	latencyMs int64
}

// Flush drains the queue, groups records by (today, endpoint, method) and
// upserts each group's counters. When a store write fails, groups already
// persisted are dropped and at most requeueLimit records of the remaining
// groups are put back for the next attempt, so a retry never double-counts.
func (l *Logger) Flush() {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	date := DateKey(l.now())

	groups := make(map[groupKey]*groupTotals)
	order := make([]groupKey, 0)
	for _, record := range batch {
		key := groupKey{record.Endpoint, record.Method}
		g, ok := groups[key]
		if !ok {
			g = &groupTotals{}
			groups[key] = g
			order = append(order, key)
		}
		if record.Success {
			g.successes++
		} else {
			g.failures++
		}
		g.latencyMs += record.LatencyMs
	}

	for i, key := range order {
		g := groups[key]
		if err := l.store.Upsert(date, key.endpoint, key.method, g.successes, g.failures, g.latencyMs); err != nil {
			slog.Warn("Usage log flush failed, re-queueing bounded remainder", "error", err, "batch", len(batch))
			retry := unpersisted(batch, order[i:])
			l.mu.Lock()
			l.queue = append(retry, l.queue...)
			l.mu.Unlock()
			return
		}
	}
}

// unpersisted selects at most requeueLimit records belonging to the groups
// that have not been written yet, preserving batch order.
func unpersisted(batch []Record, remaining []groupKey) []Record {
	pending := make(map[groupKey]bool, len(remaining))
	for _, key := range remaining {
		pending[key] = true
	}

	var retry []Record
	for _, record := range batch {
		if !pending[groupKey{record.Endpoint, record.Method}] {
			continue
		}
		retry = append(retry, record)
		if len(retry) == requeueLimit {
			break
		}
	}
	return retry
}

// Start flushes the queue every FlushInterval until ctx is cancelled, then
// performs a final flush.
func (l *Logger) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				l.Flush()
				return
			case <-ticker.C:
				l.Flush()
			}
		}
	}()
}

// Close flushes any queued records.
func (l *Logger) Close() {
	l.Flush()
}

// Pending reports the current queue length.
func (l *Logger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// DailyStats returns the aggregates for date (today when empty), sorted by
// volume descending.
func (l *Logger) DailyStats(date string) ([]DailyStat, error) {
	if date == "" {
		date = DateKey(l.now())
	}
	return l.store.DailyStats(date)
}

// Trend holds a rolling usage series.
type Trend struct {
	Period string       `json:"period"`
	Series []TrendPoint `json:"series"`
}

// GetTrend returns per-day totals over the last days.
func (l *Logger) GetTrend(period string, days int) (Trend, error) {
	if days <= 0 {
		days = 7
	}
	from := DateKey(l.now().AddDate(0, 0, -days))
	series, err := l.store.TrendSince(from)
	if err != nil {
		return Trend{}, err
	}
	return Trend{Period: period, Series: series}, nil
}

// PopularEndpoints ranks endpoints by traffic over the last days.
func (l *Logger) PopularEndpoints(days, limit int) ([]EndpointStat, error) {
	if days <= 0 {
		days = 7
	}
	return l.store.PopularSince(DateKey(l.now().AddDate(0, 0, -days)), limit)
}

// ErrorPatterns returns endpoints with failures over the last days.
func (l *Logger) ErrorPatterns(days int) ([]ErrorPattern, error) {
	if days <= 0 {
		days = 7
	}
	return l.store.ErrorsSince(DateKey(l.now().AddDate(0, 0, -days)))
}

// Cleanup deletes aggregates older than retentionDays and returns the count
// removed.
func (l *Logger) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return l.store.DeleteBefore(DateKey(l.now().AddDate(0, 0, -retentionDays)))
}
