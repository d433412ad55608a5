// Package books is the facade over the Kakao client, the tiered response
// cache, the daily quota tracker and the usage logger. A single call runs
// strictly cache check -> quota check -> upstream call -> cache write ->
// quota record -> usage log; side channels (cache persistence, telemetry)
// never fail the request.
package books

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/bookfetch/internal/apierr"
	"github.com/lepinkainen/bookfetch/internal/cache"
	"github.com/lepinkainen/bookfetch/internal/kakao"
	"github.com/lepinkainen/bookfetch/internal/quota"
	"github.com/lepinkainen/bookfetch/internal/usagelog"
)

const (
	endpointSearch = "/api/books/search"
	endpointISBN   = "/api/books/isbn"

	// quotaCleanupInterval is how often stale quota windows are dropped.
	quotaCleanupInterval = time.Hour
)

// Searcher is the upstream client surface the facade depends on.
// *kakao.Client implements it.
type Searcher interface {
	Search(ctx context.Context, params kakao.SearchParams) (*kakao.SearchResult, error)
	GetByISBN(ctx context.Context, isbn string) (*kakao.Book, error)
}

// API coordinates the acquisition subsystem. It owns no persistent state
// itself; each collaborator owns its own store and locking.
type API struct {
	client  Searcher
	cache   *cache.Tiered
	tracker *quota.Tracker
	usage   *usagelog.Logger
	sleep   func(time.Duration)
}

// Option configures an API.
type Option func(*API)

// WithSleep replaces the inter-call delay function, letting tests run batch
// operations without wall-clock waits.
func WithSleep(sleep func(time.Duration)) Option {
	return func(a *API) {
		if sleep != nil {
			a.sleep = sleep
		}
	}
}

// New creates the facade with explicit collaborators.
func New(client Searcher, tiered *cache.Tiered, tracker *quota.Tracker, usage *usagelog.Logger, opts ...Option) *API {
	a := &API{
		client:  client,
		cache:   tiered,
		tracker: tracker,
		usage:   usage,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search runs a cached, quota-guarded book search.
func (a *API) Search(ctx context.Context, params kakao.SearchParams) Result[*kakao.SearchResult] {
	start := time.Now()
	key := searchKey(params)

	if payload, ok := a.cache.Get(key); ok {
		var cached kakao.SearchResult
		if err := json.Unmarshal([]byte(payload), &cached); err == nil {
			a.logOutcome(endpointSearch, start, nil)
			return OK(&cached)
		}
		slog.Warn("Failed to unmarshal cached search result, refetching", "key", key)
	}

	if !a.tracker.CanCall() {
		err := apierr.New(apierr.KindQuotaExceeded, "daily API quota exceeded, try again tomorrow")
		a.logOutcome(endpointSearch, start, err)
		return Fail[*kakao.SearchResult](err)
	}

	result, err := a.client.Search(ctx, params)
	if err != nil {
		a.recordDispatch(err)
		a.logOutcome(endpointSearch, start, err)
		return Fail[*kakao.SearchResult](err)
	}

	a.cacheWrite(key, result)
	a.tracker.Record()
	a.logOutcome(endpointSearch, start, nil)
	return OK(result)
}

// GetByISBN runs a cached, quota-guarded identifier lookup. A book that
// does not exist upstream is a successful result with nil data.
func (a *API) GetByISBN(ctx context.Context, isbn string) Result[*kakao.Book] {
	start := time.Now()
	key := cache.Key("isbn", map[string]string{"isbn": kakao.NormalizeISBN(isbn)})

	if payload, ok := a.cache.Get(key); ok {
		var cached *kakao.Book
		if err := json.Unmarshal([]byte(payload), &cached); err == nil {
			a.logOutcome(endpointISBN, start, nil)
			return OK(cached)
		}
		slog.Warn("Failed to unmarshal cached book, refetching", "key", key)
	}

	if !a.tracker.CanCall() {
		err := apierr.New(apierr.KindQuotaExceeded, "daily API quota exceeded, try again tomorrow")
		a.logOutcome(endpointISBN, start, err)
		return Fail[*kakao.Book](err)
	}

	book, err := a.client.GetByISBN(ctx, isbn)
	if err != nil {
		a.recordDispatch(err)
		a.logOutcome(endpointISBN, start, err)
		return Fail[*kakao.Book](err)
	}

	a.cacheWrite(key, book)
	a.tracker.Record()
	a.logOutcome(endpointISBN, start, nil)
	return OK(book)
}

// UsageStatus returns today's quota snapshot.
func (a *API) UsageStatus() quota.Stats {
	return a.tracker.Stats()
}

// UsageHistory returns the last week of quota windows, oldest first.
func (a *API) UsageHistory() []quota.Window {
	return a.tracker.History(7)
}

// CacheStats returns cache hit/miss counters.
func (a *API) CacheStats() cache.Stats {
	return a.cache.Stats()
}

// StartBackground launches the periodic maintenance tasks: the hourly cache
// sweep, the usage-log flush ticker and quota window cleanup. All stop when
// ctx is cancelled; none of them can fail an in-flight request.
func (a *API) StartBackground(ctx context.Context) {
	a.cache.StartSweeper(ctx, cache.DefaultSweepInterval)
	a.usage.Start(ctx)

	go func() {
		ticker := time.NewTicker(quotaCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := a.tracker.Cleanup(); removed > 0 {
					slog.Debug("Dropped stale quota windows", "removed", removed)
				}
			}
		}
	}()
}

// recordDispatch counts a failed client call against the quota when the
// request actually went out. Validation short-circuits never reach the
// network and stay free.
func (a *API) recordDispatch(err error) {
	switch apierr.KindOf(err) {
	case apierr.KindInvalidParams, apierr.KindInvalidISBN:
		return
	}
	a.tracker.Record()
}

func (a *API) cacheWrite(key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to marshal value for caching", "key", key, "error", err)
		return
	}
	a.cache.Set(key, string(payload))
}

func (a *API) logOutcome(endpoint string, start time.Time, err error) {
	record := usagelog.Record{
		Endpoint:  endpoint,
		Method:    "GET",
		Success:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		record.ErrorKind = string(apierr.KindOf(err))
	}
	a.usage.Log(record)
}

func searchKey(params kakao.SearchParams) string {
	sort := params.Sort
	if sort != kakao.SortLatest {
		sort = kakao.SortAccuracy
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	size := params.Size
	if size < 1 {
		size = 10
	}
	if size > 50 {
		size = 50
	}
	return cache.Key("search", map[string]string{
		"query": strings.TrimSpace(params.Query),
		"sort":  string(sort),
		"page":  strconv.Itoa(page),
		"size":  strconv.Itoa(size),
	})
}
