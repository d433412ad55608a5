package books

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/bookfetch/internal/apierr"
	"github.com/lepinkainen/bookfetch/internal/cache"
	"github.com/lepinkainen/bookfetch/internal/kakao"
	"github.com/lepinkainen/bookfetch/internal/quota"
	"github.com/lepinkainen/bookfetch/internal/testutil"
	"github.com/lepinkainen/bookfetch/internal/usagelog"
)

// fakeSearcher counts upstream calls and returns canned results.
type fakeSearcher struct {
	searchCalls int
	isbnCalls   int

	result *kakao.SearchResult
	book   *kakao.Book
	err    error
}

func (f *fakeSearcher) Search(ctx context.Context, params kakao.SearchParams) (*kakao.SearchResult, error) {
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSearcher) GetByISBN(ctx context.Context, isbn string) (*kakao.Book, error) {
	f.isbnCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.book, nil
}

func sampleResult() *kakao.SearchResult {
	return &kakao.SearchResult{
		Books: []kakao.Book{{
			Title:     "The Go Programming Language",
			Authors:   []string{"Alan Donovan", "Brian Kernighan"},
			Publisher: "Addison-Wesley",
			ISBN:      "9780134190440",
			Price:     35000,
		}},
		TotalCount:    1,
		PageableCount: 1,
		IsEnd:         true,
	}
}

type apiFixture struct {
	api     *API
	client  *fakeSearcher
	tiered  *cache.Tiered
	tracker *quota.Tracker
	usage   *usagelog.Logger
}

func newFixture(t *testing.T, ceiling int) *apiFixture {
	t.Helper()

	env := testutil.NewTestEnv(t)

	cacheStore, err := cache.NewStore(env.DBPath("cache.db"))
	require.NoError(t, err)

	usageStore, err := usagelog.NewStore(env.DBPath("usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = usageStore.Close() })

	client := &fakeSearcher{result: sampleResult()}
	tiered := cache.NewTiered(cacheStore)
	t.Cleanup(func() { _ = tiered.Close() })
	tracker := quota.New(ceiling)
	usage := usagelog.New(usageStore)

	return &apiFixture{
		api:     New(client, tiered, tracker, usage, WithSleep(func(time.Duration) {})),
		client:  client,
		tiered:  tiered,
		tracker: tracker,
		usage:   usage,
	}
}

func TestSearchCachesSecondCall(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	params := kakao.SearchParams{Query: "go"}

	first := f.api.Search(ctx, params)
	require.True(t, first.Success)
	assert.Equal(t, 1, f.client.searchCalls)

	second := f.api.Search(ctx, params)
	require.True(t, second.Success)
	assert.Equal(t, 1, f.client.searchCalls, "cache hit must not reach upstream")
	assert.Equal(t, first.Data.TotalCount, second.Data.TotalCount)
	assert.Equal(t, first.Data.Books, second.Data.Books)

	// The cached call consumed no quota.
	assert.Equal(t, 99, f.tracker.Remaining())
}

func TestSearchKeyNormalizationSharesCacheEntries(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	f.api.Search(ctx, kakao.SearchParams{Query: "go"})
	f.api.Search(ctx, kakao.SearchParams{Query: "  go  ", Page: 1, Size: 10})

	assert.Equal(t, 1, f.client.searchCalls, "equivalent params must share a cache entry")
}

func TestSearchQuotaRefusal(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	require.True(t, f.api.Search(ctx, kakao.SearchParams{Query: "first"}).Success)

	refused := f.api.Search(ctx, kakao.SearchParams{Query: "second"})
	assert.False(t, refused.Success)
	assert.Equal(t, apierr.KindQuotaExceeded, refused.ErrorKind())
	assert.Equal(t, 1, f.client.searchCalls, "quota refusal must not reach upstream")
}

func TestSearchCacheHitBypassesQuota(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	params := kakao.SearchParams{Query: "go"}

	require.True(t, f.api.Search(ctx, params).Success)
	assert.Equal(t, 0, f.tracker.Remaining())

	// Exhausted quota, but the cached entry still serves.
	cached := f.api.Search(ctx, params)
	assert.True(t, cached.Success)
}

func TestSearchUpstreamFailureCountsAgainstQuota(t *testing.T) {
	f := newFixture(t, 10)
	f.client.err = apierr.New(apierr.KindServerError, "upstream down")
	ctx := context.Background()

	result := f.api.Search(ctx, kakao.SearchParams{Query: "go"})
	assert.False(t, result.Success)
	assert.Equal(t, apierr.KindServerError, result.ErrorKind())
	assert.Equal(t, 9, f.tracker.Remaining(), "a dispatched failure still consumed a call")
}

func TestSearchValidationFailureIsQuotaFree(t *testing.T) {
	f := newFixture(t, 10)
	f.client.err = apierr.New(apierr.KindInvalidParams, "search query must not be empty")
	ctx := context.Background()

	result := f.api.Search(ctx, kakao.SearchParams{Query: ""})
	assert.False(t, result.Success)
	assert.Equal(t, apierr.KindInvalidParams, result.ErrorKind())
	assert.Equal(t, 10, f.tracker.Remaining())
}

func TestSearchFailureIsNotCached(t *testing.T) {
	f := newFixture(t, 10)
	f.client.err = apierr.New(apierr.KindServerError, "upstream down")
	ctx := context.Background()
	params := kakao.SearchParams{Query: "go"}

	require.False(t, f.api.Search(ctx, params).Success)

	f.client.err = nil
	result := f.api.Search(ctx, params)
	assert.True(t, result.Success)
	assert.Equal(t, 2, f.client.searchCalls, "the retry after a failure must reach upstream")
}

func TestSearchLogsUsage(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.api.Search(ctx, kakao.SearchParams{Query: "go"})
	f.usage.Flush()

	stats, err := f.usage.DailyStats("")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, endpointSearch, stats[0].Endpoint)
	assert.Equal(t, 1, stats[0].SuccessCount)
}

func TestGetByISBNCachesResult(t *testing.T) {
	f := newFixture(t, 10)
	f.client.book = &sampleResult().Books[0]
	ctx := context.Background()

	first := f.api.GetByISBN(ctx, "978-01-3419-0440")
	require.True(t, first.Success)
	require.NotNil(t, first.Data)

	// Separator differences normalize to the same key.
	second := f.api.GetByISBN(ctx, "9780134190440")
	require.True(t, second.Success)
	assert.Equal(t, 1, f.client.isbnCalls)
	assert.Equal(t, first.Data.ISBN, second.Data.ISBN)
}

func TestGetByISBNNotFoundIsSuccess(t *testing.T) {
	f := newFixture(t, 10)
	f.client.book = nil
	ctx := context.Background()

	result := f.api.GetByISBN(ctx, "9780134190440")
	assert.True(t, result.Success)
	assert.Nil(t, result.Data)
	assert.Equal(t, 9, f.tracker.Remaining())
}

func TestGetByISBNInvalidIdentifierIsQuotaFree(t *testing.T) {
	f := newFixture(t, 10)
	f.client.err = apierr.New(apierr.KindInvalidISBN, "identifier must be 10 or 13 digits")
	ctx := context.Background()

	result := f.api.GetByISBN(ctx, "12345")
	assert.False(t, result.Success)
	assert.Equal(t, apierr.KindInvalidISBN, result.ErrorKind())
	assert.Equal(t, 10, f.tracker.Remaining())
}

func TestUsageStatus(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.api.Search(ctx, kakao.SearchParams{Query: "go"})

	status := f.api.UsageStatus()
	assert.Equal(t, 1, status.Window.CallCount)
	assert.Equal(t, 10, status.Window.Ceiling)
	assert.Equal(t, 10, status.UsagePercent)
}

func TestUsageHistoryCoversSevenDays(t *testing.T) {
	f := newFixture(t, 10)

	history := f.api.UsageHistory()
	assert.Len(t, history, 7)
}

func TestStartBackgroundFlushesOnCancel(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	f.api.StartBackground(ctx)
	f.api.Search(ctx, kakao.SearchParams{Query: "go"})
	require.Equal(t, 1, f.usage.Pending())

	cancel()

	assert.Eventually(t, func() bool {
		return f.usage.Pending() == 0
	}, time.Second, 5*time.Millisecond, "cancellation should drain the usage queue")

	stats, err := f.usage.DailyStats("")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, endpointSearch, stats[0].Endpoint)
}

func TestStartBackgroundRequestsUnaffected(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.api.StartBackground(ctx)

	result := f.api.Search(ctx, kakao.SearchParams{Query: "go"})
	assert.True(t, result.Success)

	cached := f.api.Search(ctx, kakao.SearchParams{Query: "go"})
	assert.True(t, cached.Success)
	assert.Equal(t, 1, f.client.searchCalls)
}

func TestCacheStats(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	params := kakao.SearchParams{Query: "go"}

	f.api.Search(ctx, params)
	f.api.Search(ctx, params)

	stats := f.api.CacheStats()
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
}
