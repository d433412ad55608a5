package books

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/bookfetch/internal/apierr"
)

func TestSearchBatchAllSucceed(t *testing.T) {
	f := newFixture(t, 100)

	result := f.api.SearchBatch(context.Background(), []string{"go", "rust", "zig"})

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 3, result.Summary.SuccessCount)
	assert.Equal(t, 0, result.Summary.FailureCount)
	assert.False(t, result.Summary.QuotaExceeded)
	require.Len(t, result.Results, 3)
	assert.Equal(t, "rust", result.Results[1].Query)
	assert.Equal(t, 3, f.client.searchCalls)
}

func TestSearchBatchStopsOnQuotaExceeded(t *testing.T) {
	f := newFixture(t, 1)

	result := f.api.SearchBatch(context.Background(), []string{"go", "rust", "zig"})

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.SuccessCount)
	assert.Equal(t, 1, result.Summary.FailureCount)
	assert.True(t, result.Summary.QuotaExceeded)
	require.Len(t, result.Results, 2, "queries after the quota refusal are never attempted")
	assert.Equal(t, apierr.KindQuotaExceeded, result.Results[1].Response.ErrorKind())
	assert.Equal(t, 1, f.client.searchCalls)
}

func TestSearchBatchContinuesPastOtherFailures(t *testing.T) {
	f := newFixture(t, 100)
	f.client.err = apierr.New(apierr.KindServerError, "upstream down")

	result := f.api.SearchBatch(context.Background(), []string{"go", "rust"})

	assert.Equal(t, 0, result.Summary.SuccessCount)
	assert.Equal(t, 2, result.Summary.FailureCount)
	assert.False(t, result.Summary.QuotaExceeded)
	assert.Equal(t, 2, f.client.searchCalls, "non-quota failures do not stop the batch")
}

func TestSearchBatchServesFromCache(t *testing.T) {
	f := newFixture(t, 100)

	f.api.SearchBatch(context.Background(), []string{"go", "go"})

	assert.Equal(t, 1, f.client.searchCalls, "identical queries should share the cache entry")

	result := f.api.SearchBatch(context.Background(), []string{"go"})
	assert.Equal(t, 1, result.Summary.SuccessCount)
	assert.Equal(t, 1, f.client.searchCalls)
}

func TestSearchBatchEmptyInput(t *testing.T) {
	f := newFixture(t, 100)

	result := f.api.SearchBatch(context.Background(), nil)

	assert.Equal(t, 0, result.Summary.Total)
	assert.Empty(t, result.Results)
	assert.Equal(t, 0, f.client.searchCalls)
}

func TestPopularBooksCoversAllCategories(t *testing.T) {
	f := newFixture(t, 100)

	result := f.api.PopularBooks(context.Background())
	require.True(t, result.Success)

	require.Len(t, result.Data, 3)
	for _, name := range []string{"fiction", "nonfiction", "recent"} {
		assert.Contains(t, result.Data, name)
		assert.NotEmpty(t, result.Data[name])
	}
}

func TestPopularBooksFailedCategoryIsEmptyList(t *testing.T) {
	f := newFixture(t, 100)
	f.client.err = apierr.New(apierr.KindServerError, "upstream down")

	result := f.api.PopularBooks(context.Background())
	require.True(t, result.Success, "a failing category never fails the whole call")

	require.Len(t, result.Data, 3)
	for name, books := range result.Data {
		assert.Empty(t, books, "category %s should be empty, not missing", name)
	}
}
