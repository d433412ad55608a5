package books

import (
	"context"
	"time"

	"github.com/lepinkainen/bookfetch/internal/apierr"
	"github.com/lepinkainen/bookfetch/internal/kakao"
)

const (
	// batchDelay spaces sequential batch calls to avoid bursting upstream.
	batchDelay = 100 * time.Millisecond
	// popularDelay spaces the predefined popular-book queries.
	popularDelay  = 200 * time.Millisecond
	batchPageSize = 5
)

// BatchItem pairs one batch query with its outcome.
type BatchItem struct {
	Query    string                      `json:"query"`
	Response Result[*kakao.SearchResult] `json:"response"`
}

// BatchSummary totals a batch run. QuotaExceeded marks an early stop:
// queries after the first quota refusal are never attempted.
type BatchSummary struct {
	Total         int  `json:"total"`
	SuccessCount  int  `json:"successCount"`
	FailureCount  int  `json:"failureCount"`
	QuotaExceeded bool `json:"quotaExceeded"`
}

// BatchResult is the outcome of SearchBatch.
type BatchResult struct {
	Results []BatchItem  `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// SearchBatch runs the queries sequentially with a fixed inter-call delay,
// stopping early the moment any call is refused for quota.
func (a *API) SearchBatch(ctx context.Context, queries []string) BatchResult {
	result := BatchResult{
		Summary: BatchSummary{Total: len(queries)},
	}

	for i, query := range queries {
		response := a.Search(ctx, kakao.SearchParams{Query: query, Size: batchPageSize})
		result.Results = append(result.Results, BatchItem{Query: query, Response: response})

		if response.Success {
			result.Summary.SuccessCount++
		} else {
			result.Summary.FailureCount++
			if response.ErrorKind() == apierr.KindQuotaExceeded {
				result.Summary.QuotaExceeded = true
				break
			}
		}

		if i < len(queries)-1 {
			a.sleep(batchDelay)
		}
	}

	return result
}

// popularCategories are the predefined popular-book queries. Static
// configuration, never user input.
var popularCategories = []struct {
	Name  string
	Query string
}{
	{"fiction", "소설 베스트셀러"},
	{"nonfiction", "자기계발 베스트셀러"},
	{"recent", "신간 도서"},
}

// PopularBooks fetches the predefined categories with latest-first sorting.
// A failing category yields an empty list rather than aborting the rest.
func (a *API) PopularBooks(ctx context.Context) Result[map[string][]kakao.Book] {
	books := make(map[string][]kakao.Book, len(popularCategories))

	for i, category := range popularCategories {
		books[category.Name] = []kakao.Book{}

		response := a.Search(ctx, kakao.SearchParams{
			Query: category.Query,
			Sort:  kakao.SortLatest,
			Size:  10,
		})
		if response.Success && response.Data != nil {
			books[category.Name] = response.Data.Books
		}

		if i < len(popularCategories)-1 {
			a.sleep(popularDelay)
		}
	}

	return OK(books)
}
