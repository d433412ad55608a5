package kakao

import (
	"context"
	"net/url"
	"strconv"

	"github.com/lepinkainen/bookfetch/internal/apierr"
)

// Search queries the book-search endpoint. An empty query short-circuits as
// InvalidParams before any network I/O. Transient upstream failures are
// retried with backoff inside the client; the caller sees only the final
// outcome.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	params = params.normalized()
	if params.Query == "" {
		return nil, apierr.New(apierr.KindInvalidParams, "search query must not be empty")
	}

	values := url.Values{}
	values.Set("query", params.Query)
	values.Set("sort", string(params.Sort))
	values.Set("page", strconv.Itoa(params.Page))
	values.Set("size", strconv.Itoa(params.Size))

	return c.fetch(ctx, c.baseURL+"?"+values.Encode())
}

// GetByISBN looks a single book up by identifier. The identifier must be 10
// or 13 digits after separator stripping. The upstream has no dedicated
// lookup endpoint, so this searches with the identifier as query text and
// scans for an exact post-normalization match. A missing book is (nil, nil),
// not an error.
func (c *Client) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	if !ValidISBN(isbn) {
		return nil, apierr.New(apierr.KindInvalidISBN, "identifier must be 10 or 13 digits")
	}
	clean := NormalizeISBN(isbn)

	result, err := c.Search(ctx, SearchParams{Query: clean, Size: 1})
	if err != nil {
		return nil, err
	}

	for i := range result.Books {
		if result.Books[i].ISBN == clean {
			return &result.Books[i], nil
		}
	}
	return nil, nil
}
