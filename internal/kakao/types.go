package kakao

import (
	"strings"

	"github.com/samber/lo"
)

// SortMode selects the upstream result ordering.
type SortMode string

const (
	// SortAccuracy orders by relevance. Upstream default.
	SortAccuracy SortMode = "accuracy"
	// SortLatest orders by publication date.
	SortLatest SortMode = "latest"
)

// SearchParams describes one book search. Zero values fall back to
// accuracy sort, page 1, size 10; Size is clamped to the upstream maximum
// of 50.
type SearchParams struct {
	Query string   `json:"query"`
	Sort  SortMode `json:"sort"`
	Page  int      `json:"page"`
	Size  int      `json:"size"`
}

// normalized returns a copy with defaults applied and limits clamped.
func (p SearchParams) normalized() SearchParams {
	p.Query = strings.TrimSpace(p.Query)
	if p.Sort != SortLatest {
		p.Sort = SortAccuracy
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Book is a normalized search document. String fields are trimmed, list
// fields are filtered of blanks, the ISBN is digits only and prices are
// floored at zero — absent upstream values become empty strings or zero,
// never null, so downstream consumers can skip nil checks.
type Book struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Publisher   string   `json:"publisher"`
	ISBN        string   `json:"isbn"`
	Thumbnail   string   `json:"thumbnail"`
	Contents    string   `json:"contents"`
	URL         string   `json:"url"`
	Datetime    string   `json:"datetime"`
	Translators []string `json:"translators"`
	Price       int      `json:"price"`
	SalePrice   int      `json:"sale_price"`
	Status      string   `json:"status"`
}

// SearchResult is one page of normalized search results.
type SearchResult struct {
	Books         []Book `json:"documents"`
	TotalCount    int    `json:"totalCount"`
	PageableCount int    `json:"pageableCount"`
	IsEnd         bool   `json:"isEnd"`
}

// Wire shapes. Pointer fields let validation distinguish a missing section
// from a zero value so a contract change fails closed as InvalidResponse.
type wireDocument struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Publisher   string   `json:"publisher"`
	ISBN        string   `json:"isbn"`
	Thumbnail   string   `json:"thumbnail"`
	Contents    string   `json:"contents"`
	URL         string   `json:"url"`
	Datetime    string   `json:"datetime"`
	Translators []string `json:"translators"`
	Price       int      `json:"price"`
	SalePrice   int      `json:"sale_price"`
	Status      string   `json:"status"`
}

type wireMeta struct {
	TotalCount    *int  `json:"total_count"`
	PageableCount *int  `json:"pageable_count"`
	IsEnd         *bool `json:"is_end"`
}

type wireResponse struct {
	Documents []wireDocument `json:"documents"`
	Meta      *wireMeta      `json:"meta"`
}

// valid reports whether the response carries the documented shape.
func (r *wireResponse) valid() bool {
	return r != nil && r.Documents != nil && r.Meta != nil &&
		r.Meta.TotalCount != nil && r.Meta.IsEnd != nil
}

// toResult normalizes the wire response into a SearchResult.
func (r *wireResponse) toResult() *SearchResult {
	result := &SearchResult{
		Books:      make([]Book, 0, len(r.Documents)),
		TotalCount: *r.Meta.TotalCount,
		IsEnd:      *r.Meta.IsEnd,
	}
	if r.Meta.PageableCount != nil {
		result.PageableCount = *r.Meta.PageableCount
	}
	for _, doc := range r.Documents {
		result.Books = append(result.Books, doc.normalize())
	}
	return result
}

func (d wireDocument) normalize() Book {
	price := d.Price
	if price < 0 {
		price = 0
	}
	salePrice := d.SalePrice
	if salePrice < 0 {
		salePrice = 0
	}
	return Book{
		Title:       strings.TrimSpace(d.Title),
		Authors:     trimNonBlank(d.Authors),
		Publisher:   strings.TrimSpace(d.Publisher),
		ISBN:        NormalizeISBN(d.ISBN),
		Thumbnail:   strings.TrimSpace(d.Thumbnail),
		Contents:    strings.TrimSpace(d.Contents),
		URL:         strings.TrimSpace(d.URL),
		Datetime:    strings.TrimSpace(d.Datetime),
		Translators: trimNonBlank(d.Translators),
		Price:       price,
		SalePrice:   salePrice,
		Status:      strings.TrimSpace(d.Status),
	}
}

func trimNonBlank(values []string) []string {
	trimmed := lo.Map(values, func(v string, _ int) string {
		return strings.TrimSpace(v)
	})
	return lo.Filter(trimmed, func(v string, _ int) bool {
		return v != ""
	})
}

// NormalizeISBN strips hyphens and whitespace from an identifier so that
// storage and comparison always work on the digits-only form.
func NormalizeISBN(isbn string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, isbn)
}

// ValidISBN reports whether isbn is 10 or 13 digits after separator
// stripping.
func ValidISBN(isbn string) bool {
	clean := NormalizeISBN(isbn)
	if len(clean) != 10 && len(clean) != 13 {
		return false
	}
	for _, r := range clean {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
