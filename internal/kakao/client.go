// Package kakao provides a client for the Kakao book-search API.
package kakao

import (
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/bookfetch/internal/ratelimit"
)

const (
	defaultBaseURL     = "https://dapi.kakao.com/v3/search/book"
	defaultMaxRetries  = 3
	defaultTimeout     = 10 * time.Second
	defaultRatePerSec  = 10
	maxPageSize        = 50
	defaultPageSize    = 10
	authorizationSchem = "KakaoAK"
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a Kakao book-search API client.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  HTTPDoer
	rateLimiter *ratelimit.Limiter
	maxRetries  int
	timeout     time.Duration
}

// NewClient creates a new Kakao API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: ratelimit.New("Kakao", defaultRatePerSec),
		maxRetries:  defaultMaxRetries,
		timeout:     defaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL for the search endpoint.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithMaxRetries sets the retry cap for transient failures.
func WithMaxRetries(retries int) Option {
	return func(client *Client) {
		if retries >= 0 {
			client.maxRetries = retries
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// WithRateLimiter sets a custom rate limiter for the client.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(client *Client) {
		if limiter != nil {
			client.rateLimiter = limiter
		}
	}
}
