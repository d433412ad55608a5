package kakao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lepinkainen/bookfetch/internal/apierr"
)

// fetch runs the attempt loop for a fully built endpoint URL: dispatch,
// classify, back off on retryable failures until the retry cap is reached.
// Per-request state transitions: built -> sent -> succeeded, or sent ->
// retryable failure -> (backoff) -> sent again, or sent -> terminal failure.
func (c *Client) fetch(ctx context.Context, endpoint string) (*SearchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				// The wait only fails when the context cannot outlast it,
				// either already cancelled or with too little deadline left.
				return nil, apierr.New(apierr.KindTimeout, "request cancelled while waiting to dispatch")
			}
		}

		result, err := c.doAttempt(ctx, endpoint)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !apierr.KindOf(err).Retryable() || attempt == c.maxRetries {
			return nil, err
		}

		select {
		case <-time.After(backoffDelay(attempt)):
		case <-ctx.Done():
			return nil, apierr.New(apierr.KindTimeout, "request cancelled during backoff")
		}
	}
	return nil, lastErr
}

// doAttempt performs a single HTTP attempt bound by the client timeout.
func (c *Client) doAttempt(ctx context.Context, endpoint string) (*SearchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apierr.Newf(apierr.KindUnexpected, "failed to build request: %v", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("%s %s", authorizationSchem, c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, apierr.Newf(apierr.KindInvalidResponse, "failed to decode response: %v", err)
	}
	if !wire.valid() {
		return nil, apierr.New(apierr.KindInvalidResponse, "response is missing documents or meta")
	}

	return wire.toResult(), nil
}

// classifyStatus maps an upstream HTTP status to the error taxonomy.
// 429 and 5xx are retryable; 400/401/403 indicate a caller or credential
// problem and are surfaced as-is.
func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusBadRequest:
		return apierr.WithCode(apierr.KindBadRequest, status, "upstream rejected the request")
	case http.StatusUnauthorized:
		return apierr.WithCode(apierr.KindUnauthorized, status, "API key is invalid")
	case http.StatusForbidden:
		return apierr.WithCode(apierr.KindForbidden, status, "API key lacks permission")
	case http.StatusTooManyRequests:
		return apierr.WithCode(apierr.KindRateLimited, status, "upstream rate limit hit")
	}
	if status >= 500 {
		return apierr.WithCode(apierr.KindServerError, status, "upstream server error")
	}
	return apierr.WithCode(apierr.KindUnexpected, status, fmt.Sprintf("unexpected status: %s", body))
}

// classifyTransportError maps transport-level failures. Deadline and
// cancellation become Timeout; everything else is a transient network error.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.New(apierr.KindTimeout, "request timed out")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return apierr.New(apierr.KindTimeout, "request timed out")
	}
	return apierr.Newf(apierr.KindNetworkError, "network error: %v", err)
}

// backoffDelay is exponential from one second, capped at five.
func backoffDelay(attempt int) time.Duration {
	delay := time.Second << uint(attempt)
	if delay > 5*time.Second {
		return 5 * time.Second
	}
	return delay
}
