package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/logging"
)

// maxResponseBytes caps how much of an upstream response body we will read.
// The largest real payloads (full line listings) are well under 1 MiB.
const maxResponseBytes = 4 << 20

// maxAttempts bounds the retry loop for transient upstream failures.
const maxAttempts = 3

// Client talks to the transit operator's API and to the Nominatim reverse
// geocoder. All requests go through one tuned http.Client so timeouts and
// connection reuse are enforced in a single place.
type Client struct {
	http        *http.Client
	transitBase string
	geocodeBase string
	userAgent   string
	clock       clock.Clock
	logger      *slog.Logger

	// sleep is the backoff primitive; tests replace it so retries do not
	// take real time.
	sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, when set, is called once per retried request with the HTTP
	// status that triggered the retry.
	OnRetry func(status int)
}

// NewClient builds a Client with explicit timeouts and transport limits. The
// transport is cloned from http.DefaultTransport to preserve its defaults
// (ProxyFromEnvironment, DialContext, HTTP/2, keepalives).
func NewClient(transitBase, geocodeBase, userAgent string, clk clock.Clock, logger *slog.Logger) *Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &Client{
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		transitBase: transitBase,
		geocodeBase: geocodeBase,
		userAgent:   userAgent,
		clock:       clk,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Close releases idle connections held by the transport.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status signals a transient condition worth
// retrying: rate limiting or a server-side failure.
func (e *StatusError) Retryable() bool {
	return isRetryable(e.StatusCode)
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}

// getWithRetry issues a GET and retries transient failures with exponential
// backoff (2s, 4s, 8s). After the attempts are exhausted the last StatusError
// is returned.
func (c *Client) getWithRetry(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastStatus int
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, status, err := c.get(ctx, url, headers)
		if err != nil {
			return nil, err
		}
		if isRetryable(status) {
			lastStatus = status
			wait := time.Duration(1<<(attempt+1)) * time.Second
			c.logger.Warn("retrying upstream request",
				slog.String("url", url),
				slog.Int("status", status),
				slog.Duration("wait", wait),
				slog.Int("attempt", attempt+1))
			if c.OnRetry != nil {
				c.OnRetry(status)
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		if status != http.StatusOK {
			return nil, &StatusError{URL: url, StatusCode: status}
		}
		return body, nil
	}
	logging.LogError(c.logger, "upstream retries exhausted", &StatusError{URL: url, StatusCode: lastStatus},
		slog.String("url", url))
	return nil, &StatusError{URL: url, StatusCode: lastStatus}
}

// get issues a single GET and returns the body and status. Network errors are
// returned as errors; HTTP error statuses are left to the caller.
func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "response_body")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body from %s: %w", url, err)
	}
	return body, resp.StatusCode, nil
}

// sleepContext waits for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
