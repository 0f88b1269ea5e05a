package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"arbiscout/internal/config"
)

const maxAttempts = 3

// httpClient is the shared transport for both platform clients: one rate
// limiter across the pool so concurrent tasks respect the external limits
// together, bounded retries with jittered exponential backoff.
type httpClient struct {
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func newHTTPClient(cfg config.Config, log *slog.Logger) *httpClient {
	rps := cfg.PlatformRateRPS
	if rps <= 0 {
		rps = 1
	}
	return &httpClient{
		client:  &http.Client{Timeout: time.Duration(cfg.PlatformTimeoutMs) * time.Millisecond},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) arbiscout/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			c.backoff(ctx, attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("status %d", resp.StatusCode)
				c.log.Warn("retrying platform request", "url", url, "status", resp.StatusCode, "attempt", attempt)
				c.backoff(ctx, attempt)
				continue
			}
			return nil, fmt.Errorf("%w: status=%d url=%s", ErrFetch, resp.StatusCode, url)
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("request failed: %s", url)
	}
	return nil, fmt.Errorf("%w: %w", ErrFetch, lastErr)
}

func (c *httpClient) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
