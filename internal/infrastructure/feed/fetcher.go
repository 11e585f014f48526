package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

const maxBodyBytes = 64 << 20

// Fetcher pulls one source document over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, cfg ports.SourceConfig) ([]byte, time.Time, error)
}

// HTTPFetcher retries transient failures a bounded number of times within
// the run; anything still failing after that surfaces to the run counters.
type HTTPFetcher struct {
	client      *http.Client
	maxAttempts int
	retryWait   time.Duration
}

func NewHTTPFetcher(client *http.Client, maxAttempts int, retryWait time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if retryWait <= 0 {
		retryWait = 2 * time.Second
	}
	return &HTTPFetcher{client: client, maxAttempts: maxAttempts, retryWait: retryWait}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, cfg ports.SourceConfig) ([]byte, time.Time, error) {
	if cfg.FeedURL == "" {
		return nil, time.Time{}, fmt.Errorf("source %s has no feed url", cfg.SourceKey)
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		body, fetchedAt, err := f.fetchOnce(ctx, cfg.FeedURL)
		if err == nil {
			return body, fetchedAt, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		logging.Warn(ctx, "transient fetch failure, retrying",
			slog.String("source", cfg.SourceKey),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, time.Time{}, ctx.Err()
		case <-time.After(f.retryWait):
		}
	}
	return nil, time.Time{}, errs.Wrapf(lastErr, "fetch %s", cfg.SourceKey)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, time.Time{}, errs.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "ivdhub/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, time.Time{}, errs.Wrap(err, "read body")
	}
	return body, time.Now().UTC(), nil
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return "unexpected status " + e.status
}

// isTransient separates retry-worthy failures (timeouts, resets, 5xx, 429)
// from deterministic ones (4xx, malformed URLs).
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
