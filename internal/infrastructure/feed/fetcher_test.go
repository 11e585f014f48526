package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ivdhub/internal/ports"
)

func TestHTTPFetcherRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.Client(), 3, time.Millisecond)
	body, fetchedAt, err := fetcher.Fetch(context.Background(), ports.SourceConfig{
		SourceKey: "nmpa_registry",
		FeedURL:   server.URL,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `[]` {
		t.Fatalf("body = %q", body)
	}
	if fetchedAt.IsZero() {
		t.Fatalf("fetchedAt must be set")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestHTTPFetcherStopsOnDeterministicFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.Client(), 3, time.Millisecond)
	if _, _, err := fetcher.Fetch(context.Background(), ports.SourceConfig{
		SourceKey: "nmpa_registry",
		FeedURL:   server.URL,
	}); err == nil {
		t.Fatalf("404 should fail")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestHTTPFetcherRequiresFeedURL(t *testing.T) {
	fetcher := NewHTTPFetcher(nil, 1, time.Millisecond)
	if _, _, err := fetcher.Fetch(context.Background(), ports.SourceConfig{SourceKey: "nmpa_registry"}); err == nil {
		t.Fatalf("missing feed url should fail")
	}
}
