package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookmark-summarizer/internal/policy/ratelimit"
)

func newTestFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxSizeBytes == 0 {
		cfg.MaxSizeBytes = 1 << 20
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return New(cfg, nil, nil)
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{RetryAttempts: 2})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, body, "hello")
	require.Equal(t, int32(1), hits.Load())
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body>again</body></html>"))
	}))
	defer srv.Close()

	// One bookmark URL can come up more than once per run; the collector must
	// not dedupe the second request.
	f := newTestFetcher(t, Config{RetryAttempts: 1})
	for i := 0; i < 2; i++ {
		body, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Contains(t, body, "again")
	}
	require.Equal(t, int32(2), hits.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{RetryAttempts: 2})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", body)
	require.Equal(t, int32(3), hits.Load(), "two failures plus the final success")
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(status)
		}))

		f := newTestFetcher(t, Config{RetryAttempts: 3})
		_, err := f.Fetch(context.Background(), srv.URL)
		require.ErrorIs(t, err, ErrNotFound)
		require.Equal(t, int32(1), hits.Load(), "status %d must not be retried", status)
		srv.Close()
	}
}

func TestFetchDoesNotRetryOversizedBody(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	big := strings.Repeat("x", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(big))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{RetryAttempts: 3, MaxSizeBytes: 1024})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrTooLarge)
	require.Equal(t, int32(1), hits.Load())
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{RetryAttempts: 2})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchRejectsInvalidURLsWithoutNetwork(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, Config{})
	for _, raw := range []string{"", "ftp://example.com/file", "not a url", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		require.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestFetchBackoffDoubles(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{RetryAttempts: 3, RetryDelay: 100 * time.Millisecond})
	var delays []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, delays, "backoff is applied between attempts, not after the last one")
}

func TestFetchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{MaxConcurrent: 2})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFetchWaitsOnRateLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	limiter := ratelimit.New(ratelimit.Config{Limit: 2})
	f := New(Config{
		Timeout:       5 * time.Second,
		MaxConcurrent: 4,
		MaxSizeBytes:  1 << 20,
		RetryDelay:    time.Millisecond,
	}, limiter, nil)

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.Equal(t, 2, limiter.InFlight())

	// The window is full; a canceled context must abort the wait instead of
	// blocking for the remainder of the minute.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
