// Package fetcher implements the bounded-concurrency, rate-limited page
// fetcher and its text extraction helper.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/bookmark-summarizer/internal/policy/ratelimit"
)

// Sentinel errors used to classify fetch outcomes.
var (
	// ErrInvalidURL marks URLs that are not syntactically valid http/https.
	// No network call is made for these.
	ErrInvalidURL = errors.New("invalid url")
	// ErrNotFound marks 404/410 responses. The page does not exist, so the
	// fetch is not retried.
	ErrNotFound = errors.New("page not found")
	// ErrTooLarge marks 200 responses whose body exceeds the size cap.
	// Retrying would not change the size, so the fetch is not retried.
	ErrTooLarge = errors.New("content exceeds size limit")
	// ErrFetchFailed marks fetches that exhausted the retry budget.
	ErrFetchFailed = errors.New("fetch failed")
)

// Config controls fetch behavior.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	MaxSizeBytes  int64
	RetryAttempts int
	RetryDelay    time.Duration
	MaxRedirects  int
	UserAgent     string
}

// Fetcher retrieves pages over HTTP. At most MaxConcurrent fetches are in
// flight at once; every attempt first passes the rolling-window rate limiter.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	gate          *semaphore.Weighted
	baseCollector *colly.Collector
	logger        *zap.Logger

	sleep func(context.Context, time.Duration) error
}

// New builds a Fetcher sharing the given rate limiter.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(colly.Async(false))
	base.IgnoreRobotsTxt = true
	// Clones share the visited-URL store, and retries as well as repeated
	// fetches of the same bookmark must hit the network again.
	base.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	if cfg.MaxSizeBytes > 0 {
		// One extra byte so an oversized body is observable instead of
		// silently truncated at the cap.
		base.MaxBodySize = int(cfg.MaxSizeBytes) + 1
	}
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	})
	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		gate:          semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		baseCollector: base,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// Fetch retrieves the page at rawURL and returns its body. Non-retryable
// failures return ErrInvalidURL, ErrNotFound, or ErrTooLarge; transient
// failures are retried with exponential backoff and eventually return
// ErrFetchFailed wrapping the last error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !validURL(rawURL) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	if err := f.gate.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("fetch admission: %w", err)
	}
	defer f.gate.Release(1)

	attempts := f.cfg.RetryAttempts + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		fetchRequests.Inc()
		body, status, err := f.attempt(ctx, rawURL)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
			}
			lastErr = err
			f.logger.Warn("fetch attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
				zap.Error(err),
			)
		case status == http.StatusOK:
			if f.cfg.MaxSizeBytes > 0 && int64(len(body)) > f.cfg.MaxSizeBytes {
				fetchErrors.Inc()
				return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(body))
			}
			return string(body), nil
		case status == http.StatusNotFound || status == http.StatusGone:
			fetchErrors.Inc()
			return "", fmt.Errorf("%w: status %d", ErrNotFound, status)
		default:
			lastErr = fmt.Errorf("unexpected status %d", status)
			f.logger.Warn("fetch attempt returned error status",
				zap.String("url", rawURL),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
			)
		}

		if attempt < attempts-1 {
			fetchRetries.Inc()
			delay := f.cfg.RetryDelay << attempt
			if err := f.sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("fetch backoff: %w", err)
			}
		}
	}

	fetchErrors.Inc()
	return "", fmt.Errorf("%w after %d attempts: %v", ErrFetchFailed, attempts, lastErr)
}

// attempt executes one HTTP GET via a cloned collector and reports the body
// and status. A transport-level failure is returned as err with status 0.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) ([]byte, int, error) {
	collector := f.baseCollector.Clone()
	maxRedirects := f.cfg.MaxRedirects
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	var (
		once   sync.Once
		body   []byte
		status int
		reqErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			body = append([]byte(nil), r.Body...)
			status = r.StatusCode
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		once.Do(func() {
			if r != nil && r.StatusCode > 0 {
				status = r.StatusCode
				return
			}
			if err == nil {
				err = errors.New("unknown transport error")
			}
			reqErr = err
		})
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if status > 0 {
			return body, status, nil
		}
		if reqErr != nil {
			return nil, 0, reqErr
		}
		if visitErr != nil {
			return nil, 0, visitErr
		}
		return nil, 0, errors.New("fetch produced no response")
	}
}

func validURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
