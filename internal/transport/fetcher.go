// Package transport retrieves raw STIX bundles. Concurrent requests for
// the same URL share one round trip, resolved bundles are kept in memory,
// and an optional Redis cache shares them across processes.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Auth carries the Basic credentials of a dataset version
type Auth struct {
	ServiceName string
	APIKey      string
}

// Request asks for one bundle. Refresh evicts cached copies first.
type Request struct {
	URL     string
	Auth    *Auth
	Refresh bool
}

// Options configures a Fetcher
type Options struct {
	Timeout time.Duration
	// Rate is the sustained request rate per second; zero disables limiting
	Rate   float64
	Burst  int
	Cache  Cache
	Client *http.Client
	Logger *slog.Logger
}

// Fetcher retrieves bundles over HTTP(S) or from file:// URLs
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cache   Cache
	logger  *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	resolved map[string][]byte
	// generation is bumped by every refresh; a fetch started under an older
	// generation does not overwrite the resolved copy
	generation map[string]uint64
}

// NewFetcher creates a fetcher
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		client:     client,
		limiter:    limiter,
		cache:      opts.Cache,
		logger:     logger.With("component", "transport"),
		resolved:   make(map[string][]byte),
		generation: make(map[string]uint64),
	}
}

// Fetch returns the bundle at req.URL. The returned bytes are shared and
// must not be modified.
//
// Concurrent callers share one round trip. A refresh never joins a fetch
// already in flight. The shared round trip is detached from the caller that
// started it, so one caller giving up does not fail the others; each caller
// still stops waiting when its own ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if req.Refresh {
		f.group.Forget(req.URL)
		f.Forget(ctx, req.URL)
	} else if data, ok := f.lookup(ctx, req.URL); ok {
		return data, nil
	}

	f.mu.RLock()
	gen := f.generation[req.URL]
	f.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(req.URL, func() (interface{}, error) {
		data, err := f.retrieve(detached, req)
		if err != nil {
			return nil, err
		}
		f.store(detached, req.URL, data, gen)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, &TransportError{URL: req.URL, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			f.logger.Debug("shared in-flight fetch", "url", req.URL)
		}
		return res.Val.([]byte), nil
	}
}

// Forget evicts a URL from the in-memory and shared caches
func (f *Fetcher) Forget(ctx context.Context, rawURL string) {
	f.mu.Lock()
	delete(f.resolved, rawURL)
	f.generation[rawURL]++
	f.mu.Unlock()

	if f.cache != nil {
		if err := f.cache.Delete(ctx, rawURL); err != nil {
			f.logger.Warn("failed to evict cached bundle", "url", rawURL, "error", err)
		}
	}
}

func (f *Fetcher) lookup(ctx context.Context, rawURL string) ([]byte, bool) {
	f.mu.RLock()
	data, ok := f.resolved[rawURL]
	f.mu.RUnlock()
	if ok {
		return data, true
	}

	if f.cache == nil {
		return nil, false
	}
	data, ok, err := f.cache.Get(ctx, rawURL)
	if err != nil {
		f.logger.Warn("bundle cache unavailable", "url", rawURL, "error", err)
		return nil, false
	}
	if ok {
		f.mu.Lock()
		f.resolved[rawURL] = data
		f.mu.Unlock()
		f.logger.Debug("bundle cache hit", "url", rawURL)
	}
	return data, ok
}

func (f *Fetcher) store(ctx context.Context, rawURL string, data []byte, gen uint64) {
	f.mu.Lock()
	if f.generation[rawURL] != gen {
		f.mu.Unlock()
		f.logger.Debug("discarding superseded fetch", "url", rawURL)
		return
	}
	f.resolved[rawURL] = data
	f.mu.Unlock()

	if f.cache != nil {
		if err := f.cache.Set(ctx, rawURL, data); err != nil {
			f.logger.Warn("failed to cache bundle", "url", rawURL, "error", err)
		}
	}
}

func (f *Fetcher) retrieve(ctx context.Context, req Request) ([]byte, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	if u.Scheme == "file" {
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, &TransportError{URL: req.URL, Err: err}
		}
		return data, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{URL: req.URL, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: err}
	}
	if req.Auth != nil {
		httpReq.SetBasicAuth(req.Auth.ServiceName, req.Auth.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	f.logger.Info("fetched bundle", "url", req.URL, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}
