package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/haukened/hydirect/internal/rules/common/log"
	"github.com/haukened/hydirect/internal/rules/domain"
)

// Error message constants for consistent error handling
const (
	errInvalidProxy   = "invalid proxy: %w"
	errCacheInit      = "response cache: %w"
	errBuildRequest   = "build request: %w"
	errRequestFailed  = "request failed: %w"
	errReadFailed     = "read body: %w"
	errSourcePanicked = "source task panicked: %v"
)

var (
	// ErrStatus wraps any non-200 response.
	ErrStatus = errors.New("unexpected status")
	// ErrTimeout is returned when a request exceeds the per-request timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrBodyTooLarge is returned when a list exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

const (
	DefaultConcurrency = 10
	DefaultTimeout     = 20 * time.Second
	DefaultUserAgent   = "Quantumult%20X/1.0.30"

	// MaxBodyBytes caps a single rule list.
	MaxBodyBytes = 32 << 20
)

// Options configures a Fetcher. Zero values fall back to the defaults above.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
	// Proxy is an optional socks5://, http:// or https:// proxy URL.
	Proxy string
	// CacheSize bounds the response cache; 0 disables it.
	CacheSize int

	// options to inject for testing purposes
	Client *http.Client
	Logger log.Logger
}

// Fetcher retrieves rule lists over HTTP(S) with bounded concurrency.
type Fetcher struct {
	client      *http.Client
	concurrency int
	timeout     time.Duration
	userAgent   string
	cache       bodyCache
	inflight    singleflight.Group
	logger      log.Logger
}

// New creates a Fetcher from opts.
func New(opts Options) (*Fetcher, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Client == nil {
		tr, err := newTransport(opts.Proxy)
		if err != nil {
			return nil, err
		}
		opts.Client = &http.Client{Transport: tr}
	}
	cache, err := newBodyCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf(errCacheInit, err)
	}
	return &Fetcher{
		client:      opts.Client,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		userAgent:   opts.UserAgent,
		cache:       cache,
		logger:      opts.Logger,
	}, nil
}

// FetchAll retrieves every source with at most Concurrency requests in flight.
// payloads[i] always belongs to sources[i]; completion order is arbitrary.
// A failing source yields a payload with Err set and never affects the others.
func (f *Fetcher) FetchAll(ctx context.Context, sources []domain.Source) []domain.Payload {
	payloads := make([]domain.Payload, len(sources))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			payloads[i] = f.Fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	return payloads
}

// Fetch retrieves a single source. It never panics and never returns an error
// outside the payload.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) (p domain.Payload) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p = domain.Payload{Source: src, Err: fmt.Errorf(errSourcePanicked, r), Elapsed: time.Since(start)}
		}
		f.logResult(p)
	}()

	key := src.URL()
	if body, ok := f.cache.Get(key); ok {
		return domain.Payload{Source: src, Text: body, StatusCode: http.StatusOK, Elapsed: time.Since(start)}
	}

	v, err, shared := f.inflight.Do(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				v, err = result{}, fmt.Errorf(errSourcePanicked, r)
			}
		}()
		res, err := f.get(ctx, src)
		if err == nil {
			f.cache.Put(key, res.body)
		}
		return res, err
	})
	res, _ := v.(result)
	if shared {
		f.logger.Debug(map[string]any{"label": src.Label, "identifier": src.Identifier}, "fetch_coalesced")
	}

	p = domain.Payload{Source: src, StatusCode: res.status, Elapsed: time.Since(start)}
	if err != nil {
		p.Err = err
		return p
	}
	p.Text = res.body
	return p
}

type result struct {
	status int
	body   string
}

// get performs one GET bounded by the per-request timeout.
func (f *Fetcher) get(ctx context.Context, src domain.Source) (result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL(), nil)
	if err != nil {
		return result{}, fmt.Errorf(errBuildRequest, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return result{}, fmt.Errorf("%w after %v", ErrTimeout, f.timeout)
		}
		return result{}, fmt.Errorf(errRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return result{status: resp.StatusCode}, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return result{status: resp.StatusCode}, fmt.Errorf("%w after %v", ErrTimeout, f.timeout)
		}
		return result{status: resp.StatusCode}, fmt.Errorf(errReadFailed, err)
	}
	if len(body) > MaxBodyBytes {
		return result{status: resp.StatusCode}, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, MaxBodyBytes)
	}
	return result{status: resp.StatusCode, body: string(body)}, nil
}

func (f *Fetcher) logResult(p domain.Payload) {
	fields := map[string]any{
		"label":      p.Source.Label,
		"identifier": p.Source.Identifier,
		"elapsed_ms": p.Elapsed.Milliseconds(),
	}
	if p.StatusCode != 0 {
		fields["status"] = p.StatusCode
	}
	if p.Err != nil {
		fields["error"] = p.Err.Error()
		f.logger.Warn(fields, "fetch_failed")
		return
	}
	fields["bytes"] = len(p.Text)
	f.logger.Debug(fields, "fetch_ok")
}

// CacheStats reports response cache hits and misses since construction.
func (f *Fetcher) CacheStats() (hits, misses uint64) {
	return f.cache.Stats()
}
