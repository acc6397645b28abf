package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxPostingBytes caps how much of a posting page is read. Postings
// are text; anything larger is almost certainly not one.
const maxPostingBytes = 2 << 20

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// HTTPFetcher retrieves job postings over HTTP.
//
// An optional rate limiter throttles requests so large batches do not
// hammer posting sites. The limiter is shared across all items of all
// batches using this fetcher.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	// RequestTimeout bounds a single HTTP request independently of the
	// item deadline. Zero disables the client-level timeout; the item
	// context still applies.
	RequestTimeout time.Duration

	// RateLimit is the maximum requests per second across all items.
	// Zero means unlimited.
	RateLimit float64
}

// NewHTTPFetcher creates a fetcher with the given configuration.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (*Posting, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build posting request: %w", err)
	}
	req.Header.Set("User-Agent", "tailorbatch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch posting: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch posting: unexpected status %d for %s", resp.StatusCode, ref)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPostingBytes))
	if err != nil {
		return nil, fmt.Errorf("read posting body: %w", err)
	}

	p := &Posting{Ref: ref, Body: string(body)}
	if m := titleRe.FindStringSubmatch(p.Body); m != nil {
		p.Title = strings.TrimSpace(m[1])
	}
	return p, nil
}

// Compile-time check that HTTPFetcher implements Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)
