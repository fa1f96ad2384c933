package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"dvanchev/offerworker/helpers"
	"dvanchev/offerworker/logger"
	"dvanchev/offerworker/services/cache"
)

// Fetcher retrieves the content of one page. Implementations apply their
// own per-attempt timeout; the context cancels an attempt early.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.Reader, error)
}

// FetchErrorKind classifies a fetch failure
type FetchErrorKind string

const (
	// FetchTimeout means the attempt exceeded its time budget
	FetchTimeout FetchErrorKind = "timeout"
	// FetchBlocked means the site answered with a throttle or block status
	FetchBlocked FetchErrorKind = "blocked"
	// FetchNetwork covers transport failures and unexpected statuses
	FetchNetwork FetchErrorKind = "network"
)

// FetchError is a classified page fetch failure
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s - %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt can reasonably succeed.
// Blocked responses are terminal: hammering a throttling site only
// extends the block.
func (e *FetchError) Retryable() bool {
	return e.Kind != FetchBlocked
}

// HTTPFetcher fetches pages over plain HTTP with randomized browser
// headers and UTF-8 normalization. A blocked response arms a block entry
// in the cache service so following cycles skip the site while it lives.
type HTTPFetcher struct {
	Provider  string
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration

	client *http.Client
	log    *logger.Logger
}

// NewHTTPFetcher creates a fetcher for one site
func NewHTTPFetcher(site SiteConfig, cacheSvc cache.CacheService, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Provider:  site.Provider,
		CacheKey:  site.CacheKey,
		CacheSvc:  cacheSvc,
		BlockTime: site.BlockTime,
		client:    &http.Client{Timeout: timeout},
		log:       logger.ForSite(site.Provider),
	}
}

// Fetch retrieves one page
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	// Honor a live block entry from a previous attempt
	if f.CacheSvc != nil && f.CacheKey != "" {
		if _, err := f.CacheSvc.Get(f.CacheKey); err == nil {
			return nil, &FetchError{
				Kind: FetchBlocked,
				URL:  url,
				Err:  fmt.Errorf("%s: blocked for %d seconds after earlier rate limit", f.CacheKey, int(f.BlockTime/time.Second)),
			}
		}
	}

	req, err := helpers.NewBrowserRequest(url)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: url, Err: err}
	}
	req = req.WithContext(ctx)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if helpers.IsBlockedStatus(resp.StatusCode) {
		f.armBlock()
		return nil, &FetchError{Kind: FetchBlocked, URL: url, Status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: FetchNetwork, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: url, Err: err}
	}

	return helpers.DecodeUTF8(body, resp.Header.Get("Content-Type"))
}

// classifyTransportError maps a transport failure onto a FetchError kind
func (f *HTTPFetcher) classifyTransportError(url string, err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: FetchTimeout, URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: FetchNetwork, URL: url, Err: err}
}

// armBlock records that the site is throttling us
func (f *HTTPFetcher) armBlock() {
	if f.CacheSvc == nil || f.CacheKey == "" {
		return
	}
	value := []byte(fmt.Sprintf("%d", int(f.BlockTime/time.Second)))
	if err := f.CacheSvc.Set(f.CacheKey, value, f.BlockTime); err != nil {
		f.log.Warn().Err(err).Msg("Failed to arm block cache entry")
	}
}
