package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dvanchev/offerworker/logger"
)

// renderStrategy represents one way of asking ChromeDB for page content
type renderStrategy struct {
	Name     string
	Endpoint string
	Method   string
	Payload  func(pageURL string) map[string]interface{}
}

// RenderedFetcher fetches pages through a ChromeDB/browserless instance
// so that JS-built listing markup is present in the returned DOM. The
// strategies are tried in order, fastest-to-most-thorough last.
type RenderedFetcher struct {
	Provider string
	Addr     string

	client     *http.Client
	strategies []renderStrategy
	log        *logger.Logger
}

// NewRenderedFetcher creates a rendered-DOM fetcher for one site
func NewRenderedFetcher(site SiteConfig, chromeAddr string, timeout time.Duration) *RenderedFetcher {
	return &RenderedFetcher{
		Provider: site.Provider,
		Addr:     chromeAddr,
		client:   &http.Client{Timeout: timeout},
		log:      logger.ForSite(site.Provider),
		strategies: []renderStrategy{
			{
				// Network idle, best for dynamic content
				Name:     "networkidle-content",
				Endpoint: "/content",
				Method:   "POST",
				Payload: func(pageURL string) map[string]interface{} {
					return map[string]interface{}{
						"url": pageURL,
						"gotoOptions": map[string]interface{}{
							"waitUntil": "networkidle0",
							"timeout":   45000,
						},
					}
				},
			},
			{
				// Basic load, faster, works for mostly static pages
				Name:     "basic-content",
				Endpoint: "/content",
				Method:   "POST",
				Payload: func(pageURL string) map[string]interface{} {
					return map[string]interface{}{
						"url": pageURL,
						"gotoOptions": map[string]interface{}{
							"waitUntil": "load",
							"timeout":   20000,
						},
					}
				},
			},
			{
				// Simple scrape, last resort
				Name:     "scrape-fallback",
				Endpoint: "/scrape",
				Method:   "GET",
			},
		},
	}
}

// Fetch retrieves one rendered page
func (f *RenderedFetcher) Fetch(ctx context.Context, pageURL string) (io.Reader, error) {
	if err := f.checkHealth(ctx); err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: pageURL, Err: err}
	}

	var lastErr error
	for i, strategy := range f.strategies {
		f.log.Debug().
			Str("strategy", strategy.Name).
			Int("attempt", i+1).
			Msg("Trying render strategy")

		reader, err := f.executeStrategy(ctx, strategy, pageURL)
		if err == nil && reader != nil {
			f.log.Debug().Str("strategy", strategy.Name).Msg("Render strategy succeeded")
			return reader, nil
		}
		lastErr = err

		if i < len(f.strategies)-1 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Kind: FetchTimeout, URL: pageURL, Err: ctx.Err()}
			case <-time.After(1 * time.Second):
			}
		}
	}

	return nil, &FetchError{
		Kind: FetchNetwork,
		URL:  pageURL,
		Err:  fmt.Errorf("all render strategies failed: %w", lastErr),
	}
}

// checkHealth verifies ChromeDB is reachable
func (f *RenderedFetcher) checkHealth(ctx context.Context) error {
	if f.Addr == "" {
		return fmt.Errorf("ChromeDB address not configured")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", f.Addr+"/", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("ChromeDB server not reachable at %s: %w", f.Addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("ChromeDB server error (status %d)", resp.StatusCode)
	}
	return nil
}

// executeStrategy runs a single render strategy
func (f *RenderedFetcher) executeStrategy(ctx context.Context, strategy renderStrategy, pageURL string) (io.Reader, error) {
	var req *http.Request
	var err error

	if strategy.Method == "POST" && strategy.Payload != nil {
		data, marshalErr := json.Marshal(strategy.Payload(pageURL))
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, "POST", f.Addr+strategy.Endpoint, bytes.NewBuffer(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, "GET",
			fmt.Sprintf("%s%s?url=%s", f.Addr, strategy.Endpoint, url.QueryEscape(pageURL)), nil)
		if err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", "OfferWorker/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	return f.checkHTML(body)
}

// checkHTML rejects responses that don't look like a rendered document
func (f *RenderedFetcher) checkHTML(data []byte) (io.Reader, error) {
	if len(data) < 50 {
		return nil, fmt.Errorf("response too short: %d bytes", len(data))
	}

	lower := strings.ToLower(string(data))
	if strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<!doctype") ||
		strings.Contains(lower, "<body") {
		return bytes.NewReader(data), nil
	}

	return nil, fmt.Errorf("response doesn't appear to be valid HTML")
}
