package crawler

import (
	"context"
	"errors"
	"io"
	mathrand "math/rand"
	"net/url"
	"strconv"
	"time"

	"dvanchev/offerworker/logger"

	"github.com/PuerkitoBio/goquery"
)

// TerminationReason records how a crawl run ended
type TerminationReason string

const (
	// ReasonEmptyPage means a page yielded no listing elements
	ReasonEmptyPage TerminationReason = "empty_page"
	// ReasonNoNewRecords means a page added nothing new to the result set
	ReasonNoNewRecords TerminationReason = "no_new_records"
	// ReasonMaxPages means the configured page limit was reached
	ReasonMaxPages TerminationReason = "max_pages"
	// ReasonFetchFailed means the fetch retry budget was exhausted
	ReasonFetchFailed TerminationReason = "fetch_failed"
	// ReasonCancelled means the crawl was stopped from outside
	ReasonCancelled TerminationReason = "cancelled"
)

// CrawlResult is the outcome of one crawl run. Records accumulated
// before termination are always carried, whatever the reason.
type CrawlResult struct {
	Records []Record
	Pages   int
	Reason  TerminationReason
	Err     error

	// Details holds the per-offer detail content, in record order, for
	// sites with a detail stage configured.
	Details []OfferDetails
}

// Pager computes listing page URLs. Page indexes are 1-based.
type Pager interface {
	// PageURL returns the URL for a page index. ok is false when the
	// scheme knows there are no more pages.
	PageURL(page int) (url string, ok bool)

	// Observe hands the pager each fetched document, so cursor-style
	// schemes can pull the next page URL out of the page itself.
	Observe(doc *goquery.Document)
}

// QueryPager appends a page-number query parameter, ?page=N
type QueryPager struct {
	Base  string
	Param string
}

func (p *QueryPager) PageURL(page int) (string, bool) {
	return withQueryParam(p.Base, p.Param, strconv.Itoa(page)), true
}

func (p *QueryPager) Observe(doc *goquery.Document) {}

// OffsetPager appends an item-offset query parameter, ?offset=(N-1)*size
type OffsetPager struct {
	Base     string
	Param    string
	PageSize int
}

func (p *OffsetPager) PageURL(page int) (string, bool) {
	return withQueryParam(p.Base, p.Param, strconv.Itoa((page-1)*p.PageSize)), true
}

func (p *OffsetPager) Observe(doc *goquery.Document) {}

// CursorPager follows a next-page link found on each fetched page
type CursorPager struct {
	Base         string
	NextSelector string
	Resolve      func(link string) string

	next string
}

func (p *CursorPager) PageURL(page int) (string, bool) {
	if page == 1 {
		return p.Base, true
	}
	if p.next == "" {
		return "", false
	}
	return p.next, true
}

func (p *CursorPager) Observe(doc *goquery.Document) {
	p.next = ""
	link, exists := doc.Find(p.NextSelector).First().Attr("href")
	if !exists {
		return
	}
	if p.Resolve != nil {
		link = p.Resolve(link)
	}
	p.next = link
}

// withQueryParam sets one query parameter on a URL, preserving the rest
func withQueryParam(base, param, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(param, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// newPager builds the pager declared by a site config
func newPager(site SiteConfig, extractor *Extractor) Pager {
	switch site.Scheme {
	case PaginationOffset:
		size := site.PageSize
		if size < 1 {
			size = 1
		}
		return &OffsetPager{Base: site.URL, Param: site.PageParam, PageSize: size}
	case PaginationCursor:
		return &CursorPager{Base: site.URL, NextSelector: site.NextSelector, Resolve: extractor.ResolveURL}
	default:
		param := site.PageParam
		if param == "" {
			param = "page"
		}
		return &QueryPager{Base: site.URL, Param: param}
	}
}

// Controller drives one site's paginated crawl: fetch, extract, validate,
// dedup, decide continuation. One crawl run owns all of its state; runs
// never share mutable state with each other.
type Controller struct {
	site    SiteConfig
	cfg     ControllerConfig
	fetcher Fetcher

	extractor *Extractor
	log       *logger.Logger
}

// Ensure Controller implements Crawler
var _ Crawler = (*Controller)(nil)

// NewController creates the pagination controller for one site
func NewController(site SiteConfig, cfg ControllerConfig, fetcher Fetcher) *Controller {
	return &Controller{
		site:      site,
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: NewExtractor(site),
		log:       logger.ForSite(site.Provider),
	}
}

// GetName returns the crawler's name for logging and identification
func (c *Controller) GetName() string {
	return c.site.Provider + "Crawler"
}

// GetProvider returns the provider name for the crawler
func (c *Controller) GetProvider() string {
	return c.site.Provider
}

// GetSchema returns the record schema for the crawler's site
func (c *Controller) GetSchema() Schema {
	return c.site.Schema
}

// OutputName returns the file stem used for persisted output
func (c *Controller) OutputName() string {
	return c.site.Output
}

// Crawl runs the pagination loop until a termination condition fires,
// then the detail stage for sites that have one. Accumulated records
// are returned on every path.
func (c *Controller) Crawl(ctx context.Context) CrawlResult {
	result := c.crawlListings(ctx)

	if c.site.Detail == nil || len(result.Records) == 0 || result.Reason == ReasonCancelled {
		return result
	}
	result.Details = c.crawlDetails(ctx, result.Records)
	return result
}

// crawlListings walks the listing pages and accumulates validated,
// deduplicated records
func (c *Controller) crawlListings(ctx context.Context) CrawlResult {
	var records []Record
	seen := make(map[string]struct{})
	pager := newPager(c.site, c.extractor)
	pagesFetched := 0

	for page := 1; ; page++ {
		// Stop signal is checked at the top of each iteration
		if ctx.Err() != nil {
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonCancelled, Err: ctx.Err()}
		}

		pageURL, ok := pager.PageURL(page)
		if !ok {
			// Cursor exhausted, normal end of the listing
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonEmptyPage}
		}

		c.log.Debug().Int("page", page).Str("url", pageURL).Msg("Loading page")

		body, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonCancelled, Err: ctx.Err()}
			}
			c.log.Error().Err(err).Int("page", page).Msg("Fetch retry budget exhausted")
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonFetchFailed, Err: err}
		}
		pagesFetched++

		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			c.log.Error().Err(err).Int("page", page).Msg("Failed to parse page")
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonFetchFailed, Err: err}
		}

		raws := c.extractor.Extract(doc, c.site.ContainerSelector)
		if len(raws) == 0 {
			c.log.Info().Int("page", page).Msg("No listings on page, ending crawl")
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonEmptyPage}
		}

		added := 0
		for _, raw := range raws {
			record, rejection := Validate(raw, c.site.Provider, c.site.Schema)
			if rejection != nil {
				c.log.Debug().Str("rejection", rejection.String()).Msg("Dropping incomplete listing")
				continue
			}

			key := c.site.Schema.DedupKey(record.Fields)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, record)
			added++
		}

		c.log.Info().
			Int("page", page).
			Int("listings", len(raws)).
			Int("accepted", added).
			Int("total", len(records)).
			Msg("Processed page")

		pager.Observe(doc)

		// Repeating pagination schemes serve the last page forever; a page
		// that adds nothing new means we've walked off the end.
		if added == 0 && c.cfg.StopOnNoNew {
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonNoNewRecords}
		}

		if page >= c.cfg.MaxPages {
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonMaxPages}
		}

		if !c.pause(ctx) {
			return CrawlResult{Records: records, Pages: pagesFetched, Reason: ReasonCancelled, Err: ctx.Err()}
		}
	}
}

// fetchPage fetches one page with the configured retry budget and
// exponential backoff. Non-retryable failures end the budget early.
func (c *Controller) fetchPage(ctx context.Context, pageURL string) (io.Reader, error) {
	delay := c.cfg.RetryDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.FetchRetries; attempt++ {
		if attempt > 1 {
			c.log.Warn().
				Int("attempt", attempt).
				Int("max", c.cfg.FetchRetries).
				Dur("delay", delay).
				Msg("Retrying fetch")
			if !sleepCtx(ctx, delay) {
				return nil, ctx.Err()
			}
			delay *= 2
		}

		reader, err := c.fetcher.Fetch(ctx, pageURL)
		if err == nil {
			return reader, nil
		}
		lastErr = err

		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && !fetchErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// pause sleeps the jittered inter-page delay; false means cancelled
func (c *Controller) pause(ctx context.Context) bool {
	delay := c.cfg.PageDelayMin
	if jitter := c.cfg.PageDelayMax - c.cfg.PageDelayMin; jitter > 0 {
		delay += time.Duration(mathrand.Int63n(int64(jitter)))
	}
	if delay <= 0 {
		return ctx.Err() == nil
	}
	return sleepCtx(ctx, delay)
}

// sleepCtx sleeps for d unless the context is cancelled first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
