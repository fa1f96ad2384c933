package crawler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testSite() SiteConfig {
	return SiteConfig{
		Provider:          "TestProvider",
		URL:               "https://example.com/offers",
		BaseURL:           "https://example.com",
		Output:            "test_offers",
		ContainerSelector: "div.offer",
		Fields: []FieldSelector{
			{Name: "name", Selector: "div.name"},
			{Name: "date", Selector: "div.date"},
			{Name: "price", Selector: "div.price"},
			{Name: "link", Selector: "a.offer-link", Attr: "href", Resolve: true},
		},
		Schema: Schema{
			Fields: []Field{
				{Name: "name", Type: FieldText, Required: true},
				{Name: "date", Type: FieldText, Required: true},
				{Name: "price", Type: FieldText, Required: true},
				{Name: "link", Type: FieldURL, Required: true},
			},
			DedupFields: []string{"name", "date"},
		},
		Scheme:    PaginationQuery,
		PageParam: "page",
	}
}

func testControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxPages:     5,
		FetchRetries: 3,
		RetryDelay:   time.Millisecond,
		StopOnNoNew:  true,
	}
}

func pageURL(site SiteConfig, page int) string {
	return fmt.Sprintf("%s?%s=%d", site.URL, site.PageParam, page)
}

// offerDiv renders one listing element; empty price omits the price element
func offerDiv(name, date, price, link string) string {
	var b strings.Builder
	b.WriteString(`<div class="offer">`)
	b.WriteString(`<div class="name">` + name + `</div>`)
	b.WriteString(`<div class="date">` + date + `</div>`)
	if price != "" {
		b.WriteString(`<div class="price">` + price + `</div>`)
	}
	b.WriteString(`<a class="offer-link" href="` + link + `">details</a>`)
	b.WriteString(`</div>`)
	return b.String()
}

func listingPage(offers ...string) string {
	return `<html><body>` + strings.Join(offers, "\n") + `</body></html>`
}

// TestCrawlEmptyFirstPage tests termination on a page with no listings
func TestCrawlEmptyFirstPage(t *testing.T) {
	site := testSite()
	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage()

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonEmptyPage, result.Reason)
	assert.Empty(t, result.Records)
	assert.Equal(t, 1, result.Pages)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, fetcher.totalCalls(), "Nothing past the empty page is fetched")
}

// TestCrawlSkipsInvalidListings tests that incomplete listings are dropped
// while their siblings survive
func TestCrawlSkipsInvalidListings(t *testing.T) {
	site := testSite()
	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage(
		offerDiv("Sunny Beach", "12.07", "1250 lv", "/offer/1"),
		offerDiv("No Price Hotel", "13.07", "", "/offer/2"),
		offerDiv("Bansko Week", "14.07", "800 lv", "/offer/3"),
	)
	fetcher.pages[pageURL(site, 2)] = listingPage()

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonEmptyPage, result.Reason)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, "Sunny Beach", result.Records[0].Fields["name"])
	assert.Equal(t, "Bansko Week", result.Records[1].Fields["name"])
	assert.Equal(t, "https://example.com/offer/1", result.Records[0].Fields["link"])
}

// TestCrawlMaxPages tests that the page limit stops the run without
// fetching past it
func TestCrawlMaxPages(t *testing.T) {
	site := testSite()
	cfg := testControllerConfig()
	cfg.MaxPages = 1

	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage(
		offerDiv("Offer 1", "01.07", "100 lv", "/offer/1"),
		offerDiv("Offer 2", "02.07", "200 lv", "/offer/2"),
		offerDiv("Offer 3", "03.07", "300 lv", "/offer/3"),
		offerDiv("Offer 4", "04.07", "400 lv", "/offer/4"),
		offerDiv("Offer 5", "05.07", "500 lv", "/offer/5"),
	)

	controller := NewController(site, cfg, fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonMaxPages, result.Reason)
	assert.Len(t, result.Records, 5)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 1, fetcher.totalCalls(), "Page 2 must not be fetched at all")
}

// TestCrawlFetchFailureKeepsPartialResults tests that an exhausted retry
// budget surfaces as fetch_failed with everything gathered so far
func TestCrawlFetchFailureKeepsPartialResults(t *testing.T) {
	site := testSite()
	cfg := testControllerConfig()

	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage(
		offerDiv("Offer 1", "01.07", "100 lv", "/offer/1"),
		offerDiv("Offer 2", "02.07", "200 lv", "/offer/2"),
	)
	fetcher.pages[pageURL(site, 2)] = listingPage(
		offerDiv("Offer 3", "03.07", "300 lv", "/offer/3"),
		offerDiv("Offer 4", "04.07", "400 lv", "/offer/4"),
	)
	fetcher.errs[pageURL(site, 3)] = &FetchError{Kind: FetchTimeout, URL: pageURL(site, 3)}

	controller := NewController(site, cfg, fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonFetchFailed, result.Reason)
	assert.Error(t, result.Err)
	assert.Len(t, result.Records, 4)
	assert.Equal(t, 2, result.Pages, "Only successfully fetched pages count")
	assert.Equal(t, cfg.FetchRetries, fetcher.fetchCount(pageURL(site, 3)),
		"Timeouts should use the whole retry budget")
}

// TestCrawlBlockedNotRetried tests that a block response ends the retry
// budget immediately
func TestCrawlBlockedNotRetried(t *testing.T) {
	site := testSite()
	fetcher := newStubFetcher()
	fetcher.errs[pageURL(site, 1)] = &FetchError{Kind: FetchBlocked, URL: pageURL(site, 1), Status: 429}

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonFetchFailed, result.Reason)
	assert.Error(t, result.Err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 1, fetcher.fetchCount(pageURL(site, 1)), "Blocks must not be retried")
}

// TestCrawlDedupAcrossPages tests duplicate collapsing over page overlap
func TestCrawlDedupAcrossPages(t *testing.T) {
	site := testSite()
	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage(
		offerDiv("Sunny Beach", "12.07", "1250 lv", "/offer/1"),
		offerDiv("Bansko Week", "14.07", "800 lv", "/offer/2"),
	)
	// Page 2 re-serves one listing with different casing plus one new one
	fetcher.pages[pageURL(site, 2)] = listingPage(
		offerDiv("SUNNY BEACH", "12.07", "1250 lv", "/offer/1"),
		offerDiv("Golden Sands", "15.07", "900 lv", "/offer/3"),
	)
	// Page 3 is a pure repeat of page 2
	fetcher.pages[pageURL(site, 3)] = fetcher.pages[pageURL(site, 2)]

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonNoNewRecords, result.Reason)
	assert.Equal(t, 3, result.Pages)
	assert.Len(t, result.Records, 3)
	assert.Equal(t, "Sunny Beach", result.Records[0].Fields["name"],
		"First occurrence wins over later case variants")
	assert.Equal(t, "Bansko Week", result.Records[1].Fields["name"])
	assert.Equal(t, "Golden Sands", result.Records[2].Fields["name"])
}

// TestCrawlStopOnNoNewDisabled tests that with the heuristic off, only
// the page limit ends a run of repeating pages
func TestCrawlStopOnNoNewDisabled(t *testing.T) {
	site := testSite()
	cfg := testControllerConfig()
	cfg.StopOnNoNew = false
	cfg.MaxPages = 3

	page := listingPage(
		offerDiv("Sunny Beach", "12.07", "1250 lv", "/offer/1"),
		offerDiv("Bansko Week", "14.07", "800 lv", "/offer/2"),
	)
	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = page
	fetcher.pages[pageURL(site, 2)] = page
	fetcher.pages[pageURL(site, 3)] = page

	controller := NewController(site, cfg, fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonMaxPages, result.Reason)
	assert.Equal(t, 3, result.Pages)
	assert.Len(t, result.Records, 2)
}

// TestCrawlCancelledBeforeStart tests that a dead context fetches nothing
func TestCrawlCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	site := testSite()
	fetcher := newStubFetcher()

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(ctx)

	assert.Equal(t, ReasonCancelled, result.Reason)
	assert.Error(t, result.Err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, fetcher.totalCalls())
}

// TestCrawlCancelledMidRun tests that cancellation keeps partial results
func TestCrawlCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := testSite()
	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage(
		offerDiv("Offer 1", "01.07", "100 lv", "/offer/1"),
		offerDiv("Offer 2", "02.07", "200 lv", "/offer/2"),
	)
	fetcher.pages[pageURL(site, 2)] = listingPage(
		offerDiv("Offer 3", "03.07", "300 lv", "/offer/3"),
	)
	fetcher.onFetch = func(url string) {
		if url == pageURL(site, 2) {
			cancel()
		}
	}

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(ctx)

	assert.Equal(t, ReasonCancelled, result.Reason)
	assert.Error(t, result.Err)
	assert.Len(t, result.Records, 3, "Records gathered before cancellation are kept")
}

// TestCrawlIdempotent tests that re-running over unchanged pages yields
// the same record set
func TestCrawlIdempotent(t *testing.T) {
	site := testSite()
	fetcher := newStubFetcher()
	fetcher.pages[pageURL(site, 1)] = listingPage(
		offerDiv("Sunny Beach", "12.07", "1250 lv", "/offer/1"),
		offerDiv("Bansko Week", "14.07", "800 lv", "/offer/2"),
	)
	fetcher.pages[pageURL(site, 2)] = listingPage()

	controller := NewController(site, testControllerConfig(), fetcher)
	first := controller.Crawl(context.Background())
	second := controller.Crawl(context.Background())

	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, len(first.Records), len(second.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].Fields, second.Records[i].Fields)
	}
}

// TestQueryPager tests page-number URL generation
func TestQueryPager(t *testing.T) {
	pager := &QueryPager{Base: "https://example.com/offers?sort=price", Param: "page"}

	url, ok := pager.PageURL(1)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/offers?page=1&sort=price", url,
		"Existing query parameters are preserved")

	url, ok = pager.PageURL(7)
	assert.True(t, ok)
	assert.Contains(t, url, "page=7")
}

// TestOffsetPager tests item-offset URL generation
func TestOffsetPager(t *testing.T) {
	pager := &OffsetPager{Base: "https://example.com/offers", Param: "offset", PageSize: 24}

	url, ok := pager.PageURL(1)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/offers?offset=0", url)

	url, ok = pager.PageURL(3)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/offers?offset=48", url)
}

// TestCursorPager tests next-link following and exhaustion
func TestCursorPager(t *testing.T) {
	pager := &CursorPager{
		Base:         "https://example.com/offers",
		NextSelector: "a.next",
		Resolve: func(link string) string {
			if strings.HasPrefix(link, "/") {
				return "https://example.com" + link
			}
			return link
		},
	}

	url, ok := pager.PageURL(1)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/offers", url)

	doc := parseDoc(t, `<html><body><a class="next" href="/offers?after=abc">next</a></body></html>`)
	pager.Observe(doc)

	url, ok = pager.PageURL(2)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/offers?after=abc", url)

	// A page without a next link exhausts the cursor
	pager.Observe(parseDoc(t, `<html><body><p>last page</p></body></html>`))
	_, ok = pager.PageURL(3)
	assert.False(t, ok)
}

// TestCursorPagerExhaustionEndsCrawl tests the controller path for a
// cursor that runs out
func TestCursorPagerExhaustionEndsCrawl(t *testing.T) {
	site := testSite()
	site.Scheme = PaginationCursor
	site.NextSelector = "a.next"

	fetcher := newStubFetcher()
	fetcher.pages[site.URL] = listingPage(
		offerDiv("Only Offer", "01.07", "100 lv", "/offer/1"),
	) // no next link anywhere

	controller := NewController(site, testControllerConfig(), fetcher)
	result := controller.Crawl(context.Background())

	assert.Equal(t, ReasonEmptyPage, result.Reason)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.Pages)
}

// TestWithQueryParam tests parameter setting on odd inputs
func TestWithQueryParam(t *testing.T) {
	assert.Equal(t, "https://example.com/offers?page=2",
		withQueryParam("https://example.com/offers", "page", "2"))
	assert.Equal(t, "https://example.com/offers?page=3",
		withQueryParam("https://example.com/offers?page=1", "page", "3"))
}
