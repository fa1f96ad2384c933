package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RawRecord is the unvalidated field mapping pulled from one listing element.
// Missing sub-elements are represented by the empty string.
type RawRecord map[string]string

// Record is a validated listing record
type Record struct {
	Provider string            `json:"provider"`
	Fields   map[string]string `json:"fields"`
}

// Crawler interface defines the contract for all crawler implementations
type Crawler interface {
	// Crawl runs a full paginated crawl and returns the accumulated records.
	// Partial results are always returned, whatever the termination reason.
	Crawl(ctx context.Context) CrawlResult

	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetProvider returns the provider name for the crawler
	GetProvider() string

	// GetSchema returns the record schema for the crawler's site
	GetSchema() Schema

	// OutputName returns the file stem used for persisted output
	OutputName() string
}

// ElementHandler customizes extraction logic for a single field
type ElementHandler func(*goquery.Selection) string

// FieldSelector describes how one record field is read out of a
// listing container element.
type FieldSelector struct {
	Name     string         // record field name
	Selector string         // sub-element selector, relative to the container
	Attr     string         // read this attribute instead of the text content
	Remove   []string       // child selectors stripped before reading text
	Resolve  bool           // resolve the value against the site base URL
	Handler  ElementHandler // optional custom extraction, overrides the above
}

// PaginationScheme selects how page URLs are computed
type PaginationScheme string

const (
	// PaginationQuery appends a page-number query parameter (?page=N)
	PaginationQuery PaginationScheme = "query"
	// PaginationOffset appends an item-offset query parameter
	PaginationOffset PaginationScheme = "offset"
	// PaginationCursor follows a next-page link found on each page
	PaginationCursor PaginationScheme = "cursor"
)

// SiteConfig contains the per-site crawl configuration. It is immutable
// for the duration of a crawl run.
type SiteConfig struct {
	Provider  string
	URL       string // listing base URL
	BaseURL   string // base for resolving relative links
	Output    string // file stem for persisted output
	CacheKey  string
	BlockTime time.Duration
	UseChrome bool

	ContainerSelector string
	ClassFilter       string // skip container elements carrying this class
	Fields            []FieldSelector
	Schema            Schema

	Scheme       PaginationScheme
	PageParam    string // query/offset parameter name
	PageSize     int    // items per page, offset scheme only
	NextSelector string // next-link selector, cursor scheme only

	// Detail enables the per-offer detail crawl stage after the listing
	// crawl; nil means the site has no detail pages worth following.
	Detail *DetailConfig
}

// ControllerConfig carries the crawl-loop knobs shared by all sites
type ControllerConfig struct {
	MaxPages     int
	FetchRetries int // total fetch attempts per page
	RetryDelay   time.Duration
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	StopOnNoNew  bool
}
