package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"dvanchev/offerworker/logger"

	"github.com/PuerkitoBio/goquery"
)

// Extractor reads raw field mappings out of listing container elements
// according to a per-field selector table. It never mutates the document.
type Extractor struct {
	Provider    string
	BaseURL     string
	ClassFilter string
	Fields      []FieldSelector

	log *logger.Logger
}

// NewExtractor creates an extractor for one site
func NewExtractor(site SiteConfig) *Extractor {
	return &Extractor{
		Provider:    site.Provider,
		BaseURL:     site.BaseURL,
		ClassFilter: site.ClassFilter,
		Fields:      site.Fields,
		log:         logger.ForSite(site.Provider),
	}
}

// Extract locates all container elements and assembles one raw mapping
// per element, in document order. A failure in one element is logged and
// that element skipped; sibling elements are unaffected.
func (e *Extractor) Extract(doc *goquery.Document, containerSelector string) []RawRecord {
	selections := doc.Find(containerSelector)

	// Process elements in parallel but keep document order
	results := make([]RawRecord, selections.Length())
	var wg sync.WaitGroup

	selections.Each(func(i int, s *goquery.Selection) {
		wg.Add(1)
		go func(i int, s *goquery.Selection) {
			defer wg.Done()

			raw, err := e.extractElement(s)
			if err != nil {
				e.log.Warn().Err(err).Int("element", i).Msg("Skipping listing element")
				return
			}
			results[i] = raw
		}(i, s)
	})

	wg.Wait()

	records := make([]RawRecord, 0, len(results))
	for _, raw := range results {
		if raw != nil {
			records = append(records, raw)
		}
	}
	return records
}

// extractElement assembles the raw mapping for one container element.
// A panicking custom handler is recovered into an error so that one bad
// element never aborts its siblings.
func (e *Extractor) extractElement(s *goquery.Selection) (raw RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = fmt.Errorf("element extraction panicked: %v", r)
		}
	}()

	if e.ClassFilter != "" && s.HasClass(e.ClassFilter) {
		return nil, nil
	}

	raw = make(RawRecord, len(e.Fields))
	for _, f := range e.Fields {
		raw[f.Name] = e.extractField(s, f)
	}
	return raw, nil
}

// extractField reads one field value from a container element
func (e *Extractor) extractField(s *goquery.Selection, f FieldSelector) string {
	if f.Handler != nil {
		return strings.TrimSpace(f.Handler(s))
	}

	fieldSel := s.Find(f.Selector)
	if fieldSel.Length() == 0 {
		return ""
	}

	if f.Attr != "" {
		value, exists := fieldSel.Attr(f.Attr)
		if !exists {
			return ""
		}
		value = strings.TrimSpace(value)
		if f.Resolve {
			value = e.ResolveURL(value)
		}
		return value
	}

	return strings.TrimSpace(e.cleanSelection(fieldSel, f.Remove).Text())
}

// cleanSelection removes specified elements from a selection before
// getting text. The original selection is not modified.
func (e *Extractor) cleanSelection(sel *goquery.Selection, remove []string) *goquery.Selection {
	if len(remove) == 0 || sel.Length() == 0 {
		return sel
	}

	clone := sel.Clone()
	for _, r := range remove {
		clone.Find(r).Remove()
	}
	return clone
}

// ResolveURL resolves a possibly relative link against the site base URL
func (e *Extractor) ResolveURL(link string) string {
	if link == "" || e.BaseURL == "" {
		return link
	}

	base, err := url.Parse(e.BaseURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
