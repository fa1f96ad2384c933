package crawler

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetailHop is an intermediate link followed on the way to the detail
// content: a selector locating the element and the attribute carrying
// the next URL. Angel Travel hosts its programs in a booking-engine
// iframe, so its detail page is two hops away from the listing link.
type DetailHop struct {
	Selector string
	Attr     string
}

// DetailConfig describes how one site's offer detail pages are read.
type DetailConfig struct {
	// Hops are followed in order before extraction. A hop whose element
	// is missing ends the chain and extraction runs on the page at hand.
	Hops []DetailHop

	// NameSelector reads the offer name off the detail page. When empty
	// the listing record's name is carried over instead.
	NameSelector string

	// Hotel group selectors; HotelSelector empty means no hotel table.
	HotelSelector string
	HotelName     string
	HotelPrice    string
	HotelCountry  string

	ProgramSelector  string
	IncludedSelector string // one element per included service
	ExcludedSelector string // one element per excluded service
}

// Hotel is one stay option offered on a detail page
type Hotel struct {
	Name    string `json:"name"`
	Price   string `json:"price"`
	Country string `json:"country"`
}

// OfferDetails is the structured content of one offer's detail page
type OfferDetails struct {
	Name             string   `json:"offer_name"`
	Hotels           []Hotel  `json:"hotels"`
	Program          string   `json:"program"`
	IncludedServices []string `json:"included_services"`
	ExcludedServices []string `json:"excluded_services"`
	Link             string   `json:"link"`
}

// crawlDetails follows each accepted record's link and extracts the
// structured detail content. A failure on one offer is logged and that
// offer skipped; the rest of the batch is unaffected. Details come back
// in record order.
func (c *Controller) crawlDetails(ctx context.Context, records []Record) []OfferDetails {
	var details []OfferDetails

	for _, record := range records {
		if ctx.Err() != nil {
			return details
		}

		link := record.Fields["link"]
		if link == "" {
			continue
		}

		d, err := c.fetchDetails(ctx, record, link)
		if err != nil {
			c.log.Warn().Err(err).Str("offer", record.Fields["name"]).Msg("Skipping offer details")
			continue
		}
		if d == nil {
			c.log.Debug().Str("offer", record.Fields["name"]).Msg("No detail content on page")
			continue
		}
		details = append(details, *d)

		if !c.pause(ctx) {
			return details
		}
	}

	c.log.Info().
		Int("offers", len(records)).
		Int("details", len(details)).
		Msg("Detail crawl finished")
	return details
}

// fetchDetails loads one offer's detail page, following configured hops,
// and extracts its content
func (c *Controller) fetchDetails(ctx context.Context, record Record, link string) (*OfferDetails, error) {
	pageURL := link

	body, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	for _, hop := range c.site.Detail.Hops {
		next, exists := doc.Find(hop.Selector).First().Attr(hop.Attr)
		if !exists || strings.TrimSpace(next) == "" {
			// Chain ends early, extract whatever this page carries
			break
		}
		pageURL = resolveAgainst(pageURL, strings.TrimSpace(next))

		body, err = c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		doc, err = goquery.NewDocumentFromReader(body)
		if err != nil {
			return nil, err
		}
	}

	return c.extractDetails(doc, record, pageURL), nil
}

// extractDetails assembles the detail content of one page. A page
// without an offer name yields nil.
func (c *Controller) extractDetails(doc *goquery.Document, record Record, pageURL string) *OfferDetails {
	cfg := c.site.Detail

	name := record.Fields["name"]
	if cfg.NameSelector != "" {
		name = strings.TrimSpace(doc.Find(cfg.NameSelector).First().Text())
	}
	if name == "" {
		return nil
	}

	var hotels []Hotel
	if cfg.HotelSelector != "" {
		doc.Find(cfg.HotelSelector).Each(func(i int, s *goquery.Selection) {
			hotel := Hotel{
				Name:    strings.TrimSpace(s.Find(cfg.HotelName).Text()),
				Price:   strings.TrimSpace(s.Find(cfg.HotelPrice).Text()),
				Country: strings.TrimSpace(s.Find(cfg.HotelCountry).Text()),
			}
			// Partial hotel rows are navigation leftovers, not offers
			if hotel.Name != "" && hotel.Price != "" && hotel.Country != "" {
				hotels = append(hotels, hotel)
			}
		})
	}

	return &OfferDetails{
		Name:             name,
		Hotels:           hotels,
		Program:          strings.TrimSpace(doc.Find(cfg.ProgramSelector).First().Text()),
		IncludedServices: textList(doc, cfg.IncludedSelector),
		ExcludedServices: textList(doc, cfg.ExcludedSelector),
		Link:             pageURL,
	}
}

// textList collects the non-empty text of every element the selector hits
func textList(doc *goquery.Document, selector string) []string {
	if selector == "" {
		return nil
	}
	var items []string
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			items = append(items, text)
		}
	})
	return items
}

// resolveAgainst resolves a possibly relative link against the page it
// was found on
func resolveAgainst(base, link string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return baseURL.ResolveReference(ref).String()
}
