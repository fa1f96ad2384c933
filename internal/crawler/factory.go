package crawler

import (
	"strings"
	"time"

	"dvanchev/offerworker/config"
	"dvanchev/offerworker/logger"
	"dvanchev/offerworker/services/cache"

	"github.com/PuerkitoBio/goquery"
)

// offerSchema is shared by both tour operator sites: the listing cards
// carry the same offer fields.
func offerSchema() Schema {
	return Schema{
		Fields: []Field{
			{Name: "name", Type: FieldText, Required: true},
			{Name: "date", Type: FieldText, Required: true},
			{Name: "price", Type: FieldText, Required: true},
			{Name: "transport_type", Type: FieldText, Required: true},
			{Name: "link", Type: FieldURL, Required: true},
		},
		DedupFields: []string{"name", "date"},
	}
}

// CreateCrawlers creates all the site crawlers based on the configuration
func CreateCrawlers(cfg *config.Config, cacheSvc cache.CacheService) []Crawler {
	controllerCfg := ControllerConfig{
		MaxPages:     cfg.MaxPages,
		FetchRetries: cfg.FetchRetries,
		RetryDelay:   cfg.RetryDelay,
		PageDelayMin: cfg.PageDelayMin,
		PageDelayMax: cfg.PageDelayMax,
		StopOnNoNew:  cfg.StopOnNoNew,
	}

	var crawlers []Crawler
	for _, site := range siteConfigs(cfg) {
		if site.URL == "" {
			continue
		}

		var fetcher Fetcher
		if site.UseChrome && cfg.ChromeDBAddr != "" {
			logger.Info("Using rendered fetch for %s", site.Provider)
			fetcher = NewRenderedFetcher(site, cfg.ChromeDBAddr, cfg.FetchTimeout)
		} else {
			fetcher = NewHTTPFetcher(site, cacheSvc, cfg.FetchTimeout)
		}

		crawlers = append(crawlers, NewController(site, controllerCfg, fetcher))
	}

	return crawlers
}

// siteConfigs declares the per-site crawl configurations
func siteConfigs(cfg *config.Config) []SiteConfig {
	return []SiteConfig{
		{
			// Dari Tour summer package offers
			Provider:  "DariTour",
			URL:       cfg.DariTourURL,
			BaseURL:   "https://dari-tour.com",
			Output:    "dari_tour_offers",
			CacheKey:  "dari_tour_blocked",
			BlockTime: 500 * time.Second,

			ContainerSelector: "[class^='col-xl-3 col-lg-3 col-md-4 col-sm-6 col-12 col-offer']",
			Fields: []FieldSelector{
				{Name: "name", Selector: "div.offer-name"},
				{Name: "date", Selector: "div.offer-dates"},
				{Name: "price", Selector: "div.offer-price span.price", Remove: []string{"small"}},
				{Name: "transport_type", Selector: "div.offer-transport"},
				{Name: "link", Selector: "a.offer-link", Attr: "href", Resolve: true},
			},
			Schema: offerSchema(),

			Scheme:    PaginationQuery,
			PageParam: "page",

			// The detail page lays program, price terms and the hotel
			// table out in aria-labelled tab panes.
			Detail: &DetailConfig{
				NameSelector:     "h1.antetka-2",
				HotelSelector:    "div.resp-tab-content[aria-labelledby='hor_1_tab_item-0'] div.col-hotel",
				HotelName:        "div.title",
				HotelPrice:       "div.price",
				HotelCountry:     "div.info div.country",
				ProgramSelector:  "div.resp-tab-content[aria-labelledby='hor_1_tab_item-1']",
				IncludedSelector: "div.resp-tab-content[aria-labelledby='hor_1_tab_item-2'] ul li",
				ExcludedSelector: "div.resp-tab-content[aria-labelledby='hor_1_tab_item-3'] ul li",
			},
		},
		{
			// Angel Travel summer package offers; same card grid, but the
			// listing is built client-side, so it goes through ChromeDB
			// when one is configured.
			Provider:  "AngelTravel",
			URL:       cfg.AngelTravelURL,
			BaseURL:   "https://angeltravel.com",
			Output:    "angel_travel_offers",
			CacheKey:  "angel_travel_blocked",
			BlockTime: 500 * time.Second,
			UseChrome: true,

			ContainerSelector: "[class^='col-xl-3 col-lg-3 col-md-4 col-sm-6 col-12 col-offer']",
			Fields: []FieldSelector{
				{Name: "name", Selector: "div.offer-title h3"},
				{Name: "date", Selector: "div.offer-period"},
				{Name: "price", Selector: "div.offer-footer span.price-value"},
				// The transport icon row carries both a plane and a bus
				// variant; only one is rendered per card.
				{Name: "transport_type", Handler: angelTravelTransport},
				{Name: "link", Selector: "a[href*='/offer/']", Attr: "href", Resolve: true},
			},
			Schema: offerSchema(),

			Scheme:    PaginationQuery,
			PageParam: "page",

			// Program pages live in the peakview.bg booking iframe; the
			// full program is behind its "Виж повече" link. Sections are
			// anchored on their headings rather than pane ids.
			Detail: &DetailConfig{
				Hops: []DetailHop{
					{Selector: "iframe[src*='peakview.bg']", Attr: "src"},
					{Selector: "a.but:contains('Виж повече')", Attr: "href"},
				},
				ProgramSelector:  "h2:contains('ПРОГРАМА') + div.resp-tab-content",
				IncludedSelector: "h2:contains('ЦЕНАТА ВКЛЮЧВА') + div.resp-tab-content li",
				ExcludedSelector: "h2:contains('ЦЕНАТА НЕ ВКЛЮЧВА') + div.resp-tab-content li",
			},
		},
	}
}

// angelTravelTransport reads the transport type off the card's icon row
func angelTravelTransport(s *goquery.Selection) string {
	if s.Find("span.icon-plane").Length() > 0 {
		return "plane"
	}
	if s.Find("span.icon-bus").Length() > 0 {
		return "bus"
	}
	return strings.TrimSpace(s.Find("div.offer-transport").Text())
}
