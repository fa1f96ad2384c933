package sink

import "dvanchev/offerworker/internal/crawler"

// Sink persists a crawl run's accumulated records. Persist must write
// records in the order given and must not mutate them; on failure the
// caller keeps the in-memory set and may retry on the next cycle.
type Sink interface {
	Persist(records []crawler.Record) error
}
