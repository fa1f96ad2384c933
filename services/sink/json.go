package sink

import (
	"encoding/json"
	"os"
	"path/filepath"

	"dvanchev/offerworker/helpers"
	"dvanchev/offerworker/internal/crawler"
	"dvanchev/offerworker/logger"
	apperr "dvanchev/offerworker/pkg/errors"
)

// DetailSink persists the structured detail content of a crawl run
type DetailSink interface {
	PersistDetails(details []crawler.OfferDetails) error
}

// JSONDirSink writes one JSON file per offer into a directory, named by
// the slugified offer name. Offers already on disk are left alone, so
// repeated cycles only pay for new offers.
type JSONDirSink struct {
	Dir string

	log *logger.Logger
}

// Ensure JSONDirSink implements DetailSink
var _ DetailSink = (*JSONDirSink)(nil)

// NewJSONDirSink creates a detail sink writing into dir
func NewJSONDirSink(dir string) *JSONDirSink {
	return &JSONDirSink{Dir: dir, log: logger.ForSink()}
}

// PersistDetails writes each offer's details to its own file
func (s *JSONDirSink) PersistDetails(details []crawler.OfferDetails) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return apperr.NewSink("", "failed to create detail directory", err)
	}

	written := 0
	for _, d := range details {
		slug := helpers.Slugify(d.Name)
		if slug == "" {
			continue
		}
		path := filepath.Join(s.Dir, slug+".json")
		if _, err := os.Stat(path); err == nil {
			// Already captured on an earlier cycle
			continue
		}

		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return apperr.NewSink("", "failed to marshal offer details", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return apperr.NewSink("", "failed to write detail file", err)
		}
		written++
	}

	s.log.Debug().
		Str("dir", s.Dir).
		Int("offers", len(details)).
		Int("written", written).
		Msg("Wrote detail files")
	return nil
}
