package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"dvanchev/offerworker/internal/crawler"
	"dvanchev/offerworker/logger"
	apperr "dvanchev/offerworker/pkg/errors"
)

// CSVSink writes records to a flat CSV file: one row per record, columns
// in schema field order. Each Persist call rewrites the whole file.
type CSVSink struct {
	Path   string
	Fields []string

	log *logger.Logger
}

// Ensure CSVSink implements Sink
var _ Sink = (*CSVSink)(nil)

// NewCSVSink creates a CSV sink writing to path with the given column order
func NewCSVSink(path string, fields []string) *CSVSink {
	return &CSVSink{Path: path, Fields: fields, log: logger.ForSink()}
}

// Persist writes the records. The input is not mutated or reordered;
// any failure surfaces as a sink error and loses nothing in memory.
func (s *CSVSink) Persist(records []crawler.Record) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return apperr.NewSink("", "failed to create output directory", err)
	}

	file, err := os.Create(s.Path)
	if err != nil {
		return apperr.NewSink("", "failed to open output file", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(s.Fields); err != nil {
		return apperr.NewSink("", "failed to write header", err)
	}

	for _, record := range records {
		row := make([]string, len(s.Fields))
		for i, name := range s.Fields {
			row[i] = record.Fields[name]
		}
		if err := writer.Write(row); err != nil {
			return apperr.NewSink(record.Provider, "failed to write row", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperr.NewSink("", "failed to flush output", err)
	}

	s.log.Debug().
		Str("path", s.Path).
		Int("rows", len(records)).
		Msg("Wrote output file")
	return nil
}
