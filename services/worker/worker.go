package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dvanchev/offerworker/internal/crawler"
	"dvanchev/offerworker/logger"
	"dvanchev/offerworker/services/publisher"
	"dvanchev/offerworker/services/sink"
)

// Job pairs one site crawler with the sinks its output goes to
type Job struct {
	Crawler    crawler.Crawler
	Sink       sink.Sink
	DetailSink sink.DetailSink
}

// Worker runs all site crawls on an interval and fans their accepted
// records out to the publisher and the per-site sinks. Each crawl owns
// disjoint state, so jobs run concurrently without coordination.
type Worker struct {
	ctx           context.Context
	jobs          []Job
	publisher     publisher.Publisher
	crawlInterval time.Duration

	log *logger.Logger
}

// NewWorker creates a new worker
func NewWorker(ctx context.Context, jobs []Job, pub publisher.Publisher, crawlInterval time.Duration) *Worker {
	return &Worker{
		ctx:           ctx,
		jobs:          jobs,
		publisher:     pub,
		crawlInterval: crawlInterval,
		log:           logger.ForWorker(),
	}
}

// Start runs crawl cycles until the context is cancelled
func (w *Worker) Start() error {
	for {
		start := time.Now()
		w.runCycle()
		w.log.Info().Dur("elapsed", time.Since(start)).Msg("Crawl cycle finished")

		select {
		case <-w.ctx.Done():
			return nil
		case <-time.After(w.crawlInterval):
		}
	}
}

// runCycle runs all jobs in parallel and then trims the streams
func (w *Worker) runCycle() {
	var wg sync.WaitGroup
	for _, job := range w.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			w.crawlAndDeliver(job)
		}(job)
	}
	wg.Wait()

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(); err != nil {
			logger.LogError("worker", err, "Failed to trim streams")
		}
	}
}

// crawlAndDeliver runs one site crawl and delivers its records
func (w *Worker) crawlAndDeliver(job Job) {
	name := job.Crawler.GetName()
	result := job.Crawler.Crawl(w.ctx)

	event := w.log.Info()
	if result.Err != nil {
		event = w.log.Warn().Err(result.Err)
	}
	event.
		Str("crawler", name).
		Int("pages", result.Pages).
		Int("records", len(result.Records)).
		Str("reason", string(result.Reason)).
		Msg("Crawl run ended")

	// Partial results are still delivered, whatever the reason
	if len(result.Records) == 0 {
		return
	}

	w.publishRecords(name, job.Crawler.GetProvider(), result.Records)

	if job.Sink != nil {
		if err := job.Sink.Persist(result.Records); err != nil {
			// The accumulated set stays in this cycle's result; the next
			// cycle rewrites the file from scratch.
			logger.LogError(name, err, "Failed to persist records")
		}
	}

	if job.DetailSink != nil && len(result.Details) > 0 {
		if err := job.DetailSink.PersistDetails(result.Details); err != nil {
			logger.LogError(name, err, "Failed to persist offer details")
		}
	}
}

// publishRecords pushes accepted records onto the stream
func (w *Worker) publishRecords(name, provider string, records []crawler.Record) {
	if w.publisher == nil {
		return
	}

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			logger.LogError(name, err, "Failed to marshal record")
			continue
		}
		if err := w.publisher.Publish(provider, data); err != nil {
			logger.LogError(name, err, "Failed to publish record")
		}
	}
}
