package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"dvanchev/offerworker/config"
	"dvanchev/offerworker/internal/crawler"
	"dvanchev/offerworker/logger"
	"dvanchev/offerworker/services/cache"
	"dvanchev/offerworker/services/publisher"
	"dvanchev/offerworker/services/sink"
	"dvanchev/offerworker/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("crawl_interval", cfg.CrawlInterval).
		Int("max_pages", cfg.MaxPages).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services := initializeServices(ctx, &cfg)
	defer services.Cleanup()

	// Create site crawlers and their sinks
	crawlers := crawler.CreateCrawlers(&cfg, services.Cache)
	if len(crawlers) == 0 {
		log.Fatal().Msg("No crawlers were created")
	}

	jobs := make([]worker.Job, 0, len(crawlers))
	for _, c := range crawlers {
		path := filepath.Join(cfg.OutputDir, c.OutputName()+".csv")
		detailDir := filepath.Join(cfg.OutputDir, c.OutputName()+"_details")
		jobs = append(jobs, worker.Job{
			Crawler:    c,
			Sink:       sink.NewCSVSink(path, c.GetSchema().FieldNames()),
			DetailSink: sink.NewJSONDirSink(detailDir),
		})
	}

	log.Info().
		Int("crawler_count", len(jobs)).
		Str("output_dir", cfg.OutputDir).
		Msg("Created crawlers")

	// Create and start worker
	w := worker.NewWorker(ctx, jobs, services.Publisher, cfg.CrawlInterval)

	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting offer worker")
		workerDone <- w.Start()
	}()

	// Wait for shutdown signal or worker exit
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	services := &Services{}

	services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	services.Publisher = publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	return services
}
