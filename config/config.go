package config

import (
	"os"
	"strconv"
	"time"

	apperr "dvanchev/offerworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Crawl loop configuration
	CrawlInterval time.Duration

	// Pagination configuration
	MaxPages     int
	FetchRetries int
	RetryDelay   time.Duration
	FetchTimeout time.Duration
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	StopOnNoNew  bool

	// URLs for the configured sites
	DariTourURL    string
	AngelTravelURL string

	// Rendered fetch (optional)
	ChromeDBAddr string

	// Output
	OutputDir string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	crawlInterval, _ := strconv.Atoi(getEnv("CRAWL_INTERVAL_SECONDS", "3600"))
	maxPages, _ := strconv.Atoi(getEnv("MAX_PAGES", "20"))
	fetchRetries, _ := strconv.Atoi(getEnv("FETCH_RETRIES", "3"))
	retryDelay, _ := strconv.Atoi(getEnv("RETRY_DELAY_SECONDS", "5"))
	fetchTimeout, _ := strconv.Atoi(getEnv("FETCH_TIMEOUT_SECONDS", "10"))
	pageDelayMin, _ := strconv.Atoi(getEnv("PAGE_DELAY_MIN_MS", "2000"))
	pageDelayMax, _ := strconv.Atoi(getEnv("PAGE_DELAY_MAX_MS", "5000"))
	stopOnNoNew, _ := strconv.ParseBool(getEnv("STOP_ON_NO_NEW", "true"))

	return Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "offers"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		CrawlInterval:        time.Duration(crawlInterval) * time.Second,
		MaxPages:             maxPages,
		FetchRetries:         fetchRetries,
		RetryDelay:           time.Duration(retryDelay) * time.Second,
		FetchTimeout:         time.Duration(fetchTimeout) * time.Second,
		PageDelayMin:         time.Duration(pageDelayMin) * time.Millisecond,
		PageDelayMax:         time.Duration(pageDelayMax) * time.Millisecond,
		StopOnNoNew:          stopOnNoNew,
		DariTourURL:          getEnv("DARI_TOUR_URL", "https://dari-tour.com/lyato-2025"),
		AngelTravelURL:       getEnv("ANGEL_TRAVEL_URL", "https://angeltravel.com/lyato-2025"),
		ChromeDBAddr:         getEnv("CHROMEDB_ADDR", ""),
		OutputDir:            getEnv("OUTPUT_DIR", "./data"),
		Environment:          getEnv("OFFERWORKER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the crawl loop cannot run with
func (c *Config) Validate() error {
	if c.MaxPages < 1 {
		return apperr.NewConfiguration("MAX_PAGES must be at least 1", nil)
	}
	if c.FetchRetries < 1 {
		return apperr.NewConfiguration("FETCH_RETRIES must be at least 1", nil)
	}
	if c.PageDelayMin > c.PageDelayMax {
		return apperr.NewConfiguration("PAGE_DELAY_MIN_MS must not exceed PAGE_DELAY_MAX_MS", nil)
	}
	if c.CrawlInterval <= 0 {
		return apperr.NewConfiguration("CRAWL_INTERVAL_SECONDS must be positive", nil)
	}
	if c.OutputDir == "" {
		return apperr.NewConfiguration("OUTPUT_DIR must not be empty", nil)
	}
	if c.DariTourURL == "" && c.AngelTravelURL == "" {
		return apperr.NewConfiguration("no site URLs configured", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
