package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type RecordStoreCfg struct {
	URL         string
	APIKey      string
	BaseID      string
	View        string
	RateCalls   int
	RatePeriod  time.Duration
	HTTPTimeout time.Duration
}

type WarehouseCfg struct {
	DSN        string
	MaxConns   int
	RateCalls  int
	RatePeriod time.Duration
}

type ResilienceCfg struct {
	MaxRetries       int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	BreakerFailures  int
	BreakerOpenAfter time.Duration
}

type UsageCfg struct {
	Enabled   bool
	Brokers   string
	Topic     string
	QueueSize int
}

type Config struct {
	Addr              string
	LogLevel          string
	LogConsole        bool
	LogSampleN        int
	APIPrefix         string
	CORSOrigins       []string
	HTTPRateRequests  int
	HTTPRateWindow    time.Duration
	RecordStore       RecordStoreCfg
	Warehouse         WarehouseCfg
	Resilience        ResilienceCfg
	QuotaRedisAddr    string
	BoundariesBaseURL string
	LayersBaseURL     string
	Usage             UsageCfg
	MetricsEnabled    bool
	MetricsAddr       string
	MetricsPath       string
	BuildVersion      string
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func FromEnv() Config {
	return Config{
		Addr:             getenv("ADDR", ":8000"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		APIPrefix:        normalizePrefix(getenv("API_PREFIX", "/api")),
		CORSOrigins:      getlist("CORS_ORIGINS", []string{"*"}),
		HTTPRateRequests: getint("HTTP_RATE_LIMIT_REQUESTS", 0),
		HTTPRateWindow:   getduration("HTTP_RATE_LIMIT_WINDOW", time.Minute),
		RecordStore: RecordStoreCfg{
			URL:         getenv("AIRTABLE_URL", "https://api.airtable.com/v0"),
			APIKey:      getenv("CITIES_API_AIRTABLE_KEY", ""),
			BaseID:      getenv("AIRTABLE_BASE_ID", ""),
			View:        getenv("AIRTABLE_VIEW", "api"),
			RateCalls:   getint("AIRTABLE_RATE_LIMIT_CALLS", 5),
			RatePeriod:  getduration("AIRTABLE_RATE_LIMIT_PERIOD", time.Second),
			HTTPTimeout: getduration("AIRTABLE_HTTP_TIMEOUT", 30*time.Second),
		},
		Warehouse: WarehouseCfg{
			DSN:        getenv("WAREHOUSE_DSN", ""),
			MaxConns:   getint("WAREHOUSE_MAX_CONNS", 8),
			RateCalls:  getint("WAREHOUSE_RATE_LIMIT_CALLS", 10),
			RatePeriod: getduration("WAREHOUSE_RATE_LIMIT_PERIOD", time.Second),
		},
		Resilience: ResilienceCfg{
			MaxRetries:       getint("UPSTREAM_MAX_RETRIES", 6),
			BackoffInitial:   getduration("UPSTREAM_BACKOFF_INITIAL", time.Second),
			BackoffMax:       getduration("UPSTREAM_BACKOFF_MAX", 32*time.Second),
			BreakerFailures:  getint("BREAKER_FAILURES", 5),
			BreakerOpenAfter: getduration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		QuotaRedisAddr:    getenv("QUOTA_REDIS_ADDR", ""),
		BoundariesBaseURL: strings.TrimSuffix(getenv("BOUNDARIES_BASE_URL", "https://wri-cities-data-api.s3.us-east-1.amazonaws.com/data/prd/boundaries"), "/"),
		LayersBaseURL:     getenv("LAYERS_BASE_URL", "https://cities-indicators.s3.amazonaws.com/"),
		Usage: UsageCfg{
			Enabled:   getbool("USAGE_EVENTS_ENABLED", false),
			Brokers:   getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:     getenv("KAFKA_TOPIC", "cities-api-usage"),
			QueueSize: getint("USAGE_EVENTS_QUEUE", 1024),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
		BuildVersion:   getenv("BUILD_VERSION", ""),
	}
}

// "api/" -> "/api", "/" -> ""
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a, b,,c" into [a b c]
func getlist(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
