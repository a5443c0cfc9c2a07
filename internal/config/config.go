// Package config loads service configuration from the environment and the
// widget definitions file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
)

// Stop store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the process configuration shared by the API, worker and CLI.
type Config struct {
	Port string
	Env  string

	// Upstream departures API.
	APIKey   string
	BaseURL  string
	Location *time.Location

	// Stop directory persistence.
	StopStore     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Position used for automatic stop resolution when a request has none.
	Position *stop.Position

	WidgetsFile        string
	Horizon            time.Duration
	Step               time.Duration
	RefreshConcurrency int

	OTelEnabled  bool
	OTLPEndpoint string

	PubSubProjectID    string
	PubSubSubscription string

	// MetricsAddr is the Prometheus listen address. Empty disables it.
	MetricsAddr string
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getenvDefault("APP_PORT", "8080"),
		Env:                getenvDefault("APP_ENV", "development"),
		APIKey:             os.Getenv("TFNSW_API_KEY"),
		BaseURL:            os.Getenv("TFNSW_BASE_URL"),
		StopStore:          strings.ToLower(getenvDefault("STOP_STORE", StoreMemory)),
		RedisAddr:          getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:        getenvDefault("REDIS_PREFIX", "tripboard:"),
		WidgetsFile:        os.Getenv("WIDGETS_FILE"),
		OTelEnabled:        parseBool(os.Getenv("OTEL_ENABLED")),
		OTLPEndpoint:       getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
	}

	switch cfg.StopStore {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return nil, fmt.Errorf("invalid STOP_STORE: %q", cfg.StopStore)
	}

	var err error
	if cfg.RedisDB, err = intFromEnv("REDIS_DB", 0, 0); err != nil {
		return nil, err
	}

	horizon, err := intFromEnv("TIMELINE_HORIZON_MINUTES", 30, 1)
	if err != nil {
		return nil, err
	}
	cfg.Horizon = time.Duration(horizon) * time.Minute

	step, err := intFromEnv("TIMELINE_STEP_MINUTES", 2, 1)
	if err != nil {
		return nil, err
	}
	cfg.Step = time.Duration(step) * time.Minute

	if cfg.RefreshConcurrency, err = intFromEnv("REFRESH_CONCURRENCY", 4, 1); err != nil {
		return nil, err
	}

	// Time zone for upstream date/time query parameters
	tzName := getenvDefault("TZ", "Australia/Sydney")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %w", err)
	}
	cfg.Location = loc

	if cfg.Position, err = positionFromEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TimelineDefaults returns a timeline config with the configured horizon and step.
func (c *Config) TimelineDefaults(req stop.Request) timeline.Config {
	return timeline.Config{Request: req, Horizon: c.Horizon, Step: c.Step}
}

// PositionSource returns the configured position, or none.
func (c *Config) PositionSource() stop.PositionSource {
	if c.Position == nil {
		return stop.NoPosition{}
	}
	return stop.StaticPosition(*c.Position)
}

func positionFromEnv() (*stop.Position, error) {
	latRaw, lonRaw := os.Getenv("POSITION_LAT"), os.Getenv("POSITION_LON")
	if latRaw == "" && lonRaw == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid POSITION_LAT: %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid POSITION_LON: %q", lonRaw)
	}

	return &stop.Position{Latitude: lat, Longitude: lon}, nil
}

func intFromEnv(key string, def, min int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
