// Package app wires the stop directory, departures client and timeline
// service from a config.Config. The API, worker and CLI entrypoints share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/config"
	"github.com/tripboard/tripboard/internal/database"
	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/telemetry"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit/tfnsw"
	"github.com/tripboard/tripboard/internal/worker"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// StopStore is an opened stop list backend.
type StopStore struct {
	// Name is the backend name reported by the ops endpoints.
	Name  string
	Store stop.Store

	pinger pinger
	close  func()
}

// Ping checks the backend. The memory backend is always reachable.
func (s *StopStore) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger.Ping(ctx)
}

// Close releases the backend connection.
func (s *StopStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStopStore opens the backend selected by cfg.StopStore.
func OpenStopStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*StopStore, error) {
	switch cfg.StopStore {
	case config.StoreMemory, "":
		logger.Warn().Msg("using in-memory stop store, saved stops are lost on restart")
		return &StopStore{
			Name:  "memory",
			Store: stop.NewRecordStore(stop.NewMemoryBlobStore()),
		}, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		blobs := stop.NewRedisBlobStore(client, cfg.RedisPrefix)
		if err := blobs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("redis stop store connected")
		return &StopStore{
			Name:   "redis",
			Store:  stop.NewRecordStore(blobs),
			pinger: blobs,
			close:  func() { _ = client.Close() },
		}, nil

	case config.StorePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		blobs := stop.NewPostgresBlobStore(pool)
		if err := blobs.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating kv_store table: %w", err)
		}
		logger.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("postgres stop store connected")
		return &StopStore{
			Name:   "postgres",
			Store:  stop.NewRecordStore(blobs),
			pinger: blobs,
			close:  pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown stop store %q", cfg.StopStore)
	}
}

// Core holds the components every entrypoint needs.
type Core struct {
	Registry  *resilience.Registry
	Store     *StopStore
	Directory *stop.Directory
	Provider  *tfnsw.Client
	Timelines *timeline.Service
}

// NewCore opens the stop store and builds the departures client and
// timeline service on top of it. Call after telemetry.Init so provider
// metrics reach the configured meter.
func NewCore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Core, error) {
	if cfg.APIKey == "" {
		logger.Warn().Msg("TFNSW_API_KEY is not set, upstream requests will be rejected")
	}

	store, err := OpenStopStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	directory, err := stop.NewDirectory(ctx, store.Store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading stops: %w", err)
	}

	metrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("provider metrics disabled")
	}

	registry := resilience.NewRegistry()
	provider := tfnsw.NewClient(tfnsw.ClientConfig{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Location: cfg.Location,
		Registry: registry,
		Metrics:  metrics,
		Logger:   logger,
	})

	timelines := timeline.NewService(timeline.ServiceConfig{
		Builder: timeline.NewBuilder(timeline.BuilderConfig{
			Resolver: stop.NewResolver(directory, cfg.PositionSource()),
			Provider: provider,
			Logger:   logger,
		}),
		Logger: logger,
	})

	return &Core{
		Registry:  registry,
		Store:     store,
		Directory: directory,
		Provider:  provider,
		Timelines: timelines,
	}, nil
}

// Close releases the stop store.
func (c *Core) Close() {
	c.Store.Close()
}

// Targets returns the configured widget timelines: WIDGETS_FILE when set,
// otherwise one widget per mode at its default stop.
func Targets(cfg *config.Config) ([]timeline.Config, error) {
	widgets := config.DefaultWidgets()
	if cfg.WidgetsFile != "" {
		var err error
		if widgets, err = config.LoadWidgets(cfg.WidgetsFile); err != nil {
			return nil, err
		}
	}
	if len(widgets) == 0 {
		return nil, errors.New("no widgets configured")
	}
	return worker.TargetsFromWidgets(widgets, cfg.Horizon, cfg.Step), nil
}
