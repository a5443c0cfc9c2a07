package timeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the timeline service.
type ServiceConfig struct {
	Builder *Builder

	// Cache is optional; a fresh cache is created when nil.
	Cache *Cache

	Logger zerolog.Logger
}

// Service serves timelines from the cache and rebuilds them when they
// reach their RefreshAt. The cache lock is never held during a build.
type Service struct {
	builder *Builder
	cache   *Cache
	logger  zerolog.Logger
}

// NewService creates a new timeline service.
func NewService(cfg ServiceConfig) *Service {
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache()
	}
	return &Service{
		builder: cfg.Builder,
		cache:   cache,
		logger:  cfg.Logger,
	}
}

// Timeline returns the cached timeline for cfg, building a new one when
// none is cached or the cached one has expired at now.
func (s *Service) Timeline(ctx context.Context, cfg Config, now time.Time) *Timeline {
	if tl, ok := s.cache.Get(cfg.CacheKey(), now); ok {
		return tl
	}
	return s.Refresh(ctx, cfg, now)
}

// Refresh builds a new timeline for cfg regardless of the cache. The result
// is cached unless cfg was invalidated while the build was running.
func (s *Service) Refresh(ctx context.Context, cfg Config, now time.Time) *Timeline {
	key := cfg.CacheKey()
	gen := s.cache.Generation(key)

	tl := s.builder.Build(ctx, cfg, now)

	if !s.cache.Put(key, gen, tl) {
		s.logger.Debug().Str("timeline", key).Msg("discarding timeline built for a superseded configuration")
	}
	return tl
}

// Invalidate forces the next Timeline call for key to rebuild.
func (s *Service) Invalidate(key string) {
	s.cache.Invalidate(key)
}

// InvalidateAll forces every timeline to rebuild.
func (s *Service) InvalidateAll() {
	s.cache.InvalidateAll()
}

// Cached returns the cached timeline for key, expired or not.
func (s *Service) Cached(key string) (*Timeline, bool) {
	return s.cache.Peek(key)
}

// Keys returns the keys with cached timelines.
func (s *Service) Keys() []string {
	return s.cache.Keys()
}
