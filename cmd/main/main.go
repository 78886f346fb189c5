package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"partidas-service/internal/catalog"
	catHnd "partidas-service/internal/catalog/handler"
	"partidas-service/internal/config"
	"partidas-service/internal/learning"
	matchHnd "partidas-service/internal/matching/handler"
	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/store"
	"partidas-service/internal/store/memory"
	"partidas-service/internal/store/postgres"
	"partidas-service/internal/store/rediscache"
	"partidas-service/internal/store/sqlite"
	serverhttp "partidas-service/server/http"
)

func main() {
	cfg := config.Load()
	logger := config.SetupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, cleanup := openStores(ctx, cfg, logger)
	defer cleanup()

	catalogOpts := []catalog.Option{
		catalog.WithPageSize(cfg.CatalogPageSize),
		catalog.WithLogger(logger.With().Str("component", "catalog").Logger()),
		catalog.WithCache(catalog.NewMemoryCache(cfg.CatalogCacheTTL)),
	}
	if stores.cache != nil {
		catalogOpts = append(catalogOpts, catalog.WithCache(stores.cache))
	}
	catalogSvc := catalog.New(stores.catalog, stores.snapshot, catalogOpts...)

	engine := learning.New(stores.learning, stores.localLearning,
		learning.WithLimit(cfg.LearningLimit),
		learning.WithLogger(logger.With().Str("component", "learning").Logger()),
	)
	matcher := service.NewMatcher(
		service.WithThresholds(model.Thresholds{Match: cfg.MatchThreshold, Similar: cfg.SimilarThreshold}),
		service.WithWorkers(cfg.Workers),
		service.WithLogger(logger.With().Str("component", "matcher").Logger()),
	)

	r := serverhttp.NewRouter(cfg, logger, serverhttp.Deps{
		Matching: matchHnd.New(matcher, catalogSvc, engine, cfg.ChunkSize, cfg.MaxUploadMB, logger),
		Catalog:  catHnd.New(catalogSvc, cfg.MaxUploadMB, logger),
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", cfg.Addr()).Msg("server starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("bye")
}

type stores struct {
	catalog       store.CatalogStore
	snapshot      store.SnapshotStore
	learning      store.LearningStore
	localLearning store.LearningStore
	cache         catalog.Cache
}

// openStores picks Postgres when DATABASE_URL is set and an in-memory store
// otherwise. SQLite backs snapshots and learning writes when the remote is
// down; Redis shares the catalog cache when REDIS_ADDR is set.
func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (stores, func()) {
	var (
		s       stores
		closers []func() error
	)

	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("postgres migrate")
		}
		closers = append(closers, pg.Close)
		s.catalog, s.learning = pg, pg
		logger.Info().Msg("remote store: postgres")
	} else {
		mem := memory.New()
		s.catalog, s.learning = mem, mem
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	if cfg.LocalDBPath != "" {
		local, err := sqlite.Open(ctx, cfg.LocalDBPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.LocalDBPath).Msg("local store disabled")
		} else {
			closers = append(closers, local.Close)
			s.snapshot, s.localLearning = local, local
		}
	}

	if cfg.RedisAddr != "" {
		c, err := rediscache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.CatalogCacheTTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis cache disabled")
		} else {
			closers = append(closers, c.Close)
			s.cache = c
		}
	}

	return s, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn().Err(err).Msg("close store")
			}
		}
	}
}
