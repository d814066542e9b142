package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/aigrader"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stemsi/exstem-attempt/internal/worker"
)

// stores bundles the persistence ports selected by STORE_DRIVER.
type stores struct {
	attempts service.AttemptStore
	catalog  service.Catalog
	activity service.ActivityLog
	// worker is nil when activity entries are written synchronously.
	worker *worker.ActivityWorker
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Msg("Starting ExStem Attempt Engine")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Required with Postgres; optional in memory mode.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		if cfg.StoreDriver != config.StoreDriverMemory {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Warn().Err(err).Msg("Redis unavailable, running without cache, queue and monitor")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Stores ─────────────────────────────────────────────
	var st stores
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		st = memoryStores(cfg, log)
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		activityRepo := repository.NewActivityRepository(pool)
		st = stores{
			attempts: repository.NewAttemptRepository(pool),
			catalog:  repository.NewCatalogRepository(pool),
			activity: repository.NewActivityQueue(rdb, activityRepo, log),
			worker:   worker.NewActivityWorker(activityRepo, rdb, log),
		}
	default:
		log.Fatal().Str("store", cfg.StoreDriver).Msg("Unknown STORE_DRIVER")
	}

	catalog := st.catalog
	if rdb != nil {
		catalog = service.NewCachedCatalog(st.catalog, rdb, cfg.CatalogCacheTTL, log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	var ai service.AIGrader = aigrader.Disabled{}
	if cfg.AIGraderEnabled() {
		ai = aigrader.New(cfg.AIGraderURL, cfg.AIGraderKey, cfg.AIGraderModel, log)
	} else {
		log.Warn().Msg("AI grader not configured, short and long answers will score zero")
	}

	var events service.EventPublisher = service.NopPublisher{}
	if rdb != nil {
		events = service.NewRedisEventPublisher(rdb, log)
	}

	authService := service.NewAuthService(cfg)
	attemptService := service.NewAttemptService(
		st.attempts, catalog, st.activity, events,
		service.NewGrader(ai, cfg.AIGraderTimeout, log),
		log,
		service.WithWriteRetries(cfg.AttemptWriteRetries),
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	limiterDone := make(chan struct{})
	logLimiter := middleware.NewRateLimiter(cfg.LogRatePerMinute, time.Minute, limiterDone)

	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService, log),
		WS:      handler.NewWSHandler(attemptService, logLimiter, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(rdb, cfg.StoreDriver, log),
	}
	if rdb != nil {
		handlers.Monitor = handler.NewMonitorHandler(service.NewMonitorService(st.attempts, catalog, rdb), log)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	if st.worker != nil {
		workers.Go(func() { st.worker.Start(workerCtx) })
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, logLimiter, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Submits in flight finish grading.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second+cfg.AIGraderTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the activity worker and wait for its final flush.
	workerCancel()
	workers.Wait()
	close(limiterDone)

	log.Info().Msg("Shutdown complete")
}

// memoryStores backs every port with one in-process store, optionally seeded from CATALOG_FILE.
func memoryStores(cfg *config.Config, log zerolog.Logger) stores {
	mem := repository.NewMemoryStore()
	if cfg.CatalogFile != "" {
		catalog, err := repository.LoadCatalogFile(cfg.CatalogFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("Failed to load catalog file")
		}
		mem.Load(catalog)
		log.Info().
			Int("exams", len(catalog.Exams)).
			Int("questions", len(catalog.Questions)).
			Msg("Catalog loaded into memory store")
	} else {
		log.Warn().Msg("Memory store started with an empty catalog")
	}
	return stores{attempts: mem, catalog: mem, activity: mem}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

