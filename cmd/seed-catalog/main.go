package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/service"
)

func main() {
	var path string
	flag.StringVar(&path, "file", "deploy/catalog.sample.json", "Catalog JSON file to load")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	catalog, err := repository.LoadCatalogFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to load catalog file")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	repo := repository.NewCatalogRepository(pool)

	fmt.Printf("=== Seeding %d questions and %d exams ===\n", len(catalog.Questions), len(catalog.Exams))

	if err := repo.UpsertQuestions(ctx, catalog.Questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to upsert questions")
	}
	for i := range catalog.Exams {
		exam := &catalog.Exams[i]
		if err := repo.UpsertExam(ctx, exam); err != nil {
			log.Fatal().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to upsert exam")
		}
		fmt.Printf("Upserted exam %s (%s)\n", exam.ID, exam.Title)
	}

	// Drop stale cache entries so running servers pick up the new definitions.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, skipping cache invalidation")
		return
	}
	defer rdb.Close()

	cached := service.NewCachedCatalog(repo, rdb, cfg.CatalogCacheTTL, log)
	for i := range catalog.Exams {
		exam := &catalog.Exams[i]
		if err := cached.Invalidate(ctx, exam); err != nil {
			log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Cache invalidation failed")
		}
	}
	fmt.Println("Done.")
}
