package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/adapters/sampledata"
	"github.com/canonform-inc/canonform-engine/pkg/catalog"
	"github.com/canonform-inc/canonform-engine/pkg/config"
	"github.com/canonform-inc/canonform-engine/pkg/database"
	"github.com/canonform-inc/canonform-engine/pkg/handlers"
	"github.com/canonform-inc/canonform-engine/pkg/llm"
	"github.com/canonform-inc/canonform-engine/pkg/profiler"
	"github.com/canonform-inc/canonform-engine/pkg/proposal"
	"github.com/canonform-inc/canonform-engine/pkg/repositories"
	"github.com/canonform-inc/canonform-engine/pkg/resolver"
	"github.com/canonform-inc/canonform-engine/pkg/scoring"
	"github.com/canonform-inc/canonform-engine/pkg/services"
	"github.com/canonform-inc/canonform-engine/pkg/transform"
)

// Version is set at build time via ldflags
var Version = "dev"

const migrationsPath = "migrations"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("catalog_path", cfg.CatalogPath),
		zap.String("samples_dir", cfg.SamplesDir),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load canonical schema catalog", zap.Error(err))
	}
	logger.Info("Canonical schema catalog loaded",
		zap.String("version", cat.Version()),
		zap.Int("fields", len(cat.FieldNames())))

	client, err := llm.New(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	ctx := context.Background()

	var mappingRepo repositories.MappingPlanRepository
	var lineageRepo repositories.LineageRepository
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Warn("Database unavailable, running without persistence", zap.Error(err))
	} else {
		defer db.Close()

		stdDB := stdlib.OpenDBFromPool(db.Pool)
		if err := database.RunMigrations(stdDB, migrationsPath, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}

		mappingRepo = repositories.NewMappingPlanRepository(db)
		lineageRepo = repositories.NewLineageRepository(db)
	}

	loader := sampledata.NewLoader(cfg.SamplesDir, logger)
	prof := profiler.New(profiler.Limits{
		MaxSampleValues:       cfg.Profiling.MaxSampleValues,
		MaxCooccurringColumns: cfg.Profiling.MaxCooccurringColumns,
	}, logger)
	source := proposal.NewLLMSource(client, cat.Excerpt(), logger)
	res := resolver.NewResolver(cat, scoring.NewScorer(cat), cfg.Scoring, logger)
	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.LLM.MaxConcurrent}, logger)

	mappingService := services.NewMappingService(cat, loader, prof, source, res, pool, mappingRepo, logger)
	transformService := services.NewTransformService(loader, transform.NewTransformer(logger), mappingRepo, lineageRepo, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewMappingsHandler(mappingService, transformService, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting canonform-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
