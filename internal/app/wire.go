// Package app assembles the pieces shared by the server and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/market-research/internal/ai"
	"github.com/suPer8Hu/market-research/internal/config"
	"github.com/suPer8Hu/market-research/internal/db"
	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/research"
	"github.com/suPer8Hu/market-research/internal/store/gormstore"
	"github.com/suPer8Hu/market-research/internal/store/memstore"
	"github.com/suPer8Hu/market-research/internal/store/redisstore"
)

// NewRegistry registers every provider the config knows how to reach.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("openrouter", func(_ context.Context, model, apiKey string) (ai.Provider, error) {
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, apiKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	}, ai.RequireKey(), ai.DefaultModel(cfg.OpenRouterModelQuick))

	// Ollama runs locally and ignores the caller's key.
	reg.Register("ollama", func(_ context.Context, model, _ string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	}, ai.DefaultModel(cfg.OllamaModel))

	reg.Register("openai", func(_ context.Context, model, apiKey string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(apiKey, model, cfg.OpenAIBaseURL)
	}, ai.RequireKey(), ai.DefaultModel(cfg.OpenAIModelQuick))
	return reg
}

// NewResearcher builds the agent team for the configured provider.
func NewResearcher(cfg config.Config, reg *ai.Registry) research.Researcher {
	models := map[research.Mode]string{}
	switch cfg.AIProvider {
	case "openai":
		models[research.ModeQuick] = cfg.OpenAIModelQuick
		models[research.ModeDetailed] = cfg.OpenAIModelDetailed
	case "ollama":
		models[research.ModeQuick] = cfg.OllamaModel
		models[research.ModeDetailed] = cfg.OllamaModel
	default:
		models[research.ModeQuick] = cfg.OpenRouterModelQuick
		models[research.ModeDetailed] = cfg.OpenRouterModelDetailed
	}
	return research.NewTeam(reg, cfg.AIProvider, models)
}

// OpenStore returns the configured job store and a func releasing its connections.
func OpenStore(ctx context.Context, cfg config.Config) (jobs.Store, func() error, error) {
	switch cfg.JobStore {
	case "memory":
		return memstore.New(), func() error { return nil }, nil
	case "redis":
		rdb, err := redisstore.Connect(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(rdb, cfg.JobTTL), rdb.Close, nil
	case "sql":
		gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		s, err := gormstore.New(gdb)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return s, sqlDB.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported JOB_STORE=%q", cfg.JobStore)
	}
}
