package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-points-must-flow/internal/categorize"
	"github.com/Veraticus/the-points-must-flow/internal/config"
	"github.com/Veraticus/the-points-must-flow/internal/engine"
	"github.com/Veraticus/the-points-must-flow/internal/jobs"
	"github.com/Veraticus/the-points-must-flow/internal/opportunity"
	"github.com/Veraticus/the-points-must-flow/internal/recommend"
	"github.com/Veraticus/the-points-must-flow/internal/recurring"
	"github.com/Veraticus/the-points-must-flow/internal/rewards"
	"github.com/Veraticus/the-points-must-flow/internal/storage"
	"github.com/spf13/viper"
)

// app wires every component from the loaded configuration.
type app struct {
	store       *storage.SQLiteStorage
	gateway     *categorize.Gateway
	recommender *recommend.Recommender
	engine      *engine.Engine
	jobs        *jobs.Manager
	cfg         config.Config
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger := slog.Default()

	var client categorize.Client
	if cfg.Categorizer.Endpoint != "" {
		httpClient, err := categorize.NewHTTPClient(cfg.Categorizer.Endpoint, cfg.Categorizer.Timeout, cfg.Categorizer.MaxRetries)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		client = httpClient
	}

	gateway := categorize.NewGateway(categorize.Config{
		Client: client,
		Store:  store,
		Logger: logger,
	})
	if err := gateway.Restore(ctx); err != nil {
		slog.Warn("Failed to restore categorizer status", "error", err)
	}

	recommender := recommend.New(store, recommend.Options{
		Timeout:  cfg.Recommend.Timeout,
		CacheTTL: cfg.Recommend.CacheTTL,
	}, logger)

	estimator := rewards.NewEstimator(cfg.Estimation.MaterialityCents, logger)
	eng, err := engine.NewWithConfig(engine.Dependencies{
		Repository:  store,
		Categorizer: gateway,
		Recommender: recommender,
		Estimator:   estimator,
		Aggregator:  opportunity.NewAggregator(cfg.Estimation.MaterialityCents, cfg.Opportunities.SampleMerchants, logger),
		Detector:    recurring.NewDetector(cfg.Recurring.LookbackMonths, cfg.Recurring.MergeDistance, logger),
		Logger:      logger,
	}, engine.Config{
		BatchSize:     cfg.Categorizer.BatchSize,
		Workers:       cfg.Workers,
		TopK:          cfg.Opportunities.TopK,
		WindowDays:    cfg.Opportunities.WindowDays,
		MergeDistance: cfg.Recurring.MergeDistance,
	})
	if err != nil {
		recommender.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{
		store:       store,
		gateway:     gateway,
		recommender: recommender,
		engine:      eng,
		jobs:        jobs.NewManager(store, logger),
		cfg:         cfg,
	}, nil
}

func (a *app) Close() {
	a.jobs.Wait()
	a.engine.Close()
	a.recommender.Close()
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
