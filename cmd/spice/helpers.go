package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-classifier/internal/classification"
	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/config"
	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/pattern"
	"github.com/Veraticus/spice-classifier/internal/rules"
	"github.com/Veraticus/spice-classifier/internal/storage"
	"github.com/Veraticus/spice-classifier/internal/suggest"
)

// app holds the wired components a command needs.
type app struct {
	cfg       config.Config
	store     *storage.SQLiteStorage
	rules     *rules.Store
	manager   *rules.Manager
	engine    *engine.ClassificationEngine
	feedback  *feedback.Service
	miner     *suggest.Miner
	extractor *classification.KeywordExtractor
}

// initStorage opens the configured database and applies pending migrations.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// newApp loads configuration and wires storage, caches, engine and services.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ruleStore := rules.NewStore(store, pattern.Scoring(cfg.Scoring), cfg.Cache.RuleTTL)
	eng, err := engine.New(store, ruleStore, engine.Config{
		HighConfidence: cfg.Classification.HighConfidence,
		StatsTTL:       cfg.Cache.StatsTTL,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	extractor := classification.NewDefaultExtractor(cfg.Suggestions.MaxKeywords)

	return &app{
		cfg:       cfg,
		store:     store,
		rules:     ruleStore,
		manager:   rules.NewManager(store, ruleStore),
		engine:    eng,
		extractor: extractor,
		feedback: feedback.New(store, ruleStore, eng, extractor, feedback.Config{
			MinConfidence:   cfg.Promotion.MinConfidence,
			MinOccurrences:  cfg.Promotion.MinOccurrences,
			DefaultPriority: cfg.Promotion.DefaultPriority,
		}),
		miner: suggest.NewMiner(store, extractor, suggest.Config{
			MinFrequency:        cfg.Suggestions.MinFrequency,
			SimilarityThreshold: cfg.Suggestions.SimilarityThreshold,
		}),
	}, nil
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// parseID parses a positive numeric ID argument.
func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("invalid %s %q", name, raw), common.ErrInvalidInput)
	}
	return id, nil
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optionalID(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
