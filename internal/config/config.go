// Package config loads the typed application configuration from flags,
// SPICE_* environment variables, an optional .env file and a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-classifier/internal/common"
)

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "$HOME/.local/share/spice/spice.db"

// Config is the typed application configuration.
type Config struct {
	Database       Database       `mapstructure:"database"`
	Logging        Logging        `mapstructure:"logging"`
	Server         Server         `mapstructure:"server"`
	Suggestions    Suggestions    `mapstructure:"suggestions"`
	Scoring        Scoring        `mapstructure:"scoring"`
	Promotion      Promotion      `mapstructure:"promotion"`
	Cache          Cache          `mapstructure:"cache"`
	Classification Classification `mapstructure:"classification"`
}

// Database configures the sqlite store.
type Database struct {
	Path string `mapstructure:"path"`
}

// Logging configures slog.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server configures the HTTP adapter.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Cache configures the rule store and statistics caches.
type Cache struct {
	RuleTTL  time.Duration `mapstructure:"rule_ttl"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

// Scoring holds the confidence formula constants.
type Scoring struct {
	Base               float64 `mapstructure:"base"`
	PriorityWeight     float64 `mapstructure:"priority_weight"`
	ExactBonus         float64 `mapstructure:"exact_bonus"`
	RegexBonus         float64 `mapstructure:"regex_bonus"`
	AffixBonus         float64 `mapstructure:"affix_bonus"`
	ContainsBonus      float64 `mapstructure:"contains_bonus"`
	CaseSensitiveBonus float64 `mapstructure:"case_sensitive_bonus"`
	LengthDivisor      float64 `mapstructure:"length_divisor"`
	MaxLengthBonus     float64 `mapstructure:"max_length_bonus"`
	RegexPenalty       float64 `mapstructure:"regex_penalty"`
}

// Classification configures batch summaries.
type Classification struct {
	HighConfidence int `mapstructure:"high_confidence"`
}

// Suggestions configures the suggestion miner.
type Suggestions struct {
	MinFrequency        int     `mapstructure:"min_frequency"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxKeywords         int     `mapstructure:"max_keywords"`
}

// Promotion configures the suggested-rule promotion sweep.
type Promotion struct {
	Schedule        string `mapstructure:"schedule"`
	MinConfidence   int    `mapstructure:"min_confidence"`
	MinOccurrences  int    `mapstructure:"min_occurrences"`
	DefaultPriority int    `mapstructure:"default_priority"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("cache.rule_ttl", time.Hour)
	v.SetDefault("cache.stats_ttl", 5*time.Minute)

	v.SetDefault("scoring.base", 50.0)
	v.SetDefault("scoring.priority_weight", 30.0)
	v.SetDefault("scoring.exact_bonus", 20.0)
	v.SetDefault("scoring.regex_bonus", 15.0)
	v.SetDefault("scoring.affix_bonus", 10.0)
	v.SetDefault("scoring.contains_bonus", 5.0)
	v.SetDefault("scoring.case_sensitive_bonus", 5.0)
	v.SetDefault("scoring.length_divisor", 5.0)
	v.SetDefault("scoring.max_length_bonus", 10.0)
	v.SetDefault("scoring.regex_penalty", 5.0)

	v.SetDefault("classification.high_confidence", 80)

	v.SetDefault("suggestions.min_frequency", 2)
	v.SetDefault("suggestions.similarity_threshold", 0.70)
	v.SetDefault("suggestions.max_keywords", 5)

	v.SetDefault("promotion.schedule", "@hourly")
	v.SetDefault("promotion.min_confidence", 90)
	v.SetDefault("promotion.min_occurrences", 5)
	v.SetDefault("promotion.default_priority", 5)
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	cfg.Database.Path = expandPath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// expandPath resolves environment variables and then a leading ~, so a
// SPICE_DATABASE_PATH=~/ledger/spice.db from .env lands in the home directory.
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// Validate rejects out-of-range settings.
func (c Config) Validate() error {
	switch {
	case c.Cache.RuleTTL <= 0:
		return fmt.Errorf("%w: cache.rule_ttl must be positive", common.ErrInvalidConfig)
	case c.Scoring.LengthDivisor <= 0:
		return fmt.Errorf("%w: scoring.length_divisor must be positive", common.ErrInvalidConfig)
	case c.Classification.HighConfidence < 0 || c.Classification.HighConfidence > 100:
		return fmt.Errorf("%w: classification.high_confidence must be between 0 and 100", common.ErrInvalidConfig)
	case c.Suggestions.MinFrequency < 1:
		return fmt.Errorf("%w: suggestions.min_frequency must be at least 1", common.ErrInvalidConfig)
	case c.Suggestions.SimilarityThreshold < 0 || c.Suggestions.SimilarityThreshold > 1:
		return fmt.Errorf("%w: suggestions.similarity_threshold must be between 0 and 1", common.ErrInvalidConfig)
	case c.Suggestions.MaxKeywords < 1:
		return fmt.Errorf("%w: suggestions.max_keywords must be at least 1", common.ErrInvalidConfig)
	case c.Promotion.MinConfidence < 0 || c.Promotion.MinConfidence > 100:
		return fmt.Errorf("%w: promotion.min_confidence must be between 0 and 100", common.ErrInvalidConfig)
	case c.Promotion.MinOccurrences < 1:
		return fmt.Errorf("%w: promotion.min_occurrences must be at least 1", common.ErrInvalidConfig)
	case c.Promotion.DefaultPriority < 1 || c.Promotion.DefaultPriority > 10:
		return fmt.Errorf("%w: promotion.default_priority must be between 1 and 10", common.ErrInvalidConfig)
	}
	return nil
}
