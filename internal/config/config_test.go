package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-classifier/internal/common"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Cache.RuleTTL)
	assert.Equal(t, 50.0, cfg.Scoring.Base)
	assert.Equal(t, 30.0, cfg.Scoring.PriorityWeight)
	assert.Equal(t, 80, cfg.Classification.HighConfidence)
	assert.Equal(t, 2, cfg.Suggestions.MinFrequency)
	assert.InDelta(t, 0.70, cfg.Suggestions.SimilarityThreshold, 1e-9)
	assert.Equal(t, 90, cfg.Promotion.MinConfidence)
	assert.Equal(t, 5, cfg.Promotion.MinOccurrences)
	assert.NotContains(t, cfg.Database.Path, "$HOME")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: /tmp/spice-test.db
cache:
  rule_ttl: 10m
scoring:
  regex_penalty: 8
suggestions:
  min_frequency: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/spice-test.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Minute, cfg.Cache.RuleTTL)
	assert.Equal(t, 8.0, cfg.Scoring.RegexPenalty)
	assert.Equal(t, 4, cfg.Suggestions.MinFrequency)
	assert.Equal(t, 5.0, cfg.Scoring.ContainsBonus)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{"suggestions.similarity_threshold", 1.5},
		{"promotion.default_priority", 11},
		{"classification.high_confidence", 101},
		{"suggestions.min_frequency", 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SPICE_TEST_DIR", "/srv/spice")
	t.Setenv("SPICE_TEST_HOME_DIR", "~/ledger")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/data/spice.db", filepath.Join(home, "data", "spice.db")},
		{"$SPICE_TEST_DIR/spice.db", "/srv/spice/spice.db"},
		{"$SPICE_TEST_HOME_DIR/spice.db", filepath.Join(home, "ledger", "spice.db")},
		{"/var/lib/~spice/spice.db", "/var/lib/~spice/spice.db"},
		{"~other/spice.db", "~other/spice.db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandPath(tt.in), tt.in)
	}
}

func TestLoad_DatabasePathFromEnvironment(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SPICE_TEST_HOME_DIR", "~/ledger")

	v := viper.New()
	v.Set("database.path", "$SPICE_TEST_HOME_DIR/spice.db")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "ledger", "spice.db"), cfg.Database.Path)
}
