package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv keeps user config and env overrides out of the tests.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{
		"DOCMIND_DATA_DIR", "DOCMIND_LEXICAL_WEIGHT", "DOCMIND_SEMANTIC_WEIGHT",
		"DOCMIND_TEXT_BACKEND", "DOCMIND_INGEST_WORKERS", "DOCMIND_LOG_LEVEL", "DOCMIND_LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.InDelta(t, 0.5, cfg.Search.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Search.SemanticWeight, 1e-9)
	assert.Equal(t, "bleve", cfg.Search.TextBackend)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Positive(t, cfg.Performance.IngestWorkers)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	project := `
search:
  lexical_weight: 0.7
  semantic_weight: 0.3
  text_backend: sqlite
  max_results: 25
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docmind.yaml"), []byte(project), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.Search.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Search.SemanticWeight, 1e-9)
	assert.Equal(t, "sqlite", cfg.Search.TextBackend)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2.0, cfg.Search.TitleBoost, "untouched fields keep defaults")
}

func TestLoad_UserConfigAppliesBeforeProjectConfig(t *testing.T) {
	isolateEnv(t)

	xdg := os.Getenv("XDG_CONFIG_HOME")
	userDir := filepath.Join(xdg, "docmind")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	user := "search:\n  max_results: 50\nlogging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(user), 0o644))

	dir := t.TempDir()
	project := "logging:\n  level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docmind.yaml"), []byte(project), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Search.MaxResults, "user config survives where project is silent")
	assert.Equal(t, "error", cfg.Logging.Level, "project config wins on conflict")
}

func TestLoad_EnvOverridesWinOverFiles(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	project := "search:\n  lexical_weight: 0.7\n  semantic_weight: 0.3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docmind.yaml"), []byte(project), 0o644))

	t.Setenv("DOCMIND_LEXICAL_WEIGHT", "0.2")
	t.Setenv("DOCMIND_SEMANTIC_WEIGHT", "0.8")
	t.Setenv("DOCMIND_DATA_DIR", "/custom/data")
	t.Setenv("DOCMIND_INGEST_WORKERS", "2")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, cfg.Search.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.8, cfg.Search.SemanticWeight, 1e-9)
	assert.Equal(t, "/custom/data", cfg.DataDir)
	assert.Equal(t, 2, cfg.Performance.IngestWorkers)
}

func TestLoad_RejectsWeightsNotSummingToOne(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	project := "search:\n  lexical_weight: 0.7\n  semantic_weight: 0.7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docmind.yaml"), []byte(project), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestLoad_RejectsPartialWeightOverride(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	// Only one weight set; the pair no longer sums to 1.
	project := "search:\n  lexical_weight: 0.7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docmind.yaml"), []byte(project), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docmind.yaml"), []byte(":\n\t- nope"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown text backend",
			mutate:  func(c *Config) { c.Search.TextBackend = "lucene" },
			wantErr: "text_backend",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.Search.LexicalWeight = -0.1; c.Search.SemanticWeight = 1.1 },
			wantErr: "lexical_weight",
		},
		{
			name:    "zero title boost",
			mutate:  func(c *Config) { c.Search.TitleBoost = 0 },
			wantErr: "title_boost",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "ollama" },
			wantErr: "provider",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Performance.IngestWorkers = 0 },
			wantErr: "ingest_workers",
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	isolateEnv(t)

	cfg := NewConfig()
	cfg.Search.MaxResults = 42
	cfg.Logging.Level = "warn"

	dir := t.TempDir()
	require.NoError(t, cfg.Save(filepath.Join(dir, ".docmind.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.MaxResults)
	assert.Equal(t, "warn", loaded.Logging.Level)
}
