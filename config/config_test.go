package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, 768, cfg.Embedder.Dimension)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 0.6, cfg.Pipeline.MinRuleConfidence)
	assert.Empty(t, cfg.LLM.URL)
	assert.Empty(t, cfg.Postgres.Host)
}

func TestLoadFileValuesOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server_addr: ":9090"
embedder:
  model: mxbai-embed-large
  dimension: 1024
pipeline:
  top_k: 10
  min_rule_confidence: 0.75
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedder.Model)
	assert.Equal(t, 1024, cfg.Embedder.Dimension)
	assert.Equal(t, 10, cfg.Pipeline.TopK)
	assert.Equal(t, 0.75, cfg.Pipeline.MinRuleConfidence)
	// Untouched sections still get defaults.
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, "http://localhost:11434/api/embeddings", cfg.Embedder.URL)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`server_addr: ":9090"`), 0o644))
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("LLM_URL", "http://model-host:11434/api/generate")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerAddr)
	assert.Equal(t, "http://model-host:11434/api/generate", cfg.LLM.URL)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: [unclosed"), 0o644))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("PG_USER", "rag")
	t.Setenv("PG_PASS", "secret")

	cfg := &AppConfig{Postgres: PostgresConfig{Host: "db", Port: 5433, DBName: "policies"}}

	assert.Equal(t,
		"host=db port=5433 user=rag password=secret dbname=policies sslmode=disable",
		cfg.PostgresDSN())
}
