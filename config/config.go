package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EmbedderConfig configures the embedding gateway.
type EmbedderConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig configures the generative model. An empty URL disables the
// generative path entirely: enrichment is skipped and the decision engine
// degrades to undetermined instead of escalating.
type LLMConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PostgresConfig selects the durable pgvector store. An empty host keeps
// everything in memory. Credentials come from the environment, not the file.
type PostgresConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	DBName string `yaml:"db_name"`
}

// PipelineConfig tunes retrieval and decision behavior.
type PipelineConfig struct {
	TopK              int     `yaml:"top_k"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffBaseMillis int     `yaml:"backoff_base_millis"`
	MinRuleConfidence float64 `yaml:"min_rule_confidence"`
	PromptTokenBudget int     `yaml:"prompt_token_budget"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	ServerAddr string         `yaml:"server_addr"`
	Embedder   EmbedderConfig `yaml:"embedder"`
	LLM        LLMConfig      `yaml:"llm"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
}

// Load reads the config from path. A missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// PostgresDSN assembles the connection string from config plus PG_USER and
// PG_PASS environment variables.
func (c *AppConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Postgres.Host, c.Postgres.Port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), c.Postgres.DBName)
}

func (c *EmbedderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c *PipelineConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffBaseMillis) * time.Millisecond
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.Embedder.URL == "" {
		cfg.Embedder.URL = "http://localhost:11434/api/embeddings"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "nomic-embed-text"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 768
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.2"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 5
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if cfg.Pipeline.BackoffBaseMillis == 0 {
		cfg.Pipeline.BackoffBaseMillis = 200
	}
	if cfg.Pipeline.MinRuleConfidence == 0 {
		cfg.Pipeline.MinRuleConfidence = 0.6
	}
	if cfg.Pipeline.PromptTokenBudget == 0 {
		cfg.Pipeline.PromptTokenBudget = 4000
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.ServerAddr = v
	}
	if v := os.Getenv("EMBEDDER_URL"); v != "" {
		cfg.Embedder.URL = v
	}
	if v := os.Getenv("LLM_URL"); v != "" {
		cfg.LLM.URL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("PG_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PG_DB_NAME"); v != "" {
		cfg.Postgres.DBName = v
	}
}
