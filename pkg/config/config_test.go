package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"CATALOG_BASE_URL", "OLLAMA_BASE_URL", "DATABASE_URL", "BIND_ADDR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "folio.yaml")

	configData := `
catalog:
  base_url: "http://catalog.local"
  source_prefix: "pg"
  timeout: 5s
  rate_limit: 1.5

search:
  ordering: last_completion

reader:
  marker: "Chapter"
  page_size: 500

llm:
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 1000
  temperature: 0.5

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_passages"
  vector_dim: 384

log:
  level: debug
  format: json
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://catalog.local", config.Catalog.BaseURL)
	assert.Equal(t, "pg", config.Catalog.SourcePrefix)
	assert.Equal(t, 5*time.Second, config.Catalog.Timeout)
	assert.Equal(t, 1.5, config.Catalog.RateLimit)
	assert.Equal(t, "last_completion", config.Search.Ordering)
	assert.Equal(t, "Chapter", config.Reader.Marker)
	assert.Equal(t, 500, config.Reader.PageSize)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, 384, config.Database.VectorDim)
	assert.Equal(t, "json", config.Log.Format)

	// defaults fill what the file leaves out
	assert.Equal(t, 30*time.Second, config.Reader.Timeout)
	assert.Equal(t, "nomic-embed-text:latest", config.LLM.EmbedModel)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("catalog: [unterminated"), 0644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://gutendex.com", config.Catalog.BaseURL)
	assert.Equal(t, "gutenberg", config.Catalog.SourcePrefix)
	assert.Equal(t, "latest", config.Search.Ordering)
	assert.Equal(t, "CHAPTER", config.Reader.Marker)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "invalid catalog",
			mutate: func(c *Config) {
				c.Catalog.BaseURL = "gutendex.com"
				c.Catalog.SourcePrefix = "project-gutenberg"
				c.Catalog.RateLimit = -1
			},
			errorMessages: []string{
				"catalog.base_url: catalog base URL must be an absolute http(s) URL",
				"catalog.source_prefix: source_prefix must be non-empty",
				"catalog.rate_limit: rate_limit must be positive",
			},
		},
		{
			name: "invalid reader and search",
			mutate: func(c *Config) {
				c.Search.Ordering = "random"
				c.Reader.Marker = ""
				c.Reader.PageSize = 0
			},
			errorMessages: []string{
				"search.ordering: unknown ordering",
				"reader.marker: marker must not be empty",
				"reader.page_size: page_size must be positive",
			},
		},
		{
			name: "invalid llm database and log",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
				c.Database.URL = "invalid-url"
				c.Database.VectorDim = -1
				c.Log.Level = "verbose"
				c.Log.Format = "xml"
			},
			errorMessages: []string{
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 1",
				"database.url: invalid database URL",
				"database.vector_dim: vector_dim must be positive",
				"log.level: level must be one of",
				"log.format: format must be text or json",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			applyDefaults(config)
			tt.mutate(config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CATALOG_BASE_URL", "http://env-catalog:8000")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("BIND_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-catalog:8000", config.Catalog.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Equal(t, "warn", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
}
