package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Catalog struct {
		BaseURL      string        `yaml:"base_url"`
		SourcePrefix string        `yaml:"source_prefix"`
		UserAgent    string        `yaml:"user_agent"`
		Timeout      time.Duration `yaml:"timeout"`
		RateLimit    float64       `yaml:"rate_limit"`
	} `yaml:"catalog"`

	Search struct {
		Ordering string `yaml:"ordering"`
	} `yaml:"search"`

	Reader struct {
		Marker    string        `yaml:"marker"`
		PageSize  int           `yaml:"page_size"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"`
	} `yaml:"reader"`

	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Server struct {
		Addr      string `yaml:"addr"`
		DebugMode bool   `yaml:"debug_mode"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"folio.yaml",
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/folio/config.yaml"),
			"/etc/folio/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Catalog.BaseURL == "" {
		config.Catalog.BaseURL = "https://gutendex.com"
	}
	if config.Catalog.SourcePrefix == "" {
		config.Catalog.SourcePrefix = "gutenberg"
	}
	if config.Catalog.UserAgent == "" {
		config.Catalog.UserAgent = "folio/1.0"
	}
	if config.Catalog.Timeout == 0 {
		config.Catalog.Timeout = 15 * time.Second
	}
	if config.Catalog.RateLimit == 0 {
		config.Catalog.RateLimit = 2.0
	}

	if config.Search.Ordering == "" {
		config.Search.Ordering = "latest"
	}

	if config.Reader.Marker == "" {
		config.Reader.Marker = "CHAPTER"
	}
	if config.Reader.PageSize == 0 {
		config.Reader.PageSize = 2000
	}
	if config.Reader.Timeout == 0 {
		config.Reader.Timeout = 30 * time.Second
	}
	if config.Reader.RateLimit == 0 {
		config.Reader.RateLimit = 2.0
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "passages"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 50
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("CATALOG_BASE_URL"); baseURL != "" {
		config.Catalog.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if addr := os.Getenv("BIND_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		config.Log.Level = lvl
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}
}
