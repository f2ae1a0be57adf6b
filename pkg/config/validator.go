package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Catalog config
	if !isHTTPURL(c.Catalog.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "catalog.base_url",
			Message: "catalog base URL must be an absolute http(s) URL",
		})
	}

	if c.Catalog.SourcePrefix == "" || strings.Contains(c.Catalog.SourcePrefix, "-") {
		errors = append(errors, ValidationError{
			Field:   "catalog.source_prefix",
			Message: "source_prefix must be non-empty and must not contain '-'",
		})
	}

	if c.Catalog.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "catalog.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Catalog.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "catalog.timeout",
			Message: "timeout must not be negative",
		})
	}

	// Validate Search config
	switch c.Search.Ordering {
	case "latest", "last_completion":
	default:
		errors = append(errors, ValidationError{
			Field:   "search.ordering",
			Message: fmt.Sprintf("unknown ordering %q, expected latest or last_completion", c.Search.Ordering),
		})
	}

	// Validate Reader config
	if c.Reader.Marker == "" {
		errors = append(errors, ValidationError{
			Field:   "reader.marker",
			Message: "marker must not be empty",
		})
	}

	if c.Reader.PageSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "reader.page_size",
			Message: "page_size must be positive",
		})
	}

	if c.Reader.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "reader.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate LLM config
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Log config
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: "level must be one of debug, info, warn or error",
		})
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: "format must be text or json",
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
