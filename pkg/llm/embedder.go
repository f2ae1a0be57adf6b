package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/types"
)

type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	BatchSize int
	Dimension int // expected vector length, 0 disables the check
	Logger    *slog.Logger
}

// Embedder turns passages and questions into vectors.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func (c *EmbedderConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config.applyDefaults()

	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	return NewEmbedderWithClient(client, config)
}

// NewEmbedderWithClient builds an Embedder over any embedding backend.
func NewEmbedderWithClient(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	config.applyDefaults()

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
		logger:   config.Logger.With(slog.String("component", "embedder")),
	}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", types.ErrNetworkFailure, err)
	}
	if err := e.checkDimension(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding passages: %v", types.ErrNetworkFailure, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d passages", types.ErrDecodeFailure, len(vecs), len(texts))
	}
	for _, vec := range vecs {
		if err := e.checkDimension(vec); err != nil {
			return nil, err
		}
	}

	e.logger.DebugContext(ctx, "Embedded passages", slog.Int("count", len(texts)))
	return vecs, nil
}

func (e *Embedder) checkDimension(vec []float32) error {
	if e.config.Dimension > 0 && len(vec) != e.config.Dimension {
		return fmt.Errorf("%w: embedding has %d dimensions, expected %d", types.ErrDecodeFailure, len(vec), e.config.Dimension)
	}
	return nil
}
