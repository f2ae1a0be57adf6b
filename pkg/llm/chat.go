package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string // formatted with the passages and the question
	BaseURL         string // Ollama server URL
	Logger          *slog.Logger
}

// ChatEngine answers questions about a book from retrieved passages.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	logger *slog.Logger
}

func (c *ChatConfig) validate() error {
	if c.Model == "" {
		c.Model = "mistral" // Default Ollama model
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	} else if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.SystemTemplate == "" {
		c.SystemTemplate = "You are a literary assistant. Answer questions about the book using only the passages provided. Say so when the passages do not contain the answer."
	}
	if c.ContextTemplate == "" {
		c.ContextTemplate = "Passages:\n%s\nQuestion: %s"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
	return nil
}

// NewWithConfig creates a ChatEngine backed by an Ollama server.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, llm)
}

// NewWithModel creates a ChatEngine over an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		logger: config.Logger.With(slog.String("component", "chat")),
	}, nil
}

// Ask generates an answer to question grounded on passages.
func (ce *ChatEngine) Ask(ctx context.Context, question string, passages []models.Passage) (string, error) {
	return ce.generate(ctx, question, passages)
}

// AskStream is Ask with every generated chunk handed to onChunk as it
// arrives. The full answer is still returned.
func (ce *ChatEngine) AskStream(ctx context.Context, question string, passages []models.Passage, onChunk func(string)) (string, error) {
	stream := llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if onChunk != nil {
			onChunk(string(chunk))
		}
		return nil
	})
	return ce.generate(ctx, question, passages, stream)
}

func (ce *ChatEngine) generate(ctx context.Context, question string, passages []models.Passage, extra ...llms.CallOption) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, ce.prompt(question, passages)),
	}

	options := append([]llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}, extra...)

	response, err := ce.llm.GenerateContent(ctx, content, options...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	ce.logger.DebugContext(ctx, "Generated answer",
		slog.Int("passages", len(passages)),
		slog.Int("chars", len(response.Choices[0].Content)))

	return response.Choices[0].Content, nil
}

func (ce *ChatEngine) prompt(question string, passages []models.Passage) string {
	var contextBuilder strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&contextBuilder, "[%s, page %d]\n%s\n\n", p.Title, p.Page+1, p.Content)
	}
	return fmt.Sprintf(ce.config.ContextTemplate, contextBuilder.String(), question)
}

// Sources formats the chapters passages were drawn from for citation.
func Sources(passages []models.Passage) string {
	var sources []string
	seen := make(map[string]bool)

	for _, p := range passages {
		if p.Title == "" || seen[p.Title] {
			continue
		}
		sources = append(sources, p.Title)
		seen[p.Title] = true
	}

	if len(sources) == 0 {
		return ""
	}

	return fmt.Sprintf("\nSources:\n%s", strings.Join(sources, "\n"))
}
