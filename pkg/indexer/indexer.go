// Package indexer builds the passage index of a work and answers questions
// from it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/internal/types"
	"github.com/xhad/folio/pkg/fetch"
	"github.com/xhad/folio/pkg/reader"
)

type IndexerConfig struct {
	BatchSize   int // passages embedded per request
	SearchLimit int // passages retrieved per question
	// Documents, when set, loads the text to index with markup removed.
	// Reading always uses the raw text.
	Documents types.DocumentFetcher
	Logger    *slog.Logger
}

// StreamAnswerer is implemented by answerers that can stream their output.
type StreamAnswerer interface {
	AskStream(ctx context.Context, question string, passages []models.Passage, onChunk func(string)) (string, error)
}

var ErrEmptyQuestion = errors.New("empty question")

type Answer struct {
	Text     string
	Passages []models.Passage
}

type Indexer struct {
	config   IndexerConfig
	reader   *reader.Reader
	embedder types.Embedder
	store    types.PassageStore
	answerer types.Answerer
	logger   *slog.Logger
}

func NewWithConfig(r *reader.Reader, embedder types.Embedder, store types.PassageStore, answerer types.Answerer, config IndexerConfig) *Indexer {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}
	if config.Logger == nil {
		config.Logger = logger.Discard()
	}

	return &Indexer{
		config:   config,
		reader:   r,
		embedder: embedder,
		store:    store,
		answerer: answerer,
		logger:   config.Logger.With(slog.String("component", "indexer")),
	}
}

// PassageID is the stable id of page of chapter in workID.
func PassageID(workID string, chapter, page int) string {
	return fmt.Sprintf("%s_%d_%d", workID, chapter, page)
}

// Passages cuts text into one passage per page of every chapter.
func (ix *Indexer) Passages(work models.Work, text string) []models.Passage {
	var passages []models.Passage
	pager := ix.reader.Pager()

	for _, chapter := range ix.reader.Segmenter().Chapters(text, work.Title) {
		for page, content := range pager.Paginate(chapter.Content) {
			if content == "" {
				continue
			}
			passages = append(passages, models.Passage{
				ID:      PassageID(work.ID, chapter.Index, page),
				WorkID:  work.ID,
				Chapter: chapter.Index,
				Page:    page,
				Title:   chapter.Title,
				Content: content,
			})
		}
	}
	return passages
}

// Index replaces the stored passages of work and returns how many were
// written. onProgress, if set, is called after every embedded batch.
func (ix *Indexer) Index(ctx context.Context, work models.Work, onProgress func(done, total int)) (int, error) {
	text, err := ix.text(ctx, work)
	if err != nil {
		return 0, err
	}

	passages := ix.Passages(work, text)
	if len(passages) == 0 {
		return 0, nil
	}

	embeddings := make([][]float32, 0, len(passages))
	for start := 0; start < len(passages); start += ix.config.BatchSize {
		end := min(start+ix.config.BatchSize, len(passages))

		texts := make([]string, 0, end-start)
		for _, p := range passages[start:end] {
			texts = append(texts, p.Content)
		}

		vecs, err := ix.embedder.EmbedPassages(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed passages: %w", err)
		}
		embeddings = append(embeddings, vecs...)

		if onProgress != nil {
			onProgress(end, len(passages))
		}
	}

	if err := ix.store.Replace(ctx, work.ID, passages, embeddings); err != nil {
		return 0, fmt.Errorf("failed to store passages: %w", err)
	}

	ix.logger.InfoContext(ctx, "Indexed work", slog.String("work", work.ID), slog.Int("passages", len(passages)))
	return len(passages), nil
}

func (ix *Indexer) text(ctx context.Context, work models.Work) (string, error) {
	if !fetch.ValidURL(work.TextURL) {
		return "", fmt.Errorf("%w: %s has no text URL", types.ErrNotFound, work.ID)
	}

	if ix.config.Documents != nil {
		text, err := ix.config.Documents.FetchText(ctx, work.TextURL)
		if err != nil {
			return "", fmt.Errorf("failed to load text of %s: %w", work.ID, err)
		}
		return text, nil
	}

	text, msg := ix.reader.Text(ctx, work)
	if msg != "" {
		return "", fmt.Errorf("%w: failed to load text of %s", types.ErrNetworkFailure, work.ID)
	}
	return text, nil
}

// Ask answers question from the passages of work closest to it.
func (ix *Indexer) Ask(ctx context.Context, work models.Work, question string) (Answer, error) {
	return ix.ask(ctx, work, question, nil)
}

// AskStream is Ask with the answer streamed to onChunk when the answerer
// supports it. Otherwise onChunk receives the whole answer once.
func (ix *Indexer) AskStream(ctx context.Context, work models.Work, question string, onChunk func(string)) (Answer, error) {
	return ix.ask(ctx, work, question, onChunk)
}

func (ix *Indexer) ask(ctx context.Context, work models.Work, question string, onChunk func(string)) (Answer, error) {
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	vec, err := ix.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to embed question: %w", err)
	}

	passages, err := ix.store.Query(ctx, work.ID, vec, ix.config.SearchLimit)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to query passages: %w", err)
	}
	if len(passages) == 0 {
		return Answer{}, fmt.Errorf("%w: %s is not indexed", types.ErrNotFound, work.ID)
	}

	var text string
	if streamer, ok := ix.answerer.(StreamAnswerer); ok && onChunk != nil {
		text, err = streamer.AskStream(ctx, question, passages, onChunk)
	} else {
		text, err = ix.answerer.Ask(ctx, question, passages)
		if err == nil && onChunk != nil {
			onChunk(text)
		}
	}
	if err != nil {
		return Answer{}, fmt.Errorf("failed to answer: %w", err)
	}

	return Answer{Text: text, Passages: passages}, nil
}
