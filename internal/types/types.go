package types

import (
	"context"
	"errors"

	"github.com/xhad/folio/internal/models"
)

// Failure taxonomy shared by the catalog and reading paths. Callers match
// with errors.Is; concrete errors wrap one of these.
var (
	ErrNetworkFailure = errors.New("network failure")
	ErrDecodeFailure  = errors.New("decode failure")
	ErrNotFound       = errors.New("not found")
)

// Core interfaces
type TextFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// DocumentFetcher returns a resource as UTF-8 text with markup removed.
type DocumentFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// PassageStore keeps the passages of each work. Replace swaps all passages
// of a work at once or leaves them untouched.
type PassageStore interface {
	Replace(ctx context.Context, workID string, passages []models.Passage, embeddings [][]float32) error
	Query(ctx context.Context, workID string, embedding []float32, limit int) ([]models.Passage, error)
}

type Answerer interface {
	Ask(ctx context.Context, question string, passages []models.Passage) (string, error)
}
