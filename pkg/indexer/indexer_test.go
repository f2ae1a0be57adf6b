package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/internal/types"
	"github.com/xhad/folio/pkg/reader"
)

type fetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

func (m *mockEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	vecs, _ := args.Get(0).([][]float32)
	return vecs, args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Replace(ctx context.Context, workID string, passages []models.Passage, embeddings [][]float32) error {
	return m.Called(ctx, workID, passages, embeddings).Error(0)
}

func (m *mockStore) Query(ctx context.Context, workID string, embedding []float32, limit int) ([]models.Passage, error) {
	args := m.Called(ctx, workID, embedding, limit)
	passages, _ := args.Get(0).([]models.Passage)
	return passages, args.Error(1)
}

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) Ask(ctx context.Context, question string, passages []models.Passage) (string, error) {
	args := m.Called(ctx, question, passages)
	return args.String(0), args.Error(1)
}

type streamingAnswerer struct {
	mockAnswerer
}

func (s *streamingAnswerer) AskStream(ctx context.Context, question string, passages []models.Passage, onChunk func(string)) (string, error) {
	onChunk("Ish")
	onChunk("mael")
	return "Ishmael", nil
}

const bookText = "Front CHAPTER I.\nOne two. Three four. CHAPTER II.\nFive six."

var work = models.Work{ID: "gutenberg-2701", Title: "Moby Dick", TextURL: "https://example.com/2701.txt"}

func newTestReader(text string, err error) *reader.Reader {
	return reader.NewWithConfig(fetcherFunc(func(context.Context, string) ([]byte, error) {
		return []byte(text), err
	}), reader.ReaderConfig{PageSize: 20})
}

func vectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out
}

func TestPassages(t *testing.T) {
	ix := NewWithConfig(newTestReader(bookText, nil), nil, nil, nil, IndexerConfig{})

	passages := ix.Passages(work, bookText)
	require.Len(t, passages, 4)

	assert.Equal(t, "gutenberg-2701_0_0", passages[0].ID)
	assert.Equal(t, "CHAPTER I.\nOne two. ", passages[0].Content)
	assert.Equal(t, "CHAPTER I.", passages[0].Title)
	assert.Equal(t, "gutenberg-2701_0_1", passages[1].ID)
	assert.Equal(t, "Three four. ", passages[1].Content)
	assert.Equal(t, "gutenberg-2701_1_1", passages[3].ID)
	assert.Equal(t, "CHAPTER II.", passages[3].Title)
	for _, p := range passages {
		assert.Equal(t, work.ID, p.WorkID)
	}
}

func TestIndex(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockStore{}

	embedder.On("EmbedPassages", mock.Anything, mock.MatchedBy(func(texts []string) bool { return len(texts) == 3 })).
		Return(vectors(3), nil).Once()
	embedder.On("EmbedPassages", mock.Anything, []string{"Five six."}).
		Return(vectors(1), nil).Once()
	store.On("Replace", mock.Anything, work.ID, mock.MatchedBy(func(p []models.Passage) bool { return len(p) == 4 }),
		mock.MatchedBy(func(e [][]float32) bool { return len(e) == 4 })).Return(nil).Once()

	ix := NewWithConfig(newTestReader(bookText, nil), embedder, store, nil, IndexerConfig{BatchSize: 3})

	var progress [][2]int
	n, err := ix.Index(context.Background(), work, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, [][2]int{{3, 4}, {4, 4}}, progress)

	embedder.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIndexFailures(t *testing.T) {
	t.Run("no text url", func(t *testing.T) {
		ix := NewWithConfig(newTestReader(bookText, nil), &mockEmbedder{}, &mockStore{}, nil, IndexerConfig{})
		_, err := ix.Index(context.Background(), models.Work{ID: "x"}, nil)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("fetch failure", func(t *testing.T) {
		ix := NewWithConfig(newTestReader("", types.ErrNetworkFailure), &mockEmbedder{}, &mockStore{}, nil, IndexerConfig{})
		_, err := ix.Index(context.Background(), work, nil)
		assert.ErrorIs(t, err, types.ErrNetworkFailure)
	})

	t.Run("embedding failure keeps old passages", func(t *testing.T) {
		embedder := &mockEmbedder{}
		store := &mockStore{}
		embedder.On("EmbedPassages", mock.Anything, mock.Anything).Return(nil, types.ErrNetworkFailure)

		ix := NewWithConfig(newTestReader(bookText, nil), embedder, store, nil, IndexerConfig{})
		_, err := ix.Index(context.Background(), work, nil)
		assert.ErrorIs(t, err, types.ErrNetworkFailure)
		store.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

// memoryStore replaces passages only when a write succeeds.
type memoryStore struct {
	passages map[string][]models.Passage
	err      error
}

func (m *memoryStore) Replace(_ context.Context, workID string, passages []models.Passage, _ [][]float32) error {
	if m.err != nil {
		return m.err
	}
	m.passages[workID] = passages
	return nil
}

func (m *memoryStore) Query(_ context.Context, workID string, _ []float32, limit int) ([]models.Passage, error) {
	passages := m.passages[workID]
	return passages[:min(limit, len(passages))], nil
}

func TestFailedReindexKeepsPassages(t *testing.T) {
	old := models.Passage{ID: "gutenberg-2701_0_0", WorkID: work.ID, Content: "Call me Ishmael."}
	store := &memoryStore{
		passages: map[string][]models.Passage{work.ID: {old}},
		err:      errors.New("insert failed"),
	}

	embedder := &mockEmbedder{}
	embedder.On("EmbedPassages", mock.Anything, mock.Anything).Return(vectors(4), nil)
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1, 0}, nil)

	answerer := &mockAnswerer{}
	answerer.On("Ask", mock.Anything, "Who?", []models.Passage{old}).Return("Ishmael", nil)

	ix := NewWithConfig(newTestReader(bookText, nil), embedder, store, answerer, IndexerConfig{})

	_, err := ix.Index(context.Background(), work, nil)
	require.Error(t, err)

	answer, err := ix.Ask(context.Background(), work, "Who?")
	require.NoError(t, err)
	assert.Equal(t, "Ishmael", answer.Text)
	assert.Equal(t, []models.Passage{old}, answer.Passages)
}

type documentFunc func(ctx context.Context, rawURL string) (string, error)

func (f documentFunc) FetchText(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

func TestIndexWithDocuments(t *testing.T) {
	store := &memoryStore{passages: map[string][]models.Passage{}}
	embedder := &mockEmbedder{}
	embedder.On("EmbedPassages", mock.Anything, mock.Anything).Return(vectors(1), nil)

	documents := documentFunc(func(_ context.Context, rawURL string) (string, error) {
		assert.Equal(t, work.TextURL, rawURL)
		return "CHAPTER I.\nShort.", nil
	})
	ix := NewWithConfig(newTestReader("<p>raw</p>", nil), embedder, store, nil, IndexerConfig{Documents: documents})

	n, err := ix.Index(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "CHAPTER I.\nShort.", store.passages[work.ID][0].Content)

	failing := documentFunc(func(context.Context, string) (string, error) {
		return "", types.ErrDecodeFailure
	})
	ix = NewWithConfig(newTestReader(bookText, nil), embedder, store, nil, IndexerConfig{Documents: failing})
	_, err = ix.Index(context.Background(), work, nil)
	assert.ErrorIs(t, err, types.ErrDecodeFailure)
}

func TestAsk(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockStore{}
	answerer := &mockAnswerer{}
	hits := []models.Passage{{ID: "gutenberg-2701_0_0", Title: "CHAPTER I.", Content: "Call me Ishmael."}}

	embedder.On("EmbedQuery", mock.Anything, "Who narrates?").Return([]float32{1, 0}, nil)
	store.On("Query", mock.Anything, work.ID, []float32{1, 0}, 3).Return(hits, nil)
	answerer.On("Ask", mock.Anything, "Who narrates?", hits).Return("Ishmael", nil)

	ix := NewWithConfig(newTestReader(bookText, nil), embedder, store, answerer, IndexerConfig{SearchLimit: 3})

	answer, err := ix.Ask(context.Background(), work, "Who narrates?")
	require.NoError(t, err)
	assert.Equal(t, "Ishmael", answer.Text)
	assert.Equal(t, hits, answer.Passages)

	var chunks []string
	answer, err = ix.AskStream(context.Background(), work, "Who narrates?", func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Ishmael"}, chunks)
	assert.Equal(t, "Ishmael", answer.Text)
}

func TestAskStream(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockStore{}
	hits := []models.Passage{{ID: "gutenberg-2701_0_0"}}

	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	store.On("Query", mock.Anything, work.ID, mock.Anything, mock.Anything).Return(hits, nil)

	ix := NewWithConfig(newTestReader(bookText, nil), embedder, store, &streamingAnswerer{}, IndexerConfig{})

	var chunks []string
	answer, err := ix.AskStream(context.Background(), work, "Who?", func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Ish", "mael"}, chunks)
	assert.Equal(t, "Ishmael", answer.Text)
}

func TestAskFailures(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockStore{}
	answerer := &mockAnswerer{}

	embedder.On("EmbedQuery", mock.Anything, "unindexed").Return([]float32{1}, nil)
	embedder.On("EmbedQuery", mock.Anything, "offline").Return(nil, types.ErrNetworkFailure)
	store.On("Query", mock.Anything, work.ID, mock.Anything, mock.Anything).Return([]models.Passage{}, nil)

	ix := NewWithConfig(newTestReader(bookText, nil), embedder, store, answerer, IndexerConfig{})

	_, err := ix.Ask(context.Background(), work, "")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = ix.Ask(context.Background(), work, "unindexed")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = ix.Ask(context.Background(), work, "offline")
	assert.ErrorIs(t, err, types.ErrNetworkFailure)

	answerer.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, errors.Is(err, types.ErrNotFound))
}
