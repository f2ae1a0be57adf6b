package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/models"
)

type PassageStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
	Logger      *slog.Logger
}

// PassageStore keeps embedded book passages in Postgres with pgvector.
type PassageStore struct {
	config PassageStoreConfig
	pool   *pgxpool.Pool
	g      goqu.DialectWrapper
	logger *slog.Logger
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func (c *PassageStoreConfig) applyDefaults() error {
	if c.TableName == "" {
		c.TableName = "passages"
	}
	if !identifier.MatchString(c.TableName) {
		return fmt.Errorf("invalid table name %q", c.TableName)
	}
	if c.VectorDim == 0 {
		c.VectorDim = 768 // nomic-embed-text
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = 5
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
	return nil
}

// NewWithConfig connects to the database and creates the schema if needed.
func NewWithConfig(ctx context.Context, config PassageStoreConfig) (*PassageStore, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.ConnConfig.Tracer = logger.NewPGXTracer(config.Logger)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ps := newPassageStore(pool, config)

	if err := ps.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return ps, nil
}

func newPassageStore(pool *pgxpool.Pool, config PassageStoreConfig) *PassageStore {
	return &PassageStore{
		config: config,
		pool:   pool,
		g:      goqu.Dialect("postgres"),
		logger: config.Logger.With(slog.String("component", "store")),
	}
}

func (ps *PassageStore) schema() []string {
	t := ps.config.TableName
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			work_id TEXT NOT NULL,
			chapter INTEGER NOT NULL,
			page INTEGER NOT NULL,
			title TEXT,
			content TEXT,
			embedding vector(%d)
		)`, t, ps.config.VectorDim),
		// Queries stay within one work and sort exactly; no ANN index.
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_work_idx ON %s (work_id)`, t, t),
		fmt.Sprintf(`DROP INDEX IF EXISTS %s_embedding_idx`, t),
	}
}

// Init enables pgvector and creates the passage table and its indexes.
func (ps *PassageStore) Init(ctx context.Context) error {
	for _, stmt := range ps.schema() {
		if _, err := ps.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (ps *PassageStore) insertSQL(passages []models.Passage, embeddings [][]float32) (string, []any, error) {
	rows := make([]any, 0, len(passages))
	for i, p := range passages {
		rows = append(rows, goqu.Record{
			"id":        p.ID,
			"work_id":   p.WorkID,
			"chapter":   p.Chapter,
			"page":      p.Page,
			"title":     sanitizeText(p.Title),
			"content":   sanitizeText(p.Content),
			"embedding": pgvector.NewVector(embeddings[i]),
		})
	}

	return ps.g.Insert(ps.config.TableName).
		Prepared(true).
		Rows(rows...).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"title":     goqu.L("excluded.title"),
			"content":   goqu.L("excluded.content"),
			"embedding": goqu.L("excluded.embedding"),
		})).
		ToSQL()
}

// Store upserts passages with their embeddings in batches inside a single
// transaction.
func (ps *PassageStore) Store(ctx context.Context, passages []models.Passage, embeddings [][]float32) error {
	return ps.write(ctx, "", passages, embeddings)
}

// Replace deletes the passages of workID and stores passages in their place
// within one transaction. On error the previous passages remain.
func (ps *PassageStore) Replace(ctx context.Context, workID string, passages []models.Passage, embeddings [][]float32) error {
	if workID == "" {
		return fmt.Errorf("replace needs a work id")
	}
	return ps.write(ctx, workID, passages, embeddings)
}

// write runs the optional delete of replaceWork and the batched inserts in
// a single transaction.
func (ps *PassageStore) write(ctx context.Context, replaceWork string, passages []models.Passage, embeddings [][]float32) error {
	if len(passages) != len(embeddings) {
		return fmt.Errorf("got %d embeddings for %d passages", len(embeddings), len(passages))
	}
	if len(passages) == 0 && replaceWork == "" {
		return nil
	}

	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if replaceWork != "" {
		sql, params, err := ps.deleteSQL(replaceWork)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, params...); err != nil {
			return fmt.Errorf("failed to delete passages: %w", err)
		}
	}

	for start := 0; start < len(passages); start += ps.config.BatchSize {
		end := min(start+ps.config.BatchSize, len(passages))

		sql, params, err := ps.insertSQL(passages[start:end], embeddings[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, params...); err != nil {
			return fmt.Errorf("failed to insert passages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	ps.logger.DebugContext(ctx, "Stored passages", slog.String("replaced", replaceWork), slog.Int("count", len(passages)))
	return nil
}

func (ps *PassageStore) querySQL(workID string, embedding []float32, limit int) (string, []any, error) {
	vec := pgvector.NewVector(embedding)

	return ps.g.From(ps.config.TableName).
		Prepared(true).
		Select("id", "work_id", "chapter", "page", "title", "content",
			goqu.L("1 - (embedding <=> ?::vector)", vec).As("score")).
		Where(goqu.C("work_id").Eq(workID)).
		Order(goqu.L("embedding <=> ?::vector", vec).Asc()).
		Limit(uint(limit)).
		ToSQL()
}

// Query returns the passages of workID closest to embedding, best first.
func (ps *PassageStore) Query(ctx context.Context, workID string, embedding []float32, limit int) ([]models.Passage, error) {
	if limit <= 0 {
		limit = ps.config.SearchLimit
	}

	sql, params, err := ps.querySQL(workID, embedding, limit)
	if err != nil {
		return nil, err
	}

	var passages []models.Passage
	if err := pgxscan.Select(ctx, ps.pool, &passages, sql, params...); err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}

	return passages, nil
}

func (ps *PassageStore) deleteSQL(workID string) (string, []any, error) {
	return ps.g.Delete(ps.config.TableName).
		Prepared(true).
		Where(goqu.C("work_id").Eq(workID)).
		ToSQL()
}

// DeleteWork drops every passage of workID.
func (ps *PassageStore) DeleteWork(ctx context.Context, workID string) error {
	sql, params, err := ps.deleteSQL(workID)
	if err != nil {
		return err
	}

	tag, err := ps.pool.Exec(ctx, sql, params...)
	if err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}

	ps.logger.DebugContext(ctx, "Deleted passages", slog.String("work", workID), slog.Int64("count", tag.RowsAffected()))
	return nil
}

func (ps *PassageStore) Close() {
	if ps.pool != nil {
		ps.pool.Close()
	}
}

// sanitizeText drops invalid UTF-8 and NUL bytes, which Postgres rejects in
// TEXT columns.
func sanitizeText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}
