// Package reader turns a work's plain-text resource into chapters and pages.
//
// Every read fetches and segments the text again; nothing is cached.
package reader

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/internal/types"
	"github.com/xhad/folio/pkg/fetch"
)

// Fixed messages returned in place of chapter text.
const (
	MsgNoValidURL  = "Error: No valid URL found."
	MsgLoadFailure = "Failed to load content."
)

type ReaderConfig struct {
	Marker   string
	PageSize int
	Logger   *slog.Logger
}

type Reader struct {
	fetcher   types.TextFetcher
	segmenter Segmenter
	pager     Pager
	logger    *slog.Logger
}

func NewWithConfig(fetcher types.TextFetcher, config ReaderConfig) *Reader {
	if config.Logger == nil {
		config.Logger = logger.Discard()
	}

	return &Reader{
		fetcher:   fetcher,
		segmenter: NewSegmenter(config.Marker),
		pager:     NewPager(PagerConfig{PageSize: config.PageSize}),
		logger:    config.Logger.With(slog.String("component", "reader")),
	}
}

func (r *Reader) Segmenter() Segmenter { return r.segmenter }
func (r *Reader) Pager() Pager         { return r.pager }

// FetchChapter returns the display text of chapter chapterIndex of work. It
// never fails: a missing URL or an unusable download resolve to MsgNoValidURL
// or MsgLoadFailure.
func (r *Reader) FetchChapter(ctx context.Context, work models.Work, chapterIndex int) string {
	text, msg := r.load(ctx, work)
	if msg != "" {
		return msg
	}
	return r.segmenter.Select(text, chapterIndex)
}

// FetchPage is FetchChapter followed by pagination. It returns the clamped
// page and the chapter's page count; error messages count as one page.
func (r *Reader) FetchPage(ctx context.Context, work models.Work, chapterIndex, page int) (string, int) {
	chapter := r.FetchChapter(ctx, work, chapterIndex)
	if chapter == MsgNoValidURL || chapter == MsgLoadFailure {
		return chapter, 1
	}
	return r.pager.Page(chapter, page)
}

// Chapters returns the table of contents of work. When the text cannot be
// loaded the chapters are nil and the message is set.
func (r *Reader) Chapters(ctx context.Context, work models.Work) ([]models.Chapter, string) {
	text, msg := r.load(ctx, work)
	if msg != "" {
		return nil, msg
	}
	return r.segmenter.Chapters(text, work.Title), ""
}

// Text returns the whole decoded text of work, or one of the fixed messages.
func (r *Reader) Text(ctx context.Context, work models.Work) (string, string) {
	return r.load(ctx, work)
}

func (r *Reader) load(ctx context.Context, work models.Work) (string, string) {
	if !fetch.ValidURL(work.TextURL) {
		r.logger.WarnContext(ctx, "Work has no usable text URL", slog.String("work", work.ID))
		return "", MsgNoValidURL
	}

	body, err := r.fetcher.Fetch(ctx, work.TextURL)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch text", slog.String("work", work.ID), slog.String("error", err.Error()))
		return "", MsgLoadFailure
	}

	if len(body) == 0 || !utf8.Valid(body) {
		r.logger.ErrorContext(ctx, "Text is empty or not UTF-8", slog.String("work", work.ID), slog.Int("bytes", len(body)))
		return "", MsgLoadFailure
	}

	return string(body), ""
}
