package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/internal/types"
	"github.com/xhad/folio/pkg/catalog"
	"github.com/xhad/folio/pkg/reader"
)

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, query string) catalog.Result {
	switch {
	case !catalog.Encodable(query):
		return catalog.Result{Skipped: true}
	case query == "offline":
		return catalog.Result{Works: []models.Work{}, Err: types.ErrNetworkFailure}
	case query == "nothing":
		return catalog.Result{Works: []models.Work{}}
	}
	return catalog.Result{Works: []models.Work{
		{ID: "gutenberg-84", Title: "Frankenstein", Author: "Mary Wollstonecraft Shelley", Summary: "A Project Gutenberg classic, downloaded 10 times.", Tags: []string{"Horror tales"}, TextURL: "https://example.com/84.txt"},
		{ID: "gutenberg-42", Title: "No Text", Author: "Unknown", TextURL: "not a url"},
	}}
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return []byte("Letter 1 CHAPTER 1\nI am by birth a Genevese. My family was old. CHAPTER 2\nNo one can conceive."), nil
}

func newTestApp(out *bytes.Buffer) *app {
	color.NoColor = true
	r := reader.NewWithConfig(stubFetcher{}, reader.ReaderConfig{PageSize: 40})
	return newApp(strings.NewReader(""), out, stubSearcher{}, r, nil, catalog.OrderLatestWins)
}

func TestAppReadingFlow(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	ctx := context.Background()

	assert.False(t, a.exec(ctx, "search frankenstein"))
	assert.Contains(t, out.String(), "1. Frankenstein by Mary Wollstonecraft Shelley")

	out.Reset()
	a.exec(ctx, "open 1")
	assert.Contains(t, out.String(), "Tags: Horror tales")
	assert.Contains(t, out.String(), "2 chapters")

	out.Reset()
	a.exec(ctx, "toc")
	assert.Contains(t, out.String(), "1. CHAPTER 1")
	assert.Contains(t, out.String(), "2. CHAPTER 2")

	out.Reset()
	a.exec(ctx, "read 1")
	assert.Contains(t, out.String(), "Chapter 1, page 1/2")
	assert.Contains(t, out.String(), "CHAPTER 1\nI am by birth a Genevese. ")

	out.Reset()
	a.exec(ctx, "next")
	assert.Contains(t, out.String(), "Chapter 1, page 2/2")
	assert.Contains(t, out.String(), "My family was old.")

	out.Reset()
	a.exec(ctx, "next")
	assert.Contains(t, out.String(), "Chapter 2, page 1/1")

	out.Reset()
	a.exec(ctx, "next")
	assert.Contains(t, out.String(), "End of book")

	out.Reset()
	a.exec(ctx, "prev")
	assert.Contains(t, out.String(), "Chapter 1, page 2/2")

	out.Reset()
	a.exec(ctx, "page 9")
	assert.Contains(t, out.String(), "Chapter 1, page 2/2")

	assert.True(t, a.exec(ctx, "exit"))
}

func TestAppSearchOutcomes(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	ctx := context.Background()

	a.exec(ctx, "search   ")
	assert.Contains(t, out.String(), "Nothing to search for")

	out.Reset()
	a.exec(ctx, "search offline")
	assert.Contains(t, out.String(), "Search failed")

	out.Reset()
	a.exec(ctx, "search nothing")
	assert.Contains(t, out.String(), "No books found")
}

func TestAppErrors(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	ctx := context.Background()

	a.exec(ctx, "read 1")
	assert.Contains(t, out.String(), "No book open")

	out.Reset()
	a.exec(ctx, "open 1")
	assert.Contains(t, out.String(), "No result 1")

	out.Reset()
	a.exec(ctx, "open x")
	assert.Contains(t, out.String(), `got "x"`)

	out.Reset()
	a.exec(ctx, "search any")
	a.exec(ctx, "open 2")
	assert.Contains(t, out.String(), reader.MsgNoValidURL)

	out.Reset()
	a.exec(ctx, "ask who?")
	assert.Contains(t, out.String(), "Passage index is not configured")

	out.Reset()
	a.exec(ctx, "dance")
	assert.Contains(t, out.String(), `Unknown command "dance"`)
}

func TestAppLoop(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	a.in = strings.NewReader("help\nsearch frankenstein\nexit\nsearch never\n")

	a.loop(context.Background())
	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "Frankenstein")
	assert.NotContains(t, out.String(), "never")
}
