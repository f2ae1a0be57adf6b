package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/pkg/catalog"
	"github.com/xhad/folio/pkg/indexer"
	"github.com/xhad/folio/pkg/llm"
	"github.com/xhad/folio/pkg/reader"
)

const helpText = `Commands:
  search <query>   search the catalog
  open <n>         open result n
  toc              list the chapters of the open book
  read <n>         read chapter n
  next, prev       turn the page
  page <n>         jump to page n of the current chapter
  index            index the open book for questions
  ask <question>   ask about the open book
  exit             quit`

// app is the interactive reader. It keeps the reading position; text is
// fetched again for every page shown.
type app struct {
	in      io.Reader
	out     io.Writer
	session *catalog.Session
	reader  *reader.Reader
	indexer *indexer.Indexer

	work     *models.Work
	chapters int
	chapter  int
	page     int
	pages    int

	spinners bool

	info    *color.Color
	warn    *color.Color
	prompt  *color.Color
	heading *color.Color
}

func newApp(in io.Reader, out io.Writer, searcher catalog.Searcher, r *reader.Reader, ix *indexer.Indexer, ordering catalog.Ordering) *app {
	return &app{
		in:      in,
		out:     out,
		session: catalog.NewSession(searcher, catalog.SessionConfig{Ordering: ordering}),
		reader:  r,
		indexer: ix,
		info:    color.New(color.FgCyan),
		warn:    color.New(color.FgRed),
		prompt:  color.New(color.FgGreen),
		heading: color.New(color.FgYellow, color.Bold),
	}
}

func (a *app) loop(ctx context.Context) {
	a.info.Fprintln(a.out, "\nFolio: search Project Gutenberg and read in the terminal (type 'help' for commands)")

	scanner := bufio.NewScanner(a.in)
	for {
		a.prompt.Fprint(a.out, "\n> ")
		if !scanner.Scan() {
			return
		}
		if a.exec(ctx, scanner.Text()) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// exec runs one command line and reports whether the loop should stop.
func (a *app) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(a.out, helpText)
	case "search":
		a.search(ctx, arg)
	case "open":
		a.open(ctx, arg)
	case "toc":
		a.toc(ctx)
	case "read":
		if n, ok := a.number(arg); ok && a.requireWork() {
			a.chapter, a.page = n-1, 0
			a.show(ctx)
		}
	case "page":
		if n, ok := a.number(arg); ok && a.requireWork() {
			a.page = n - 1
			a.show(ctx)
		}
	case "next":
		a.next(ctx)
	case "prev":
		a.prev(ctx)
	case "index":
		a.index(ctx)
	case "ask":
		a.ask(ctx, arg)
	default:
		a.warn.Fprintf(a.out, "Unknown command %q, type 'help' for commands\n", cmd)
	}
	return false
}

func (a *app) spinner(description string) func() {
	if !a.spinners {
		return func() {}
	}
	s := getSpinner(description)
	return func() { _ = s.Finish() }
}

func (a *app) search(ctx context.Context, query string) {
	done := a.spinner("Searching catalog...")
	works, ok := a.session.Search(ctx, query)
	done()

	if !ok {
		a.warn.Fprintln(a.out, "Nothing to search for")
		return
	}
	if err := a.session.State().Err; err != nil {
		a.warn.Fprintln(a.out, "Search failed, the catalog could not be reached")
		return
	}
	if len(works) == 0 {
		a.info.Fprintln(a.out, "No books found")
		return
	}

	for i, w := range works {
		fmt.Fprintf(a.out, "%3d. %s by %s\n", i+1, a.heading.Sprint(w.Title), w.Author)
	}
}

func (a *app) open(ctx context.Context, arg string) {
	n, ok := a.number(arg)
	if !ok {
		return
	}
	results := a.session.Results()
	if n > len(results) {
		a.warn.Fprintf(a.out, "No result %d, search first\n", n)
		return
	}

	work := results[n-1]
	a.work = &work
	a.chapter, a.page, a.pages = 0, 0, 0

	a.heading.Fprintln(a.out, work.Title)
	fmt.Fprintf(a.out, "%s\n%s\n", work.Author, work.Summary)
	if len(work.Tags) > 0 {
		fmt.Fprintf(a.out, "Tags: %s\n", strings.Join(work.Tags, ", "))
	}

	chapters, msg := a.reader.Chapters(ctx, work)
	if msg != "" {
		a.warn.Fprintln(a.out, msg)
		return
	}
	a.chapters = len(chapters)
	a.info.Fprintf(a.out, "%d chapters, type 'read 1' to start\n", a.chapters)
}

func (a *app) toc(ctx context.Context) {
	if !a.requireWork() {
		return
	}
	chapters, msg := a.reader.Chapters(ctx, *a.work)
	if msg != "" {
		a.warn.Fprintln(a.out, msg)
		return
	}
	a.chapters = len(chapters)
	for _, c := range chapters {
		fmt.Fprintf(a.out, "%3d. %s\n", c.Index+1, c.Title)
	}
}

func (a *app) show(ctx context.Context) {
	content, pages := a.reader.FetchPage(ctx, *a.work, a.chapter, a.page)
	a.pages = pages
	a.page = max(0, min(a.page, pages-1))

	a.heading.Fprintf(a.out, "\nChapter %d, page %d/%d\n\n", a.chapter+1, a.page+1, a.pages)
	fmt.Fprintln(a.out, content)
}

func (a *app) next(ctx context.Context) {
	if !a.requireWork() {
		return
	}
	switch {
	case a.pages == 0:
		// nothing shown yet
	case a.page+1 < a.pages:
		a.page++
	case a.chapter+1 < a.chapters:
		a.chapter, a.page = a.chapter+1, 0
	default:
		a.info.Fprintln(a.out, "End of book")
		return
	}
	a.show(ctx)
}

func (a *app) prev(ctx context.Context) {
	if !a.requireWork() {
		return
	}
	switch {
	case a.page > 0:
		a.page--
	case a.chapter > 0:
		// show clamps to the last page
		a.chapter, a.page = a.chapter-1, math.MaxInt
	default:
		a.info.Fprintln(a.out, "Start of book")
		return
	}
	a.show(ctx)
}

func (a *app) index(ctx context.Context) {
	if !a.requireWork() || !a.requireIndex() {
		return
	}

	var bar *progressbar.ProgressBar
	n, err := a.indexer.Index(ctx, *a.work, func(done, total int) {
		if !a.spinners {
			return
		}
		if bar == nil {
			bar = getProgressBar(total, "Embedding passages...")
		}
		_ = bar.Set(done)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		a.warn.Fprintf(a.out, "Indexing failed: %v\n", err)
		return
	}
	a.info.Fprintf(a.out, "✓ Indexed %d passages\n", n)
}

func (a *app) ask(ctx context.Context, question string) {
	if !a.requireWork() || !a.requireIndex() {
		return
	}

	a.info.Fprint(a.out, "\nAssistant: ")
	answer, err := a.indexer.AskStream(ctx, *a.work, question, func(chunk string) {
		fmt.Fprint(a.out, chunk)
	})
	fmt.Fprintln(a.out)
	if err != nil {
		a.warn.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, llm.Sources(answer.Passages))
}

func (a *app) number(arg string) (int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		a.warn.Fprintf(a.out, "Expected a number from 1, got %q\n", arg)
		return 0, false
	}
	return n, true
}

func (a *app) requireWork() bool {
	if a.work == nil {
		a.warn.Fprintln(a.out, "No book open, use 'open <n>' after a search")
		return false
	}
	return true
}

func (a *app) requireIndex() bool {
	if a.indexer == nil {
		a.warn.Fprintln(a.out, "Passage index is not configured, set database.url")
		return false
	}
	return true
}
