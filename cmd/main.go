package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/pkg/catalog"
	cfgPkg "github.com/xhad/folio/pkg/config"
	"github.com/xhad/folio/pkg/fetch"
	"github.com/xhad/folio/pkg/indexer"
	"github.com/xhad/folio/pkg/llm"
	"github.com/xhad/folio/pkg/reader"
	"github.com/xhad/folio/pkg/store"
	"github.com/xhad/folio/server"
)

type Options struct {
	ConfigPath string
	Serve      bool
	Addr       string
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := run(parseFlags()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func parseFlags() Options {
	var opts Options

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	flag.BoolVar(&opts.Serve, "serve", false, "Run the HTTP and WebSocket server instead of the interactive reader")
	flag.StringVar(&opts.Addr, "addr", "", "Server listen address (overrides server.addr)")
	flag.Parse()

	return opts
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("passages"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

func run(opts Options) error {
	config, err := cfgPkg.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Addr != "" {
		config.Server.Addr = opts.Addr
	}

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	_, thisFile, _, _ := runtime.Caller(0)
	l, err := logger.Setup(config.Log.Format, config.Log.Level, path.Dir(path.Dir(thisFile)), middleware.RequestIDKey)
	if err != nil {
		return err
	}

	ordering, err := catalog.ParseOrdering(config.Search.Ordering)
	if err != nil {
		return err
	}

	client, err := catalog.NewWithConfig(catalog.ClientConfig{
		BaseURL:      config.Catalog.BaseURL,
		SourcePrefix: config.Catalog.SourcePrefix,
		UserAgent:    config.Catalog.UserAgent,
		Timeout:      config.Catalog.Timeout,
		RateLimit:    config.Catalog.RateLimit,
		Logger:       l,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize catalog client: %w", err)
	}

	fetcher := fetch.NewWithConfig(fetch.FetcherConfig{
		UserAgent: config.Catalog.UserAgent,
		Timeout:   config.Reader.Timeout,
		RateLimit: config.Reader.RateLimit,
		Logger:    l,
	})

	r := reader.NewWithConfig(fetcher, reader.ReaderConfig{
		Marker:   config.Reader.Marker,
		PageSize: config.Reader.PageSize,
		Logger:   l,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, closeIndex, err := buildIndexer(ctx, config, r, fetcher, l)
	if err != nil {
		// The reader works without the passage index.
		l.Warn("Passage index unavailable", slog.String("error", err.Error()))
	}
	defer closeIndex()

	if opts.Serve {
		srv := server.New(client, r, ix, server.Config{
			Ordering:  ordering,
			DebugMode: config.Server.DebugMode,
			Logger:    l,
		})
		return srv.ListenAndServe(ctx, config.Server.Addr)
	}

	a := newApp(os.Stdin, os.Stdout, client, r, ix, ordering)
	a.spinners = true
	a.loop(ctx)
	return nil
}

// buildIndexer wires the passage index when a database is configured. The
// returned close func is always safe to call.
func buildIndexer(ctx context.Context, config *cfgPkg.Config, r *reader.Reader, documents *fetch.Fetcher, l *slog.Logger) (*indexer.Indexer, func(), error) {
	noop := func() {}
	if config.Database.URL == "" {
		return nil, noop, nil
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     config.LLM.EmbedModel,
		BaseURL:   config.LLM.BaseURL,
		BatchSize: config.Database.BatchSize,
		Dimension: config.Database.VectorDim,
		Logger:    l,
	})
	if err != nil {
		return nil, noop, err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       config.LLM.Model,
		MaxTokens:   config.LLM.MaxTokens,
		BaseURL:     config.LLM.BaseURL,
		Temperature: config.LLM.Temperature,
		Logger:      l,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	passages, err := store.NewWithConfig(ctx, store.PassageStoreConfig{
		ConnString: config.Database.URL,
		TableName:  config.Database.TableName,
		VectorDim:  config.Database.VectorDim,
		BatchSize:  config.Database.BatchSize,
		Logger:     l,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to initialize passage store: %w", err)
	}

	ix := indexer.NewWithConfig(r, embedder, passages, chatEngine, indexer.IndexerConfig{
		BatchSize: config.Database.BatchSize,
		Documents: documents,
		Logger:    l,
	})
	return ix, passages.Close, nil
}
