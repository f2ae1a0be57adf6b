// Package server exposes catalog search and chapter reading over HTTP and a
// WebSocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/pkg/catalog"
	"github.com/xhad/folio/pkg/indexer"
	"github.com/xhad/folio/pkg/reader"
)

type Config struct {
	Ordering  catalog.Ordering
	DebugMode bool
	Logger    *slog.Logger
}

type Server struct {
	config    Config
	catalog   catalog.Searcher
	reader    *reader.Reader
	indexer   *indexer.Indexer // nil when the passage index is not configured
	responder *Responder
	logger    *slog.Logger
}

func New(searcher catalog.Searcher, r *reader.Reader, ix *indexer.Indexer, config Config) *Server {
	if config.Logger == nil {
		config.Logger = logger.Discard()
	}

	return &Server{
		config:    config,
		catalog:   searcher,
		reader:    r,
		indexer:   ix,
		responder: &Responder{DebugMode: config.DebugMode, Logger: config.Logger},
		logger:    config.Logger.With(slog.String("component", "server")),
	}
}

// Handler returns the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/ws", s.handleWebSocket)
	r.Mount("/api", s.apiHandler())

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "Starting server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
