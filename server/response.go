package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/xhad/folio/internal/types"
	"github.com/xhad/folio/pkg/indexer"
)

var errNoIndex = errors.New("passage index is not configured")

// requestError is a client mistake answered with 400.
type requestError struct {
	msg string
}

func (e requestError) Error() string { return e.msg }

func badRequest(msg string) error { return requestError{msg: msg} }

// statusOf maps an error onto the response status it is answered with.
func statusOf(err error) int {
	var re requestError
	switch {
	case errors.As(err, &re), errors.Is(err, indexer.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNetworkFailure), errors.Is(err, types.ErrDecodeFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error   string `json:"error"`
	ErrorID string `json:"error_id"`
}

// Responder writes the JSON bodies of the API. Failed requests get an error
// id that is logged with the cause; server-side causes are only shown to the
// client in debug mode.
type Responder struct {
	DebugMode bool
	Logger    *slog.Logger
}

func (rr *Responder) logger() *slog.Logger {
	if rr.Logger == nil {
		return slog.Default()
	}
	return rr.Logger
}

// OK writes data with status 200.
func (rr *Responder) OK(w http.ResponseWriter, r *http.Request, data any) {
	rr.JSON(w, r, http.StatusOK, data)
}

// Fail answers err with the status statusOf picks for it.
func (rr *Responder) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	errID := uuid.NewString()

	level := slog.LevelInfo
	switch {
	case status == http.StatusServiceUnavailable:
		level = slog.LevelWarn
	case status >= 500:
		level = slog.LevelError
	}
	rr.logger().LogAttrs(r.Context(), level, "Request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("err_id", errID),
		slog.String("error", err.Error()),
	)

	msg := err.Error()
	if status >= 500 && !rr.DebugMode {
		msg = http.StatusText(status)
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	rr.JSON(w, r, status, errorBody{Error: msg, ErrorID: errID})
}

// JSON writes data with status.
func (rr *Responder) JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	bs, err := json.Marshal(data)
	if err != nil {
		rr.logger().ErrorContext(r.Context(), "Cannot marshal response body", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("unknown error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(bs)
}
