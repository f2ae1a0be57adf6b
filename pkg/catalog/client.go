package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/internal/types"
)

type ClientConfig struct {
	BaseURL      string
	SourcePrefix string
	UserAgent    string
	Timeout      time.Duration
	RateLimit    float64 // requests per second
	Logger       *slog.Logger
	HTTPClient   *http.Client
}

type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Result is the outcome of one search. Failures never surface as a Go error
// return: Works is empty and Err carries the diagnostic.
type Result struct {
	Works   []models.Work
	Err     error
	Skipped bool
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://gutendex.com"
	}
	if config.SourcePrefix == "" {
		config.SourcePrefix = "gutenberg"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Logger == nil {
		config.Logger = logger.Discard()
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog base URL must be absolute: %s", config.BaseURL)
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &Client{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  config.Logger.With(slog.String("component", "catalog")),
	}, nil
}

func New(baseURL string) *Client {
	c, _ := NewWithConfig(ClientConfig{
		BaseURL: baseURL,
	})
	return c
}

// Encodable reports whether query would produce a catalog request.
func Encodable(query string) bool {
	return strings.TrimSpace(query) != "" && utf8.ValidString(query)
}

// SearchURL returns the catalog request URL for query.
func (c *Client) SearchURL(query string) string {
	return fmt.Sprintf("%s/books?search=%s", c.config.BaseURL, url.QueryEscape(query))
}

// Search issues a single catalog request for query. Empty or unencodable
// queries are skipped without touching the network.
func (c *Client) Search(ctx context.Context, query string) Result {
	if !Encodable(query) {
		return Result{Skipped: true}
	}

	works, err := c.search(ctx, query)
	if err != nil && ctx.Err() != nil {
		c.logger.DebugContext(ctx, "Catalog search cancelled", slog.String("query", query), slog.String("error", err.Error()))
		return Result{Works: []models.Work{}, Err: err}
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "Catalog search failed", slog.String("query", query), slog.String("error", err.Error()))
		return Result{Works: []models.Work{}, Err: err}
	}

	c.logger.DebugContext(ctx, "Catalog search done", slog.String("query", query), slog.Int("works", len(works)))
	return Result{Works: works}
}

func (c *Client) search(ctx context.Context, query string) ([]models.Work, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetworkFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", types.ErrNetworkFailure, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", types.ErrNetworkFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", types.ErrNetworkFailure, err)
	}

	var envelope searchResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecodeFailure, err)
	}
	if envelope.Results == nil {
		return nil, fmt.Errorf("%w: response has no results", types.ErrDecodeFailure)
	}

	works := make([]models.Work, 0, len(*envelope.Results))
	for _, rec := range *envelope.Results {
		work := normalize(c.config.SourcePrefix, rec)
		if work.TextURL == "" {
			c.logger.DebugContext(ctx, "Skip work without plain text", slog.String("id", work.ID))
			continue
		}
		works = append(works, work)
	}

	return works, nil
}

// IsFailure reports whether err belongs to the catalog failure taxonomy.
func IsFailure(err error) bool {
	return errors.Is(err, types.ErrNetworkFailure) || errors.Is(err, types.ErrDecodeFailure)
}
