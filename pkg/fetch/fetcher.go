package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/folio/internal/logger"
	"github.com/xhad/folio/internal/types"
)

type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	MaxBytes  int64
	Logger    *slog.Logger
}

type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(config FetcherConfig) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 32 << 20
	}
	if config.Logger == nil {
		config.Logger = logger.Discard()
	}

	return &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  config.Logger.With(slog.String("component", "fetch")),
	}
}

func New() *Fetcher {
	return NewWithConfig(FetcherConfig{})
}

// ValidURL reports whether raw is an absolute http(s) URL.
func ValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads rawURL in a single attempt and returns the body bytes
// unchanged. A body larger than MaxBytes is a decode failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := f.get(ctx, rawURL)
	return body, err
}

// FetchText downloads rawURL and decodes it as UTF-8. HTML bodies are
// reduced to their visible text after the UTF-8 check.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	body, contentType, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: %s is not UTF-8", types.ErrDecodeFailure, rawURL)
	}

	if !isHTML(contentType) {
		return string(body), nil
	}
	text, err := extractText(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrDecodeFailure, err)
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if !ValidURL(rawURL) {
		return nil, "", fmt.Errorf("%w: invalid URL %q", types.ErrNotFound, rawURL)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrNetworkFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: building request: %v", types.ErrNetworkFailure, err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", fmt.Errorf("%w: %s", types.ErrNotFound, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: received status code %d for URL: %s", types.ErrNetworkFailure, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading body: %v", types.ErrNetworkFailure, err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, "", fmt.Errorf("%w: %s is larger than %d bytes", types.ErrDecodeFailure, rawURL, f.config.MaxBytes)
	}

	f.logger.DebugContext(ctx, "Fetched text", slog.String("url", rawURL), slog.Int("bytes", len(body)))
	return body, resp.Header.Get("Content-Type"), nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func extractText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head").Remove()

	return extractMainContent(doc), nil
}

func extractMainContent(doc *goquery.Document) string {
	selectors := []string{
		"main",
		"article",
		"#content",
		".chapter",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = blockText(selected)
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = blockText(doc.Find("body"))
	}

	return strings.TrimSpace(content)
}

// blockText joins the text of block elements with blank lines so chapter
// headings stay on their own line.
func blockText(sel *goquery.Selection) string {
	var parts []string
	sel.Find("h1, h2, h3, h4, p, pre, div.poem").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(sel.Text()), " ")
	}
	return strings.Join(parts, "\n\n")
}
