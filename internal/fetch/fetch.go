// Package fetch downloads web pages for the retrieval index and reduces HTML to the
// text a reader would see.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/httputil"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; TrendRadar/1.0)"
	maxBodyBytes     = 8 << 20
)

// ErrStatus marks a response with a non-2xx status
var ErrStatus = errors.New("unexpected status")

// Page is a fetched document
type Page struct {
	// URL is the address after redirects
	URL         string
	Title       string
	Text        string
	HTML        string
	ContentType string
	StatusCode  int
}

// Error wraps a failure at one step of a fetch
type Error struct {
	URL string
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Fetcher. Zero fields take defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Retry     httputil.Policy
	Extractor *Extractor
}

// Fetcher downloads pages with retries over one shared HTTP client
type Fetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	retry     httputil.Policy
	extractor *Extractor
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Retry == (httputil.Policy{}) {
		opts.Retry = httputil.DefaultPolicy()
	}
	if opts.Extractor == nil {
		opts.Extractor = DefaultExtractor()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		retry:     opts.Retry,
		extractor: opts.Extractor,
	}
}

// Get downloads a page and extracts its text. On a non-2xx status the partial page is
// returned together with an error wrapping ErrStatus.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Op: "parse", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{URL: rawURL, Op: "parse", Err: errors.New("absolute http(s) URL required")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Op: "request", Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := httputil.DoWithRetry(ctx, f.client, req, f.retry)
	if err != nil {
		return nil, &Error{URL: rawURL, Op: "request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: rawURL, Op: "read", Err: err}
	}

	page := &Page{
		URL:         resp.Request.URL.String(),
		HTML:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, &Error{URL: rawURL, Op: "status", Err: fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)}
	}

	if !isHTML(page.ContentType) {
		page.Text = trimLines(page.HTML)
		return page, nil
	}
	page.Title, page.Text, err = f.extractor.Extract(page.HTML)
	if err != nil {
		return page, &Error{URL: rawURL, Op: "extract", Err: err}
	}
	return page, nil
}

// isHTML reports whether a Content-Type header names HTML. A missing header counts as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
