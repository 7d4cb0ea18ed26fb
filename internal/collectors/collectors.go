// Package collectors gathers raw entities from external sources. Collectors never
// return errors to the caller: every failure becomes an error log entry and the
// entities gathered so far are kept.
package collectors

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/httputil"
	"github.com/jonathan/trend-radar/internal/types"
)

// StageName is recorded on every error entry produced by a collector
const StageName = "collector"

// Collector gathers one kind of raw entity for a keyword list
type Collector interface {
	// Source names the entity collection the collector fills
	Source() string
	Collect(ctx context.Context, keywords []string, limits config.Limits) (types.RawEntities, []types.ErrorEntry)
}

// Error describes a failed collector call
type Error struct {
	Source string
	URL    string
	Status int
	Cause  error
}

func (e *Error) Error() string {
	switch {
	case e.Cause != nil && e.URL != "":
		return fmt.Sprintf("%s request to %s failed: %v", e.Source, e.URL, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s request failed: %v", e.Source, e.Cause)
	default:
		return fmt.Sprintf("%s request to %s returned HTTP %d", e.Source, e.URL, e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// entry converts a collector failure into a non-fatal transient error log entry.
func entry(source, keyword string, err error) types.ErrorEntry {
	msg := err.Error()
	if keyword != "" {
		msg = fmt.Sprintf("%s (keyword %q)", msg, keyword)
	}
	return types.ErrorEntry{
		Stage:   StageName,
		Source:  source,
		Kind:    types.ErrorKindTransient,
		Message: msg,
		Time:    time.Now().UTC(),
	}
}

// client holds the HTTP plumbing shared by the collectors
type client struct {
	http      *http.Client
	policy    httputil.Policy
	userAgent string
}

func newClient(cfg config.CollectorConfig, hc *http.Client) client {
	if hc == nil {
		hc = &http.Client{}
	}
	return client{
		http:      hc,
		policy:    retryPolicy(cfg),
		userAgent: cfg.UserAgent,
	}
}

// retryPolicy applies the configured timeout to every attempt rather than to the call.
func retryPolicy(cfg config.CollectorConfig) httputil.Policy {
	return httputil.Policy{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.RetryBaseDelay,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: cfg.Timeout,
	}
}

// get performs a GET under the retry policy. decode reads the successful response body.
func (c client) get(ctx context.Context, source, rawURL string, header http.Header, decode func(*http.Response) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Source: source, URL: rawURL, Cause: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.policy)
	if err != nil {
		return &Error{Source: source, URL: rawURL, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &Error{Source: source, URL: rawURL, Status: resp.StatusCode}
	}
	if err := decode(resp); err != nil {
		return &Error{Source: source, URL: rawURL, Cause: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// Set runs several collectors concurrently
type Set struct {
	collectors []Collector
	logger     *zap.Logger
}

// NewSet creates a Set. A nil logger disables logging.
func NewSet(logger *zap.Logger, collectors ...Collector) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{collectors: collectors, logger: logger}
}

// Collect runs every collector and merges their entities. Errors are returned in
// collector order so the error log is deterministic.
func (s *Set) Collect(ctx context.Context, keywords []string, limits config.Limits) (types.RawEntities, []types.ErrorEntry) {
	results := make([]types.RawEntities, len(s.collectors))
	failures := make([][]types.ErrorEntry, len(s.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.collectors {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					failures[i] = append(failures[i], entry(c.Source(), "", fmt.Errorf("collector panic: %v", r)))
				}
			}()
			start := time.Now()
			results[i], failures[i] = c.Collect(gctx, keywords, limits)
			s.logger.Info("collector finished",
				zap.String("source", c.Source()),
				zap.Int("errors", len(failures[i])),
				zap.Duration("duration", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait()

	var merged types.RawEntities
	var errs []types.ErrorEntry
	for i := range s.collectors {
		merged.Papers = append(merged.Papers, results[i].Papers...)
		merged.Repositories = append(merged.Repositories, results[i].Repositories...)
		merged.Trends = append(merged.Trends, results[i].Trends...)
		merged.MarketSnippets = append(merged.MarketSnippets, results[i].MarketSnippets...)
		errs = append(errs, failures[i]...)
	}
	return merged, errs
}
