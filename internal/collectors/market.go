package collectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/fetch"
	"github.com/jonathan/trend-radar/internal/httputil"
	"github.com/jonathan/trend-radar/internal/types"
)

// searchMaxResults is the largest page the Programmable Search API returns
const searchMaxResults = 10

// MarketCollector searches the web for market reports on the catalog's search keywords
type MarketCollector struct {
	svc     *customsearch.Service
	cx      string
	queries [][]string
	policy  httputil.Policy
}

// NewMarketCollector creates a market collector over the catalog search keywords.
// It returns nil when no search credentials are configured.
func NewMarketCollector(ctx context.Context, cfg config.CollectorConfig, catalog []types.MarketDemand, opts ...option.ClientOption) (*MarketCollector, error) {
	if cfg.SearchEngineID == "" || (cfg.SearchAPIKey == "" && len(opts) == 0) {
		return nil, nil
	}
	if cfg.SearchAPIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.SearchAPIKey))
	}
	if cfg.SearchEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.SearchEndpoint))
	}

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}

	queries := make([][]string, 0, len(catalog))
	for _, d := range catalog {
		queries = append(queries, d.SearchKeywords)
	}
	return &MarketCollector{
		svc:     svc,
		cx:      cfg.SearchEngineID,
		queries: queries,
		policy:  retryPolicy(cfg),
	}, nil
}

// Source returns the entity collection name.
func (c *MarketCollector) Source() string { return types.SourceMarketSnippets }

// Collect runs the first QueriesPerMarket search keywords of every market. Keywords are
// not used: market queries come from the catalog.
func (c *MarketCollector) Collect(ctx context.Context, _ []string, limits config.Limits) (types.RawEntities, []types.ErrorEntry) {
	var snippets []types.MarketSnippet
	seen := make(map[string]bool)
	var errs []types.ErrorEntry

	for _, queries := range c.queries {
		for _, q := range queries[:min(limits.QueriesPerMarket, len(queries))] {
			if ctx.Err() != nil {
				return types.RawEntities{MarketSnippets: snippets}, append(errs, entry(c.Source(), q, ctx.Err()))
			}
			found, err := c.search(ctx, q, limits.SnippetsPerQuery)
			if err != nil {
				errs = append(errs, entry(c.Source(), q, err))
				continue
			}
			for _, s := range found {
				if seen[s.ID] {
					continue
				}
				seen[s.ID] = true
				snippets = append(snippets, s)
			}
		}
	}
	return types.RawEntities{MarketSnippets: snippets}, errs
}

func (c *MarketCollector) search(ctx context.Context, query string, limit int) ([]types.MarketSnippet, error) {
	num := int64(min(max(limit, 1), searchMaxResults))

	var resp *customsearch.Search
	for attempt := 0; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.policy.AttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		}
		var err error
		resp, err = c.svc.Cse.List().Cx(c.cx).Q(query).Num(num).Context(callCtx).Do()
		cancel()
		if err == nil {
			break
		}

		if ctx.Err() != nil {
			return nil, &Error{Source: "customsearch", Cause: ctx.Err()}
		}
		var apiErr *googleapi.Error
		retry := errors.As(err, &apiErr) && httputil.Retryable(apiErr.Code)
		// an attempt deadline expiring while ctx is live is a timeout worth retrying
		retry = retry || callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded)
		if !retry || attempt >= c.policy.MaxRetries {
			return nil, &Error{Source: "customsearch", Cause: err}
		}
		select {
		case <-ctx.Done():
			return nil, &Error{Source: "customsearch", Cause: ctx.Err()}
		case <-time.After(c.policy.Backoff(attempt)):
		}
	}

	total := len(resp.Items)
	snippets := make([]types.MarketSnippet, 0, total)
	for i, it := range resp.Items {
		if it.Link == "" {
			continue
		}
		content := it.Snippet
		if it.HtmlSnippet != "" {
			content = it.HtmlSnippet
		}
		snippets = append(snippets, types.MarketSnippet{
			ID:        it.Link,
			Query:     query,
			Title:     fetch.HTMLToText(it.Title),
			Content:   fetch.HTMLToText(content),
			Source:    it.DisplayLink,
			Relevance: positionRelevance(i, total),
		})
	}
	return snippets, nil
}

// positionRelevance scores results by rank: 1 for the first, down to 0.1 for the last.
func positionRelevance(i, total int) float64 {
	if total <= 1 {
		return 1
	}
	return 1 - float64(i)/float64(total-1)*0.9
}
