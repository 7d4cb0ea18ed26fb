package collectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/types"
)

// TrendsCollector fetches search interest over time from a JSON endpoint.
// The endpoint receives up to batch keywords per request and answers
// {"series": {"keyword": [{"date": "2024-01-07", "value": 42}, ...]}}.
type TrendsCollector struct {
	client   client
	endpoint string
	batch    int
	from     string
	to       string
}

// NewTrendsCollector creates a trends collector. It collects nothing when the
// endpoint is empty.
func NewTrendsCollector(cfg config.CollectorConfig, hc *http.Client) *TrendsCollector {
	batch := cfg.TrendsBatch
	if batch <= 0 {
		batch = 5
	}
	return &TrendsCollector{
		client:   newClient(cfg, hc),
		endpoint: cfg.TrendsEndpoint,
		batch:    batch,
		from:     cfg.DateFrom,
		to:       cfg.DateTo,
	}
}

// Source returns the entity collection name.
func (c *TrendsCollector) Source() string { return types.SourceTrends }

// Collect requests keywords in batches and reduces each series to monthly means.
// Keywords missing from a response get an empty series.
func (c *TrendsCollector) Collect(ctx context.Context, keywords []string, _ config.Limits) (types.RawEntities, []types.ErrorEntry) {
	if c.endpoint == "" {
		return types.RawEntities{}, nil
	}

	var series []types.TrendSeries
	var errs []types.ErrorEntry
	for start := 0; start < len(keywords); start += c.batch {
		batch := keywords[start:min(start+c.batch, len(keywords))]
		if ctx.Err() != nil {
			errs = append(errs, entry(c.Source(), strings.Join(batch, ", "), ctx.Err()))
			break
		}

		resp, err := c.fetch(ctx, batch)
		if err != nil {
			errs = append(errs, entry(c.Source(), strings.Join(batch, ", "), err))
			continue
		}
		for _, kw := range batch {
			series = append(series, types.TrendSeries{Keyword: kw, Points: monthlyMeans(resp.Series[kw])})
		}
	}
	return types.RawEntities{Trends: series}, errs
}

func (c *TrendsCollector) fetch(ctx context.Context, batch []string) (trendsResponse, error) {
	q := url.Values{}
	q.Set("keywords", strings.Join(batch, ","))
	if c.from != "" {
		q.Set("from", c.from)
	}
	if c.to != "" {
		q.Set("to", c.to)
	}
	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}

	var out trendsResponse
	err := c.client.get(ctx, "trends", c.endpoint+sep+q.Encode(), nil, func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	return out, err
}

// monthlyMeans averages observations per calendar month, oldest first.
// Observations with unparseable dates are ignored.
func monthlyMeans(obs []trendObservation) []types.TrendPoint {
	type acc struct {
		sum float64
		n   int
	}
	months := make(map[string]*acc)
	for _, o := range obs {
		t, err := time.Parse(time.DateOnly, o.Date)
		if err != nil {
			continue
		}
		key := t.Format("2006-01")
		a, ok := months[key]
		if !ok {
			a = &acc{}
			months[key] = a
		}
		a.sum += o.Value
		a.n++
	}

	points := make([]types.TrendPoint, 0, len(months))
	for period, a := range months {
		points = append(points, types.TrendPoint{Period: period, Value: a.sum / float64(a.n)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points
}

type trendsResponse struct {
	Series map[string][]trendObservation `json:"series"`
}

type trendObservation struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}
