package collectors

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/types"
)

// ArxivCollector queries the arXiv Atom API for papers
type ArxivCollector struct {
	client  client
	baseURL string
	from    time.Time
	to      time.Time
}

// NewArxivCollector creates an arXiv collector. A nil http client uses a default one.
func NewArxivCollector(cfg config.CollectorConfig, hc *http.Client) *ArxivCollector {
	c := &ArxivCollector{client: newClient(cfg, hc), baseURL: cfg.ArxivBaseURL}
	if t, err := time.Parse(time.DateOnly, cfg.DateFrom); err == nil {
		c.from = t
	}
	if t, err := time.Parse(time.DateOnly, cfg.DateTo); err == nil {
		// inclusive end date
		c.to = t.Add(24*time.Hour - time.Nanosecond)
	}
	return c
}

// Source returns the entity collection name.
func (c *ArxivCollector) Source() string { return types.SourcePapers }

// Collect fetches papers per keyword. A paper matched by several keywords is kept once
// with all of them recorded.
func (c *ArxivCollector) Collect(ctx context.Context, keywords []string, limits config.Limits) (types.RawEntities, []types.ErrorEntry) {
	var papers []types.Paper
	index := make(map[string]int)
	var errs []types.ErrorEntry

	for _, kw := range keywords {
		if ctx.Err() != nil {
			errs = append(errs, entry(c.Source(), kw, ctx.Err()))
			break
		}
		found, err := c.search(ctx, kw, limits.PapersPerKeyword)
		if err != nil {
			errs = append(errs, entry(c.Source(), kw, err))
			continue
		}
		for _, p := range found {
			if i, ok := index[p.ID]; ok {
				if !containsString(papers[i].Keywords, kw) {
					papers[i].Keywords = append(papers[i].Keywords, kw)
				}
				continue
			}
			index[p.ID] = len(papers)
			papers = append(papers, p)
		}
	}
	return types.RawEntities{Papers: papers}, errs
}

func (c *ArxivCollector) search(ctx context.Context, keyword string, limit int) ([]types.Paper, error) {
	q := url.Values{}
	q.Set("search_query", fmt.Sprintf("all:%q", keyword))
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	rawURL := c.baseURL + "?" + q.Encode()

	var feed arxivFeed
	err := c.client.get(ctx, "arxiv", rawURL, nil, func(resp *http.Response) error {
		return xml.NewDecoder(resp.Body).Decode(&feed)
	})
	if err != nil {
		return nil, err
	}

	var papers []types.Paper
	for _, e := range feed.Entries {
		id := extractArxivID(e.ID)
		if id == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
		if !c.inWindow(published) {
			continue
		}

		p := types.Paper{
			ID:        id,
			Title:     strings.Join(strings.Fields(e.Title), " "),
			Abstract:  strings.Join(strings.Fields(e.Summary), " "),
			Published: published,
			URL:       "https://arxiv.org/abs/" + id,
			Keywords:  []string{keyword},
		}
		for _, a := range e.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		for _, cat := range e.Categories {
			p.Categories = append(p.Categories, cat.Term)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

func (c *ArxivCollector) inWindow(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	if !c.from.IsZero() && t.Before(c.from) {
		return false
	}
	if !c.to.IsZero() && t.After(c.to) {
		return false
	}
	return true
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" gives "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
