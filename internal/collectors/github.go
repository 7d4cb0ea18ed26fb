package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/types"
)

// githubMaxPerPage is the largest page size the search API accepts
const githubMaxPerPage = 100

// GitHubCollector queries the GitHub repository search API
type GitHubCollector struct {
	client  client
	baseURL string
	token   string
}

// NewGitHubCollector creates a GitHub collector. The token is optional.
func NewGitHubCollector(cfg config.CollectorConfig, hc *http.Client) *GitHubCollector {
	return &GitHubCollector{
		client:  newClient(cfg, hc),
		baseURL: strings.TrimRight(cfg.GitHubBaseURL, "/"),
		token:   cfg.GitHubToken,
	}
}

// Source returns the entity collection name.
func (c *GitHubCollector) Source() string { return types.SourceRepositories }

// Collect searches repositories per keyword, most starred first.
func (c *GitHubCollector) Collect(ctx context.Context, keywords []string, limits config.Limits) (types.RawEntities, []types.ErrorEntry) {
	var repos []types.Repository
	index := make(map[string]int)
	var errs []types.ErrorEntry

	for _, kw := range keywords {
		if ctx.Err() != nil {
			errs = append(errs, entry(c.Source(), kw, ctx.Err()))
			break
		}
		found, err := c.search(ctx, kw, limits)
		if err != nil {
			errs = append(errs, entry(c.Source(), kw, err))
			continue
		}
		for _, r := range found {
			if i, ok := index[r.ID]; ok {
				if !containsString(repos[i].Keywords, kw) {
					repos[i].Keywords = append(repos[i].Keywords, kw)
				}
				continue
			}
			index[r.ID] = len(repos)
			repos = append(repos, r)
		}
	}
	return types.RawEntities{Repositories: repos}, errs
}

func (c *GitHubCollector) search(ctx context.Context, keyword string, limits config.Limits) ([]types.Repository, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s language:python stars:>%d", keyword, limits.MinStars))
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(min(limits.ReposPerKeyword, githubMaxPerPage)))
	rawURL := c.baseURL + "/search/repositories?" + q.Encode()

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	var result githubSearchResponse
	err := c.client.get(ctx, "github", rawURL, header, func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	items := result.Items
	if len(items) > limits.ReposPerKeyword {
		items = items[:limits.ReposPerKeyword]
	}

	repos := make([]types.Repository, 0, len(items))
	for _, it := range items {
		repos = append(repos, types.Repository{
			ID:          it.FullName,
			Name:        it.Name,
			Description: it.Description,
			Stars:       it.Stars,
			Forks:       it.Forks,
			Language:    it.Language,
			URL:         it.HTMLURL,
			Topics:      it.Topics,
			UpdatedAt:   it.UpdatedAt,
			Keywords:    []string{keyword},
		})
	}
	return repos, nil
}

type githubSearchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []githubRepo `json:"items"`
}

type githubRepo struct {
	FullName    string    `json:"full_name"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	HTMLURL     string    `json:"html_url"`
	Topics      []string  `json:"topics"`
	UpdatedAt   time.Time `json:"updated_at"`
}
