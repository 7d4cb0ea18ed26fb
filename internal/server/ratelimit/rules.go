package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/config"
)

// RunRule names the bucket shared by every request that starts pipeline work
const RunRule = "runs"

// Rule limits the requests matching a method and path. Rules with the same name share
// one bucket per client. A "*" segment in Path matches any one segment and a trailing
// "/" matches by prefix. Burst is the bucket capacity and defaults to Limit.
type Rule struct {
	Name   string
	Method string
	Path   string
	Limit  int
	Window time.Duration
	Burst  int
}

func (r Rule) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return max(r.Limit, 1)
}

// FromConfig builds the limiter configuration from the server settings.
func FromConfig(cfg config.RateLimitConfig) Config {
	if !cfg.Enabled {
		return Config{}
	}
	return Config{
		Enabled: true,
		Default: Rule{Name: "default", Limit: cfg.DefaultLimit, Window: positive(cfg.DefaultWindow, time.Minute)},
		Rules:   RunRules(cfg.RunLimit, positive(cfg.RunWindow, time.Hour), cfg.RunBurst),
		Exempt:  clientSet(cfg.Whitelist),
		Blocked: clientSet(cfg.Blacklist),

		IdleTTL:       time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// RunRules limits the requests that start or resume a run. They share one bucket.
func RunRules(limit int, window time.Duration, burst int) []Rule {
	if limit <= 0 {
		return nil
	}
	var rules []Rule
	for _, path := range []string{"/runs", "/runs/stream", "/runs/*/resume"} {
		rules = append(rules, Rule{Name: RunRule, Method: http.MethodPost, Path: path, Limit: limit, Window: window, Burst: burst})
	}
	return rules
}

// match returns the first rule for the request. Exact paths win over patterns.
func match(rules []Rule, method, path string) (Rule, bool) {
	for _, r := range rules {
		if r.Method == method && r.Path == path {
			return r, true
		}
	}
	for _, r := range rules {
		if r.Method != method {
			continue
		}
		switch {
		case strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path):
			return r, true
		case strings.Contains(r.Path, "*") && segmentsMatch(r.Path, path):
			return r, true
		}
	}
	return Rule{}, false
}

func segmentsMatch(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, w := range want {
		if w != "*" && w != got[i] {
			return false
		}
	}
	return true
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func clientSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, c := range list {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = true
		}
	}
	return set
}
