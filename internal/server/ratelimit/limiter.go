// Package ratelimit limits API requests per client with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one request. Limit is zero when the request was not
// subject to a bucket.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Config holds the limiter settings. Default applies per client to requests no rule
// matches. Exempt clients are never limited and Blocked clients are always rejected.
// Buckets unused for IdleTTL are dropped.
type Config struct {
	Enabled       bool
	Default       Rule
	Rules         []Rule
	Exempt        map[string]bool
	Blocked       map[string]bool
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client and rule
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter. When sweeping is configured Stop must be called to
// release the sweeper goroutine.
func NewLimiter(cfg Config) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.SweepInterval > 0 {
		go l.sweeper(cfg.SweepInterval)
	}
	return l
}

// Allow decides whether a request from client may proceed and consumes a token if so.
func (l *Limiter) Allow(client, method, path string) Decision {
	if !l.cfg.Enabled || l.cfg.Exempt[client] {
		return Decision{Allowed: true}
	}
	if l.cfg.Blocked[client] {
		return Decision{}
	}

	rule := l.cfg.Default
	key := client + "|*"
	if method == "GET" && path == "/health" {
		return Decision{Allowed: true}
	}
	if r, ok := match(l.cfg.Rules, method, path); ok {
		rule = r
		key = client + "|" + r.Name
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	lim := l.bucket(key, rule, now)
	d := Decision{Allowed: lim.AllowN(now, 1), Limit: rule.Limit}

	tokens := lim.TokensAt(now)
	perSecond := float64(lim.Limit())
	d.Remaining = max(int(tokens), 0)
	d.ResetAt = now.Add(seconds((float64(lim.Burst()) - tokens) / perSecond))
	if !d.Allowed {
		d.RetryAfter = seconds((1 - tokens) / perSecond)
	}
	return d
}

func (l *Limiter) bucket(key string, rule Rule, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(rule.Limit)/rule.Window.Seconds()), rule.burst())}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

func (l *Limiter) sweeper(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(l.now().Add(-l.cfg.IdleTTL))
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets unused since cutoff. A dropped bucket starts full when it returns.
func (l *Limiter) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
