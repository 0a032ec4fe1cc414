package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rule caps an action at Limit events per sliding Window.
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type key struct {
	subject string
	action  string
}

// Limiter is a sliding-log counter keyed by (subject, action). Actions with
// no rule are always allowed.
type Limiter struct {
	mu    sync.Mutex
	rules map[string]Rule
	hits  map[key][]time.Time
	now   func() time.Time
}

func New(rules map[string]Rule) *Limiter {
	copied := make(map[string]Rule, len(rules))
	for action, rule := range rules {
		if rule.Limit > 0 && rule.Window > 0 {
			copied[action] = rule
		}
	}
	return &Limiter{rules: copied, hits: make(map[key][]time.Time), now: time.Now}
}

// Allow records an attempt and reports whether it fits the window. When it
// does not, retryAfter is the time until the oldest counted attempt expires.
func (l *Limiter) Allow(subject, action string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[action]
	if !ok {
		return true, 0
	}

	now := l.now()
	k := key{subject: subject, action: action}
	window := trim(l.hits[k], now.Add(-rule.Window))
	if len(window) >= rule.Limit {
		l.hits[k] = window
		return false, window[0].Add(rule.Window).Sub(now)
	}
	l.hits[k] = append(window, now)
	return true, 0
}

// Prune drops expired attempts and empty keys; it returns the number of keys removed.
func (l *Limiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, hits := range l.hits {
		rule, ok := l.rules[k.action]
		if ok {
			hits = trim(hits, now.Add(-rule.Window))
		} else {
			hits = nil
		}
		if len(hits) == 0 {
			delete(l.hits, k)
			removed++
			continue
		}
		l.hits[k] = hits
	}
	return removed
}

// Size reports the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Run prunes every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := l.Prune(now); n > 0 {
				logger.Debug("rate limiter pruned", zap.Int("keys", n))
			}
		}
	}
}

// trim keeps the attempts strictly after cutoff; hits are in ascending order.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
