package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/vaultgate/pkg/observability"
)

// LimitConfig holds fixed-window settings.
type LimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// Validate rejects non-positive settings.
func (c LimitConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("rate limit max requests must be > 0, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be > 0, got %s", c.Window)
	}
	return nil
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds int
}

// FixedWindowLimiter admits up to MaxRequests per client per window. The
// window resets wholesale once it has elapsed.
//
// State is in-process only: it is lost on restart and not shared between
// instances. All methods are safe for concurrent use.
type FixedWindowLimiter struct {
	cfg           LimitConfig
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// LimiterOption configures a FixedWindowLimiter.
type LimiterOption func(*FixedWindowLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *FixedWindowLimiter) { l.now = now }
}

// WithSweepInterval sets how often Run evicts expired windows. Default: 60s.
func WithSweepInterval(d time.Duration) LimiterOption {
	return func(l *FixedWindowLimiter) { l.sweepInterval = d }
}

// NewFixedWindowLimiter validates cfg and returns a limiter.
func NewFixedWindowLimiter(cfg LimitConfig, opts ...LimiterOption) (*FixedWindowLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &FixedWindowLimiter{
		cfg:           cfg,
		sweepInterval: time.Minute,
		now:           time.Now,
		entries:       make(map[string]*windowEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sweepInterval <= 0 {
		return nil, fmt.Errorf("rate limit sweep interval must be > 0, got %s", l.sweepInterval)
	}
	return l, nil
}

// Config returns the limiter settings.
func (l *FixedWindowLimiter) Config() LimitConfig { return l.cfg }

// Check counts one request for clientID. A rejected request is not counted.
func (l *FixedWindowLimiter) Check(clientID string) Decision {
	key := "anon:" + clientID

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(l.cfg.Window)}
		l.entries[key] = e
		observability.RateLimitEntries.Set(float64(len(l.entries)))
	}

	d := Decision{
		Limit:        l.cfg.MaxRequests,
		ResetSeconds: ceilSeconds(e.resetAt.Sub(now)),
	}

	if e.count >= l.cfg.MaxRequests {
		return d
	}

	e.count++
	d.Allowed = true
	d.Remaining = l.cfg.MaxRequests - e.count
	return d
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Sweep removes windows that have elapsed and returns how many it removed.
func (l *FixedWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	observability.RateLimitEntries.Set(float64(len(l.entries)))
	return removed
}

// Len returns the number of tracked windows.
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps on the configured interval until ctx is done.
func (l *FixedWindowLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// ClientIdentity derives the rate-limit identity of r. It uses the
// rightmost X-Forwarded-For entry, which the nearest proxy appended; the
// leftmost entries are client-controlled. Without the header it uses the
// peer address, and "unknown" when that is missing too.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			if hop := strings.TrimSpace(hops[i]); hop != "" {
				return hop
			}
		}
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}
