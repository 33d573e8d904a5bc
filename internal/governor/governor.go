// Package governor enforces request spacing toward remote hosts. One
// instance is shared by every component that talks to the network, so the
// per-host gap holds across the whole process.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// DefaultMinGap is the per-host spacing applied when no override is set.
const DefaultMinGap = 1000 * time.Millisecond

// defaultAgents is the rotating User-Agent pool. Order is stable so callers
// can predict rotation in tests.
var defaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 Edg/123.0.0.0",
}

// Governor spaces outbound requests per host and, optionally, across all
// hosts. Waits are serialized per host; a canceled wait consumes no slot.
type Governor struct {
	mu        sync.Mutex
	minGap    time.Duration
	global    *rate.Limiter // nil when no cross-host gap is configured
	hosts     map[string]*rate.Limiter
	overrides map[string]time.Duration
	agents    []string
	nextUA    int
}

// New returns a Governor with the given per-host minimum gap. A zero or
// negative gap falls back to DefaultMinGap.
func New(minGap time.Duration) *Governor {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	return &Governor{
		minGap:    minGap,
		hosts:     make(map[string]*rate.Limiter),
		overrides: make(map[string]time.Duration),
		agents:    defaultAgents,
	}
}

// NewFromQPS translates a queries-per-second ceiling into a per-host gap.
func NewFromQPS(qps float64) *Governor {
	if qps <= 0 {
		return New(0)
	}
	return New(time.Duration(float64(time.Second) / qps))
}

// SetGlobalGap configures a minimum gap across all hosts on top of the
// per-host spacing. Zero disables it.
func (g *Governor) SetGlobalGap(gap time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gap <= 0 {
		g.global = nil
		return
	}
	g.global = rate.NewLimiter(rate.Every(gap), 1)
}

// SetHostGap overrides the minimum gap for one host. A zero or negative gap
// removes the override. Takes effect for limiters not yet created; existing
// limiters are rebuilt.
func (g *Governor) SetHostGap(host string, gap time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gap <= 0 {
		delete(g.overrides, host)
	} else {
		g.overrides[host] = gap
	}
	delete(g.hosts, host)
}

// SetHostQPS overrides spacing for one host expressed as queries per second.
func (g *Governor) SetHostQPS(host string, qps float64) {
	if qps <= 0 {
		g.SetHostGap(host, 0)
		return
	}
	g.SetHostGap(host, time.Duration(float64(time.Second)/qps))
}

// Acquire blocks until both the global and the per-host gap are satisfied,
// then consumes a slot for each. It returns how long the caller waited.
// A canceled context aborts the wait without consuming the slot.
func (g *Governor) Acquire(ctx context.Context, host string) (time.Duration, error) {
	start := time.Now()
	g.mu.Lock()
	global := g.global
	hl := g.hostLimiterLocked(host)
	g.mu.Unlock()

	if global != nil {
		if err := global.Wait(ctx); err != nil {
			return time.Since(start), err
		}
	}
	if err := hl.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

func (g *Governor) hostLimiterLocked(host string) *rate.Limiter {
	if l, ok := g.hosts[host]; ok {
		return l
	}
	gap := g.minGap
	if o, ok := g.overrides[host]; ok {
		gap = o
	}
	l := rate.NewLimiter(rate.Every(gap), 1)
	g.hosts[host] = l
	return l
}

// UserAgent returns the next agent from the rotating pool.
func (g *Governor) UserAgent() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ua := g.agents[g.nextUA%len(g.agents)]
	g.nextUA++
	return ua
}

// SetUserAgents replaces the rotation pool. Empty input is ignored.
func (g *Governor) SetUserAgents(agents []string) {
	if len(agents) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.agents = append([]string(nil), agents...)
	g.nextUA = 0
}

// NewBackOff returns the retry policy applied to transient network failures:
// exponential growth with jitter, starting at half a second. Callers bound
// the attempt count with backoff.WithMaxRetries.
func (g *Governor) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // attempt count is the bound, not wall time
	return b
}
