// Package probe is the connectivity collaborator. It measures reachability
// and latency and exposes the result as a coarse status signal. Scheduling
// policy may read the status; it never owns or blocks on it.
package probe

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	"taskpace/internal/broadcast"
	"taskpace/pkg/logx"
)

type Status int

const (
	// StatusNone means unknown or unreachable. Probe failures map here so a
	// broken probe reads as "assume the worst", never as a crash.
	StatusNone Status = iota
	StatusPoor
	StatusGood
	StatusExcellent
)

func (s Status) String() string {
	switch s {
	case StatusPoor:
		return "poor"
	case StatusGood:
		return "good"
	case StatusExcellent:
		return "excellent"
	default:
		return "none"
	}
}

// Latency buckets. Anything measurable is at least "poor".
const (
	excellentMax = 60 * time.Millisecond
	goodMax      = 200 * time.Millisecond
)

func statusForLatency(d time.Duration) Status {
	switch {
	case d <= 0:
		return StatusNone
	case d <= excellentMax:
		return StatusExcellent
	case d <= goodMax:
		return StatusGood
	default:
		return StatusPoor
	}
}

// Prober runs connectivity checks and republishes status changes.
type Prober struct {
	log         logx.Logger
	pingTimeout time.Duration

	// measure is swapped out in tests.
	measure func(ctx context.Context) (time.Duration, error)

	mu      sync.Mutex
	last    Status
	checked bool

	changes *broadcast.Stream[Status]
}

type Option func(*Prober)

func WithPingTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.pingTimeout = d
		}
	}
}

func New(log logx.Logger, opts ...Option) *Prober {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Prober{
		log:         log,
		pingTimeout: 10 * time.Second,
		changes:     broadcast.NewStream[Status](),
	}
	p.measure = speedtestLatency
	for _, o := range opts {
		o(p)
	}
	return p
}

// Check measures connectivity once. Any failure maps to StatusNone; Check
// never returns an error.
func (p *Prober) Check(ctx context.Context) Status {
	cctx, cancel := context.WithTimeout(ctx, p.pingTimeout)
	defer cancel()

	status := StatusNone
	d, err := p.measure(cctx)
	if err != nil {
		p.log.Debug("connectivity check failed", logx.Err(err))
	} else {
		status = statusForLatency(d)
	}

	p.mu.Lock()
	changed := !p.checked || status != p.last
	p.last = status
	p.checked = true
	p.mu.Unlock()

	if changed {
		p.log.Info("connectivity status changed",
			logx.String("status", status.String()),
			logx.Duration("latency", d),
		)
		p.changes.Publish(status)
	}
	return status
}

// Last returns the most recent status, StatusNone before the first check.
func (p *Prober) Last() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Changes streams status transitions. Consecutive identical results are
// collapsed; only changes are delivered.
func (p *Prober) Changes() (<-chan Status, func()) {
	return p.changes.Subscribe()
}

func (p *Prober) Close() {
	p.changes.Close()
}

// speedtestLatency picks the nearest test server and pings it.
func speedtestLatency(ctx context.Context) (time.Duration, error) {
	client := st.New()

	servers, err := client.FetchServerListContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return 0, fmt.Errorf("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	s := servers[0]
	if err := s.PingTestContext(ctx, nil); err != nil {
		return 0, fmt.Errorf("ping test: %w", err)
	}
	return s.Latency, nil
}
