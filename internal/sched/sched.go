package sched

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"taskpace/internal/eventbus"
	"taskpace/internal/lifecycle"
	"taskpace/pkg/logx"
)

// TaskFunc is a unit of recurring work. It must honor ctx cancellation.
type TaskFunc func(ctx context.Context) error

// Service is the capability set common to all platform variants.
type Service interface {
	// Register stores fn under taskID (pure bookkeeping, always succeeds).
	// Last-write-wins, applied live at fire time. Re-registering does not
	// re-schedule: an installed timer keeps its cadence.
	Register(taskID string, fn TaskFunc)

	// StartService is idempotent; it reports whether the variant's
	// background execution context is (now) up.
	StartService(ctx context.Context) bool

	// StopService stops the background execution context and cancels every
	// active timer. Registrations survive; schedules do not.
	StopService() bool

	IsRunning() bool

	// SchedulePeriodicTask installs a recurring invocation of taskID at
	// interval, replacing any prior timer for the same taskID (never two
	// concurrent timers per id). Returns false when the variant requires a
	// running background context and there is none.
	SchedulePeriodicTask(interval time.Duration, taskID string) bool
}

// Platform names accepted by New.
const (
	PlatformInline     = "inline"
	PlatformForeground = "foreground"
	PlatformBridge     = "bridge"
)

type Config struct {
	Platform string

	// Workers sizes the callback execution pool (default 2).
	Workers int
	// QueueSize bounds pending firings (default 64); overflow is dropped.
	QueueSize int
	// TaskTimeout bounds one callback invocation; 0 disables.
	TaskTimeout time.Duration
	// SpawnTimeout bounds the foreground host handshake; 0 uses the worker
	// package default.
	SpawnTimeout time.Duration
	// InboxBuffer sizes the foreground host's worker inbox; 0 uses the
	// worker package default.
	InboxBuffer int
}

// TierSource is the slice of the lifecycle machine the scheduler consumes.
type TierSource interface {
	Tier() lifecycle.Tier
	TierChanges() (<-chan lifecycle.Tier, func())
}

type Deps struct {
	Log logx.Logger
	Bus eventbus.Bus

	// Tiers enables lifecycle pacing when non-nil.
	Tiers  TierSource
	Policy Policy // nil means DefaultPolicy

	// Invoker is required by the bridge variant and ignored elsewhere.
	Invoker Invoker
}

func (d *Deps) fill() {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Policy == nil {
		d.Policy = DefaultPolicy
	}
}

// New selects the platform variant once. The choice is never re-evaluated
// at runtime.
func New(cfg Config, deps Deps) (Service, error) {
	deps.fill()
	switch strings.ToLower(strings.TrimSpace(cfg.Platform)) {
	case "", PlatformInline:
		return newTimerService(cfg, deps), nil
	case PlatformForeground:
		return newHostService(cfg, deps), nil
	case PlatformBridge:
		if deps.Invoker == nil {
			return nil, errors.New("sched: bridge platform requires an invoker")
		}
		return newBridgeService(cfg, deps), nil
	default:
		return nil, errors.New("sched: unknown platform " + cfg.Platform)
	}
}

// registry is the taskID -> callback mapping shared by all variants.
// Lookups happen at fire time so re-registration applies live.
type registry struct {
	mu sync.RWMutex
	m  map[string]TaskFunc
}

func newRegistry() *registry {
	return &registry{m: map[string]TaskFunc{}}
}

func (r *registry) put(taskID string, fn TaskFunc) {
	r.mu.Lock()
	r.m[taskID] = fn
	r.mu.Unlock()
}

func (r *registry) lookup(taskID string) TaskFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[taskID]
}
