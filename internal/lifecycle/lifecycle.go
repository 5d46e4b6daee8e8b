// Package lifecycle tracks application visibility state and derives the
// resource-usage tier that throttles background work.
//
// The machine has no polling: the host invokes OnStateChange whenever the
// application's activity state changes, and the machine republishes the
// state and (deduplicated) tier on its broadcast streams.
package lifecycle

import (
	"sync"

	"taskpace/internal/broadcast"
	"taskpace/pkg/logx"
)

// State is the application visibility/activity state.
type State int

const (
	// StateActive: the application is visible and focused.
	StateActive State = iota
	// StateTransitioningAway: momentarily losing focus (e.g. an incoming
	// call overlay or an app switcher).
	StateTransitioningAway
	// StateBackgrounded: not visible but still running.
	StateBackgrounded
	// StateDetachedOrHidden: fully inactive; a termination candidate.
	StateDetachedOrHidden
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTransitioningAway:
		return "transitioningAway"
	case StateBackgrounded:
		return "backgrounded"
	case StateDetachedOrHidden:
		return "detachedOrHidden"
	default:
		return "unknown"
	}
}

// Tier is the coarse resource-usage level derived from State.
type Tier int

const (
	TierFull Tier = iota
	TierReduced
	TierMinimal
	TierSuspended
)

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierReduced:
		return "reduced"
	case TierMinimal:
		return "minimal"
	case TierSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// TierFor is the deterministic State -> Tier mapping. It is re-applied on
// every state transition.
func TierFor(s State) Tier {
	switch s {
	case StateActive:
		return TierFull
	case StateTransitioningAway:
		return TierReduced
	case StateBackgrounded:
		return TierMinimal
	case StateDetachedOrHidden:
		return TierSuspended
	default:
		return TierFull
	}
}

// Machine is the activity state machine. Construct one per application and
// pass the reference to consumers; there is no process-wide instance.
type Machine struct {
	log logx.Logger

	mu    sync.Mutex
	state State
	tier  Tier

	states *broadcast.Stream[State]
	tiers  *broadcast.Stream[Tier]
}

func NewMachine(log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{
		log:    log,
		state:  StateActive,
		tier:   TierFull,
		states: broadcast.NewStream[State](),
		tiers:  broadcast.NewStream[Tier](),
	}
}

// OnStateChange is the single host callback. Every call publishes the new
// state; the derived tier is published only when it differs from the
// previously published tier.
func (m *Machine) OnStateChange(s State) {
	m.mu.Lock()
	m.state = s
	next := TierFor(s)
	changed := next != m.tier
	if changed {
		m.tier = next
	}
	m.mu.Unlock()

	m.states.Publish(s)
	if changed {
		m.log.Debug("resource tier changed",
			logx.String("state", s.String()),
			logx.String("tier", next.String()))
		m.tiers.Publish(next)
	}
}

// SetTier manually overrides the published tier, bypassing the state-derived
// mapping. The override stays current until the next state-driven
// recomputation overwrites it. Publishing is deduplicated like state-driven
// tiers so the tier stream never carries consecutive duplicates.
func (m *Machine) SetTier(t Tier) {
	m.mu.Lock()
	changed := t != m.tier
	if changed {
		m.tier = t
	}
	m.mu.Unlock()

	if changed {
		m.log.Debug("resource tier overridden", logx.String("tier", t.String()))
		m.tiers.Publish(t)
	}
}

// CurrentState returns the last state reported by the host.
func (m *Machine) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tier returns the currently published resource tier.
func (m *Machine) Tier() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// States subscribes to the state-change stream (every transition, in order).
func (m *Machine) States() (<-chan State, func()) {
	return m.states.Subscribe()
}

// TierChanges subscribes to the tier-change stream (deduplicated, in order).
func (m *Machine) TierChanges() (<-chan Tier, func()) {
	return m.tiers.Subscribe()
}

// Close tears down both streams. The machine is unusable afterwards.
func (m *Machine) Close() {
	m.states.Close()
	m.tiers.Close()
}
