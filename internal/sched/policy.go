package sched

import (
	"time"

	"taskpace/internal/lifecycle"
)

// Pace is the scheduling posture for one resource tier.
type Pace struct {
	// Scale stretches periodic intervals (1 = base cadence). Values < 1 are
	// clamped to 1: a tier change never speeds tasks up beyond their base.
	Scale float64
	// Pause stops firing entirely while the tier holds.
	Pause bool
}

// Policy maps a resource tier to a Pace. Consulted on every tier change.
type Policy func(lifecycle.Tier) Pace

// DefaultPolicy keeps full cadence while active, stretches intervals as the
// application recedes, and pauses outright when suspended.
func DefaultPolicy(t lifecycle.Tier) Pace {
	switch t {
	case lifecycle.TierFull:
		return Pace{Scale: 1}
	case lifecycle.TierReduced:
		return Pace{Scale: 2}
	case lifecycle.TierMinimal:
		return Pace{Scale: 4}
	case lifecycle.TierSuspended:
		return Pace{Pause: true}
	default:
		return Pace{Scale: 1}
	}
}

// effective applies the pace to a base interval.
func (p Pace) effective(base time.Duration) time.Duration {
	if p.Scale <= 1 {
		return base
	}
	return time.Duration(float64(base) * p.Scale)
}
