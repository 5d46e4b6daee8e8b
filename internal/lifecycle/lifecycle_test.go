package lifecycle

import (
	"testing"
	"time"

	"taskpace/pkg/logx"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("stream terminated early")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream value")
		panic("unreachable")
	}
}

func TestTierMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		tier  Tier
	}{
		{StateActive, TierFull},
		{StateTransitioningAway, TierReduced},
		{StateBackgrounded, TierMinimal},
		{StateDetachedOrHidden, TierSuspended},
	}
	for _, tt := range tests {
		if got := TierFor(tt.state); got != tt.tier {
			t.Fatalf("TierFor(%v) = %v, want %v", tt.state, got, tt.tier)
		}
	}
}

func TestTransitionsPublishStatesAndDedupedTiers(t *testing.T) {
	t.Parallel()
	m := NewMachine(logx.Nop())
	defer m.Close()

	states, cancelS := m.States()
	tiers, cancelT := m.TierChanges()
	defer cancelS()
	defer cancelT()

	seq := []State{StateTransitioningAway, StateBackgrounded, StateActive}
	for _, s := range seq {
		m.OnStateChange(s)
	}

	for i, want := range seq {
		if got := recv(t, states); got != want {
			t.Fatalf("state[%d] = %v, want %v", i, got, want)
		}
	}

	wantTiers := []Tier{TierReduced, TierMinimal, TierFull}
	for i, want := range wantTiers {
		if got := recv(t, tiers); got != want {
			t.Fatalf("tier[%d] = %v, want %v", i, got, want)
		}
	}
	if m.CurrentState() != StateActive || m.Tier() != TierFull {
		t.Fatalf("final state/tier = %v/%v", m.CurrentState(), m.Tier())
	}
}

func TestRepeatedStatePublishesStateButNotTier(t *testing.T) {
	t.Parallel()
	m := NewMachine(logx.Nop())
	defer m.Close()

	states, cancelS := m.States()
	tiers, cancelT := m.TierChanges()
	defer cancelS()
	defer cancelT()

	m.OnStateChange(StateBackgrounded)
	m.OnStateChange(StateBackgrounded) // same state: state published, tier deduped
	m.OnStateChange(StateActive)

	for i, want := range []State{StateBackgrounded, StateBackgrounded, StateActive} {
		if got := recv(t, states); got != want {
			t.Fatalf("state[%d] = %v, want %v", i, got, want)
		}
	}
	for i, want := range []Tier{TierMinimal, TierFull} {
		if got := recv(t, tiers); got != want {
			t.Fatalf("tier[%d] = %v, want %v (duplicate not deduped?)", i, got, want)
		}
	}
}

func TestSetTierOverride(t *testing.T) {
	t.Parallel()
	m := NewMachine(logx.Nop())
	defer m.Close()

	tiers, cancel := m.TierChanges()
	defer cancel()

	m.SetTier(TierMinimal)
	if got := recv(t, tiers); got != TierMinimal {
		t.Fatalf("override tier = %v, want %v", got, TierMinimal)
	}
	if m.Tier() != TierMinimal {
		t.Fatalf("Tier() = %v after override", m.Tier())
	}

	// Next state-driven recomputation overwrites the override.
	m.OnStateChange(StateActive)
	if got := recv(t, tiers); got != TierFull {
		t.Fatalf("tier after recomputation = %v, want %v", got, TierFull)
	}

	// Overriding to the already-published tier is deduplicated.
	m.SetTier(TierFull)
	m.SetTier(TierSuspended)
	if got := recv(t, tiers); got != TierSuspended {
		t.Fatalf("tier = %v, want %v", got, TierSuspended)
	}
}
