package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"taskpace/internal/lifecycle"
	"taskpace/pkg/logx"
)

func startHost(t *testing.T, deps Deps) *hostService {
	t.Helper()
	s := newHostService(Config{Workers: 2}, deps)
	if !s.StartService(context.Background()) {
		t.Fatal("StartService = false")
	}
	t.Cleanup(func() { s.StopService() })
	return s
}

func TestHostScheduleRequiresRunningService(t *testing.T) {
	t.Parallel()
	s := newHostService(Config{}, nopLogDeps())
	if s.SchedulePeriodicTask(time.Second, "t") {
		t.Fatal("schedule without a running host must fail")
	}
}

func TestHostPeriodicFiring(t *testing.T) {
	t.Parallel()
	s := startHost(t, nopLogDeps())
	if !s.IsRunning() {
		t.Fatal("IsRunning = false after start")
	}
	var n atomic.Int64
	s.Register("tick", countingTask(&n))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "tick") {
		t.Fatal("SchedulePeriodicTask = false")
	}
	waitFor(t, "host-driven firings", func() bool { return n.Load() >= 3 })
}

func TestHostReplaceNotStack(t *testing.T) {
	t.Parallel()
	s := startHost(t, nopLogDeps())
	var n atomic.Int64
	s.Register("job", countingTask(&n))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "job") {
		t.Fatal("first schedule failed")
	}
	waitFor(t, "initial firings", func() bool { return n.Load() >= 2 })

	if !s.SchedulePeriodicTask(time.Hour, "job") {
		t.Fatal("re-schedule failed")
	}
	assertFrozen(t, "after replace", &n)
}

func TestHostLiveLastWriteWins(t *testing.T) {
	t.Parallel()
	s := startHost(t, nopLogDeps())
	var first, second atomic.Int64
	s.Register("job", countingTask(&first))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "job") {
		t.Fatal("schedule failed")
	}
	waitFor(t, "first callback firing", func() bool { return first.Load() >= 1 })

	s.Register("job", countingTask(&second))
	waitFor(t, "second callback firing", func() bool { return second.Load() >= 2 })
	assertFrozen(t, "old callback", &first)
}

func TestHostStopTerminatesHostAndTimers(t *testing.T) {
	t.Parallel()
	s := startHost(t, nopLogDeps())
	var n atomic.Int64
	s.Register("tick", countingTask(&n))
	s.SchedulePeriodicTask(20*time.Millisecond, "tick")
	waitFor(t, "firings", func() bool { return n.Load() >= 1 })

	if !s.StopService() {
		t.Fatal("StopService = false")
	}
	if s.IsRunning() {
		t.Fatal("IsRunning = true after stop")
	}
	assertFrozen(t, "after stop", &n)

	// Restart spawns a fresh host; schedules do not survive.
	if !s.StartService(context.Background()) {
		t.Fatal("restart failed")
	}
	assertFrozen(t, "after restart without schedule", &n)
}

func TestHostPauseAndResumeWithTiers(t *testing.T) {
	t.Parallel()
	m := lifecycle.NewMachine(logx.Nop())
	defer m.Close()

	s := startHost(t, Deps{Log: logx.Nop(), Tiers: m, Policy: DefaultPolicy})
	var n atomic.Int64
	s.Register("tick", countingTask(&n))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "tick") {
		t.Fatal("schedule failed")
	}
	waitFor(t, "firings while active", func() bool { return n.Load() >= 2 })

	m.OnStateChange(lifecycle.StateDetachedOrHidden)
	waitFor(t, "pause to apply", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.pace.Pause
	})
	assertFrozen(t, "while suspended", &n)

	m.OnStateChange(lifecycle.StateActive)
	prev := n.Load()
	waitFor(t, "firings after resume", func() bool { return n.Load() >= prev+2 })
}
