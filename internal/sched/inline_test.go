package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"taskpace/internal/lifecycle"
	"taskpace/pkg/logx"
)

func startInline(t *testing.T, deps Deps) *timerService {
	t.Helper()
	s := newTimerService(Config{Workers: 2}, deps)
	if !s.StartService(context.Background()) {
		t.Fatal("StartService = false")
	}
	t.Cleanup(func() { s.StopService() })
	return s
}

func TestInlineScheduleRequiresRunningService(t *testing.T) {
	t.Parallel()
	s := newTimerService(Config{}, nopLogDeps())
	if s.SchedulePeriodicTask(time.Second, "t") {
		t.Fatal("schedule on a stopped service must fail")
	}
	if s.IsRunning() {
		t.Fatal("IsRunning = true before start")
	}
}

func TestInlineStartStopIdempotent(t *testing.T) {
	t.Parallel()
	s := newTimerService(Config{}, nopLogDeps())
	if !s.StartService(context.Background()) || !s.StartService(context.Background()) {
		t.Fatal("StartService must be idempotent")
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning = false after start")
	}
	if !s.StopService() || !s.StopService() {
		t.Fatal("StopService must be idempotent")
	}
	if s.IsRunning() {
		t.Fatal("IsRunning = true after stop")
	}
}

func TestInlinePeriodicFiring(t *testing.T) {
	t.Parallel()
	s := startInline(t, nopLogDeps())
	var n atomic.Int64
	s.Register("tick", countingTask(&n))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "tick") {
		t.Fatal("SchedulePeriodicTask = false")
	}
	waitFor(t, "three firings", func() bool { return n.Load() >= 3 })
}

func TestInlineReplaceNotStack(t *testing.T) {
	t.Parallel()
	s := startInline(t, nopLogDeps())
	var n atomic.Int64
	s.Register("job", countingTask(&n))

	if !s.SchedulePeriodicTask(20*time.Millisecond, "job") {
		t.Fatal("first schedule failed")
	}
	waitFor(t, "initial firings", func() bool { return n.Load() >= 2 })

	// Re-scheduling replaces the fast timer; the old cadence must stop.
	if !s.SchedulePeriodicTask(time.Hour, "job") {
		t.Fatal("re-schedule failed")
	}
	assertFrozen(t, "after replace", &n)
}

func TestInlineLiveLastWriteWins(t *testing.T) {
	t.Parallel()
	s := startInline(t, nopLogDeps())
	var first, second atomic.Int64
	s.Register("job", countingTask(&first))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "job") {
		t.Fatal("schedule failed")
	}
	waitFor(t, "first callback firing", func() bool { return first.Load() >= 1 })

	// Swapping the callback must take effect without re-scheduling.
	s.Register("job", countingTask(&second))
	waitFor(t, "second callback firing", func() bool { return second.Load() >= 2 })
	assertFrozen(t, "old callback", &first)
}

func TestInlineStopCancelsAllTimers(t *testing.T) {
	t.Parallel()
	s := startInline(t, nopLogDeps())
	var a, b atomic.Int64
	s.Register("a", countingTask(&a))
	s.Register("b", countingTask(&b))
	s.SchedulePeriodicTask(20*time.Millisecond, "a")
	s.SchedulePeriodicTask(20*time.Millisecond, "b")
	waitFor(t, "both firing", func() bool { return a.Load() >= 1 && b.Load() >= 1 })

	if !s.StopService() {
		t.Fatal("StopService = false")
	}
	assertFrozen(t, "task a after stop", &a)
	assertFrozen(t, "task b after stop", &b)

	// Restart requires explicit re-scheduling.
	if !s.StartService(context.Background()) {
		t.Fatal("restart failed")
	}
	assertFrozen(t, "task a after restart without schedule", &a)
	if !s.SchedulePeriodicTask(20*time.Millisecond, "a") {
		t.Fatal("re-schedule after restart failed")
	}
	prev := a.Load()
	waitFor(t, "firing after re-schedule", func() bool { return a.Load() > prev })
}

func TestInlineUnregisteredFiringIsSilentNoop(t *testing.T) {
	t.Parallel()
	s := startInline(t, nopLogDeps())
	if !s.SchedulePeriodicTask(10*time.Millisecond, "ghost") {
		t.Fatal("schedule failed")
	}
	time.Sleep(60 * time.Millisecond)
	if !s.IsRunning() {
		t.Fatal("service must survive firings with no callback")
	}
}

func TestInlinePauseAndResumeWithTiers(t *testing.T) {
	t.Parallel()
	m := lifecycle.NewMachine(logx.Nop())
	defer m.Close()

	s := startInline(t, Deps{Log: logx.Nop(), Tiers: m, Policy: DefaultPolicy})
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

func TestInlineScheduleWhilePausedDefersStart(t *testing.T) {
	t.Parallel()
	m := lifecycle.NewMachine(logx.Nop())
	defer m.Close()
	m.OnStateChange(lifecycle.StateDetachedOrHidden)

	s := startInline(t, Deps{Log: logx.Nop(), Tiers: m, Policy: DefaultPolicy})
	var n atomic.Int64
	s.Register("tick", countingTask(&n))
	if !s.SchedulePeriodicTask(20*time.Millisecond, "tick") {
		t.Fatal("scheduling while paused must still succeed")
	}
	assertFrozen(t, "while suspended from the start", &n)

	m.OnStateChange(lifecycle.StateActive)
	waitFor(t, "deferred schedule to fire", func() bool { return n.Load() >= 2 })
}

func TestInlineCronSchedule(t *testing.T) {
	t.Parallel()
	s := startInline(t, nopLogDeps())
	if s.ScheduleCronTask("not a spec", "cron-job") {
		t.Fatal("invalid cron spec must fail")
	}
	if !s.ScheduleCronTask("@every 1h", "cron-job") {
		t.Fatal("valid cron spec rejected")
	}

	// Replace semantics hold across schedule kinds.
	if !s.SchedulePeriodicTask(time.Hour, "cron-job") {
		t.Fatal("interval re-schedule failed")
	}
	s.mu.Lock()
	_, hasCron := s.cronIDs["cron-job"]
	_, hasTicker := s.tickers["cron-job"]
	s.mu.Unlock()
	if hasCron {
		t.Fatal("cron entry survived interval re-schedule")
	}
	if !hasTicker {
		t.Fatal("interval timer missing after re-schedule")
	}
}
