package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"taskpace/internal/lifecycle"
	"taskpace/pkg/logx"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func countingTask(n *atomic.Int64) TaskFunc {
	return func(ctx context.Context) error {
		n.Add(1)
		return nil
	}
}

// settle waits long enough for in-flight firings to drain, then asserts the
// counter stays (nearly) frozen over the observation window.
func assertFrozen(t *testing.T, what string, n *atomic.Int64) {
	t.Helper()
	time.Sleep(50 * time.Millisecond) // drain in-flight work
	before := n.Load()
	time.Sleep(150 * time.Millisecond)
	if after := n.Load(); after > before+1 {
		t.Fatalf("%s: counter advanced from %d to %d", what, before, after)
	}
}

func TestFactorySelectsVariant(t *testing.T) {
	t.Parallel()
	tests := []struct {
		platform string
		wantErr  bool
	}{
		{platform: "", wantErr: false},
		{platform: PlatformInline, wantErr: false},
		{platform: PlatformForeground, wantErr: false},
		{platform: "Inline", wantErr: false},
		{platform: "alarm-manager", wantErr: true},
	}
	for _, tt := range tests {
		_, err := New(Config{Platform: tt.platform}, Deps{})
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(platform=%q) error = %v, wantErr %v", tt.platform, err, tt.wantErr)
		}
	}
}

func TestFactoryBridgeRequiresInvoker(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Platform: PlatformBridge}, Deps{}); err == nil {
		t.Fatal("expected error without invoker")
	}
	if _, err := New(Config{Platform: PlatformBridge}, Deps{Invoker: &fakeInvoker{}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()
	if p := DefaultPolicy(lifecycle.TierFull); p.Pause || p.Scale != 1 {
		t.Fatalf("full tier pace = %+v", p)
	}
	if p := DefaultPolicy(lifecycle.TierReduced); p.Pause || p.Scale <= 1 {
		t.Fatalf("reduced tier pace = %+v", p)
	}
	if p := DefaultPolicy(lifecycle.TierMinimal); p.Pause || p.Scale <= DefaultPolicy(lifecycle.TierReduced).Scale {
		t.Fatalf("minimal tier pace = %+v", p)
	}
	if p := DefaultPolicy(lifecycle.TierSuspended); !p.Pause {
		t.Fatalf("suspended tier pace = %+v", p)
	}
}

func TestPaceEffectiveClampsToBase(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	if got := (Pace{Scale: 0.5}).effective(base); got != base {
		t.Fatalf("effective = %v, want %v", got, base)
	}
	if got := (Pace{Scale: 2}).effective(base); got != 200*time.Millisecond {
		t.Fatalf("effective = %v, want 200ms", got)
	}
}

func TestRegistryLastWriteWins(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	var a, b atomic.Int64
	r.put("t", countingTask(&a))
	r.put("t", countingTask(&b))
	fn := r.lookup("t")
	_ = fn(context.Background())
	if a.Load() != 0 || b.Load() != 1 {
		t.Fatalf("a=%d b=%d, want 0/1", a.Load(), b.Load())
	}
	if r.lookup("missing") != nil {
		t.Fatal("lookup of unknown id must be nil")
	}
}

func nopLogDeps() Deps {
	return Deps{Log: logx.Nop()}
}
