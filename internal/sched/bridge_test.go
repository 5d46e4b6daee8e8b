package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeInvoker records calls and serves canned results per method.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []string
	args    map[string]map[string]any
	results map[string]any
	err     error
}

func (f *fakeInvoker) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if f.args == nil {
		f.args = map[string]map[string]any{}
	}
	f.args[method] = args
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		if res, ok := f.results[method]; ok {
			return res, nil
		}
	}
	return true, nil
}

func (f *fakeInvoker) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

func newBridge(t *testing.T, inv *fakeInvoker) *bridgeService {
	t.Helper()
	deps := nopLogDeps()
	deps.Invoker = inv
	deps.fill()
	return newBridgeService(Config{Workers: 1}, deps)
}

func TestBridgeStartStop(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{}
	s := newBridge(t, inv)

	if !s.StartService(context.Background()) {
		t.Fatal("StartService = false")
	}
	if !s.IsRunning() || !inv.called(MethodStartService) {
		t.Fatal("start not forwarded to host")
	}
	if !s.StartService(context.Background()) {
		t.Fatal("StartService must be idempotent")
	}
	if !s.StopService() {
		t.Fatal("StopService = false")
	}
	if s.IsRunning() || !inv.called(MethodStopService) {
		t.Fatal("stop not forwarded to host")
	}
}

func TestBridgeHostUnreachableDegradesToFalse(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{err: errors.New("host gone")}
	s := newBridge(t, inv)
	if s.StartService(context.Background()) {
		t.Fatal("StartService must report false when the host is unreachable")
	}
	if s.IsRunning() {
		t.Fatal("service must not be running after failed start")
	}
}

func TestBridgeGarbledResponseDegradesToFalse(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{results: map[string]any{MethodStartService: "yes"}}
	s := newBridge(t, inv)
	if s.StartService(context.Background()) {
		t.Fatal("non-boolean host response must map to false")
	}
}

func TestBridgeScheduleForwardsArgs(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{}
	s := newBridge(t, inv)
	if s.SchedulePeriodicTask(time.Minute, "sync") {
		t.Fatal("schedule before start must fail")
	}
	if !s.StartService(context.Background()) {
		t.Fatal("StartService failed")
	}
	defer s.StopService()

	if !s.SchedulePeriodicTask(90*time.Second, "sync") {
		t.Fatal("SchedulePeriodicTask = false")
	}
	inv.mu.Lock()
	args := inv.args[MethodSchedule]
	inv.mu.Unlock()
	if args["taskId"] != "sync" {
		t.Fatalf("taskId = %v", args["taskId"])
	}
	if args["intervalSeconds"] != int64(90) {
		t.Fatalf("intervalSeconds = %v, want 90", args["intervalSeconds"])
	}
}

func TestBridgeExecuteTaskRunsCallback(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{}
	s := newBridge(t, inv)
	if !s.StartService(context.Background()) {
		t.Fatal("StartService failed")
	}
	defer s.StopService()

	var n atomic.Int64
	s.Register("sync", countingTask(&n))
	if !inv.called(MethodRegisterTask) {
		t.Fatal("register not forwarded to host")
	}

	s.ExecuteTask("sync")
	waitFor(t, "callback execution", func() bool { return n.Load() == 1 })

	// Unknown taskID is a silent no-op.
	s.ExecuteTask("ghost")
	time.Sleep(20 * time.Millisecond)
	if n.Load() != 1 {
		t.Fatalf("counter = %d after ghost firing", n.Load())
	}
}
