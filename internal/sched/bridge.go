package sched

import (
	"context"
	"sync"
	"time"

	"taskpace/pkg/logx"
)

// Invoker is the narrow request/response channel to a host process that
// owns the actual background-task machinery. It is the only transport the
// bridge variant has; there is no in-process timer capability behind it.
type Invoker interface {
	Invoke(ctx context.Context, method string, args map[string]any) (any, error)
}

// Methods the bridge issues on its Invoker.
const (
	MethodRegisterTask = "registerTask"
	MethodStartService = "startService"
	MethodStopService  = "stopService"
	MethodSchedule     = "schedulePeriodicTask"
)

const invokeTimeout = 5 * time.Second

// bridgeService forwards scheduling to the host and translates every host
// failure (unreachable, garbled response) into false rather than
// propagating it. The callback registry stays caller-side: the host calls
// back into ExecuteTask when a schedule fires.
//
// Pacing is deliberately not applied here: the host OS already throttles
// background task execution on this platform.
type bridgeService struct {
	cfg  Config
	log  logx.Logger
	deps Deps
	reg  *registry
	inv  Invoker

	mu        sync.Mutex
	running   bool
	exec      *executor
	runCancel context.CancelFunc
}

func newBridgeService(cfg Config, deps Deps) *bridgeService {
	return &bridgeService{
		cfg:  cfg,
		log:  deps.Log,
		deps: deps,
		reg:  newRegistry(),
		inv:  deps.Invoker,
	}
}

func (s *bridgeService) Register(taskID string, fn TaskFunc) {
	s.reg.put(taskID, fn)
	// Best-effort host-side bookkeeping; local registration alone decides
	// what runs when the host fires.
	ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
	defer cancel()
	_, _ = s.inv.Invoke(ctx, MethodRegisterTask, map[string]any{"taskId": taskID})
}

func (s *bridgeService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *bridgeService) StartService(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return true
	}
	if !s.invokeBool(ctx, MethodStartService, nil) {
		return false
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.exec = newExecutor(runCtx, s.cfg, s.deps, s.reg)
	s.running = true
	s.log.Info("scheduler started", logx.String("platform", PlatformBridge))
	return true
}

func (s *bridgeService) StopService() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false
	exec := s.exec
	s.exec = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	ctx, cancelInv := context.WithTimeout(context.Background(), invokeTimeout)
	ok := s.invokeBool(ctx, MethodStopService, nil)
	cancelInv()

	if cancel != nil {
		cancel()
	}
	if exec != nil {
		exec.stop()
	}
	s.log.Info("scheduler stopped")
	return ok
}

func (s *bridgeService) SchedulePeriodicTask(interval time.Duration, taskID string) bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running || interval <= 0 {
		return false
	}

	secs := int64(interval / time.Second)
	if secs < 1 {
		secs = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
	defer cancel()
	return s.invokeBool(ctx, MethodSchedule, map[string]any{
		"taskId":          taskID,
		"intervalSeconds": secs,
	})
}

// ExecuteTask is the host's reentry point for a firing. An unknown or
// stale taskID is a silent no-op.
func (s *bridgeService) ExecuteTask(taskID string) {
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()
	if exec != nil {
		exec.submit(taskID)
	}
}

// invokeBool maps every failure mode (transport error, missing or garbled
// result) to false.
func (s *bridgeService) invokeBool(ctx context.Context, method string, args map[string]any) bool {
	res, err := s.inv.Invoke(ctx, method, args)
	if err != nil {
		s.log.Warn("host invoke failed", logx.String("method", method), logx.Err(err))
		return false
	}
	ok, isBool := res.(bool)
	if !isBool {
		s.log.Warn("host returned non-boolean result", logx.String("method", method))
		return false
	}
	return ok
}
