package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"taskpace/internal/eventbus"
	"taskpace/pkg/logx"
)

const defaultExecQueue = 64

// executor runs callbacks off the timer goroutines on a small worker pool
// with panic recovery. One executor lives per service run; StopService
// discards it together with any still-queued firings.
type executor struct {
	log     logx.Logger
	bus     eventbus.Bus
	reg     *registry
	timeout time.Duration

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newExecutor(ctx context.Context, cfg Config, deps Deps, reg *registry) *executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultExecQueue
	}
	e := &executor{
		log:     deps.Log,
		bus:     deps.Bus,
		reg:     reg,
		timeout: cfg.TaskTimeout,
		queue:   make(chan string, queueSize),
		stopCh:  make(chan struct{}),
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer e.wg.Done()
			e.worker(ctx, idx)
		}()
	}
	return e
}

// submit enqueues a firing for taskID. Non-blocking: when the pool is
// saturated the firing is dropped with a warning rather than stalling the
// timer goroutine.
func (e *executor) submit(taskID string) {
	select {
	case e.queue <- taskID:
	case <-e.stopCh:
	default:
		e.log.Warn("task queue full; dropping firing", logx.String("task", taskID))
	}
}

func (e *executor) stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *executor) worker(ctx context.Context, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case id := <-e.queue:
			e.execOne(ctx, id)
		}
	}
}

func (e *executor) execOne(ctx context.Context, taskID string) {
	fn := e.reg.lookup(taskID)
	if fn == nil {
		// A stale schedule must not crash; firing without a callback is a
		// silent no-op.
		e.log.Debug("no callback registered; skipping", logx.String("task", taskID))
		return
	}

	start := time.Now()
	e.publish(eventbus.TypeTaskFired, taskID, start, 0, nil)

	runCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	err := e.run(runCtx, fn)
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	if err != nil {
		e.log.Warn("task failed", logx.String("task", taskID), logx.Err(err), logx.Duration("dur", dur))
		e.publish(eventbus.TypeTaskFailed, taskID, start, dur, err)
		return
	}
	e.log.Debug("task completed", logx.String("task", taskID), logx.Duration("dur", dur))
	e.publish(eventbus.TypeTaskFinished, taskID, start, dur, nil)
}

func (e *executor) run(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in task callback",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// TaskEvent is the bus payload for task lifecycle events.
type TaskEvent struct {
	TaskID   string
	Started  time.Time
	Duration time.Duration
	Error    string
}

func (e *executor) publish(typ, taskID string, started time.Time, dur time.Duration, err error) {
	if e.bus == nil {
		return
	}
	ev := TaskEvent{TaskID: taskID, Started: started, Duration: dur}
	if err != nil {
		ev.Error = err.Error()
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
