package sched

import (
	"context"
	"sync"
	"time"

	"taskpace/internal/lifecycle"
	"taskpace/internal/worker"
	"taskpace/pkg/logx"
)

// Host protocol. Commands travel caller -> host fire-and-forget; the host
// answers timer fires with executeTask messages. No reply is ever awaited.
const (
	cmdScheduleTask = "scheduleTask"
	cmdStopService  = "stopService"
	cmdExecuteTask  = "executeTask"
)

type scheduleCmd struct {
	TaskID   string
	Interval time.Duration
}

// hostService is the foreground variant: it runs no timer loop itself and
// delegates timing to a host living inside a worker channel. Pacing
// is expressed through the same command protocol (stopService to pause,
// re-issued scheduleTask commands to resume or rescale).
type hostService struct {
	cfg  Config
	log  logx.Logger
	deps Deps
	reg  *registry

	mu        sync.Mutex
	running   bool
	ch        *worker.Channel
	exec      *executor
	runCancel context.CancelFunc
	msgStop   func()
	tierStop  func()
	pace      Pace
	intervals map[string]time.Duration
}

func newHostService(cfg Config, deps Deps) *hostService {
	return &hostService{
		cfg:       cfg,
		log:       deps.Log,
		deps:      deps,
		reg:       newRegistry(),
		intervals: map[string]time.Duration{},
	}
}

func (s *hostService) Register(taskID string, fn TaskFunc) {
	s.reg.put(taskID, fn)
}

func (s *hostService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.ch != nil && s.ch.Live()
}

func (s *hostService) StartService(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return true
	}

	opts := []worker.Option{worker.WithLogger(s.log)}
	if s.cfg.SpawnTimeout > 0 {
		opts = append(opts, worker.WithSpawnTimeout(s.cfg.SpawnTimeout))
	}
	if s.cfg.InboxBuffer > 0 {
		opts = append(opts, worker.WithInboxBuffer(s.cfg.InboxBuffer))
	}
	ch := worker.NewChannel(opts...)
	if err := ch.Spawn(ctx, hostEntry()); err != nil {
		// Startup failure degrades to false; the host boundary never throws.
		s.log.Warn("host spawn failed", logx.Err(err))
		return false
	}
	s.ch = ch

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.exec = newExecutor(runCtx, s.cfg, s.deps, s.reg)

	msgs, msgStop := ch.Messages()
	s.msgStop = msgStop
	go s.dispatch(runCtx, msgs)

	s.pace = Pace{Scale: 1}
	if s.deps.Tiers != nil {
		s.pace = s.deps.Policy(s.deps.Tiers.Tier())
		tiers, unsub := s.deps.Tiers.TierChanges()
		s.tierStop = unsub
		go s.watchTiers(runCtx, tiers)
	}

	s.running = true
	s.log.Info("scheduler started", logx.String("platform", PlatformForeground))
	return true
}

func (s *hostService) StopService() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false
	s.intervals = map[string]time.Duration{}

	ch := s.ch
	s.ch = nil
	exec := s.exec
	s.exec = nil
	msgStop := s.msgStop
	s.msgStop = nil
	tierStop := s.tierStop
	s.tierStop = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if ch != nil {
		// Best-effort: let the host cancel its timers, then terminate it.
		_ = ch.Send(worker.Message{Type: cmdStopService})
		ch.Kill()
	}
	if msgStop != nil {
		msgStop()
	}
	if tierStop != nil {
		tierStop()
	}
	if cancel != nil {
		cancel()
	}
	if exec != nil {
		exec.stop()
	}
	s.log.Info("scheduler stopped")
	return true
}

func (s *hostService) SchedulePeriodicTask(interval time.Duration, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.ch == nil || interval <= 0 {
		return false
	}
	s.intervals[taskID] = interval
	if s.pace.Pause {
		// Stored only; the schedule is issued when the tier allows again.
		return true
	}
	return s.sendScheduleLocked(taskID, s.pace.effective(interval))
}

func (s *hostService) sendScheduleLocked(taskID string, d time.Duration) bool {
	err := s.ch.Send(worker.Message{
		Type:    cmdScheduleTask,
		Payload: scheduleCmd{TaskID: taskID, Interval: d},
	})
	if err != nil {
		s.log.Warn("schedule command failed", logx.String("task", taskID), logx.Err(err))
		return false
	}
	return true
}

// dispatch resolves executeTask firings against the live registry.
func (s *hostService) dispatch(ctx context.Context, msgs <-chan worker.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if m.Type != cmdExecuteTask {
				continue
			}
			id, ok := m.Payload.(string)
			if !ok {
				continue
			}
			s.mu.Lock()
			exec := s.exec
			s.mu.Unlock()
			if exec != nil {
				exec.submit(id)
			}
		}
	}
}

func (s *hostService) watchTiers(ctx context.Context, ch <-chan lifecycle.Tier) {
	for {
		select {
		case <-ctx.Done():
			return
		case tier, ok := <-ch:
			if !ok {
				return
			}
			s.applyPace(tier, s.deps.Policy(tier))
		}
	}
}

func (s *hostService) applyPace(tier lifecycle.Tier, p Pace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.ch == nil || p == s.pace {
		return
	}
	s.pace = p

	if p.Pause {
		_ = s.ch.Send(worker.Message{Type: cmdStopService})
		s.log.Info("scheduling paused", logx.String("tier", tier.String()))
		return
	}
	for id, base := range s.intervals {
		s.sendScheduleLocked(id, p.effective(base))
	}
	s.log.Info("scheduling pace applied",
		logx.String("tier", tier.String()),
		logx.Float64("scale", p.Scale))
}

// hostEntry is the timer host that runs inside the worker channel. It owns the
// taskID -> ticker mapping with the same replace-not-stack semantics as the
// inline variant and reports every fire with an executeTask message.
func hostEntry() worker.Entry {
	return worker.PayloadAndReplyTask{
		Run: func(ctx context.Context, inbox <-chan worker.Message, reply func(worker.Message)) error {
			timers := map[string]chan struct{}{}
			defer func() {
				for _, stop := range timers {
					close(stop)
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return nil
				case m, ok := <-inbox:
					if !ok {
						return nil
					}
					switch m.Type {
					case cmdScheduleTask:
						cmd, ok := m.Payload.(scheduleCmd)
						if !ok || cmd.Interval <= 0 || cmd.TaskID == "" {
							continue // garbled command: ignore, never crash the host
						}
						if stop, ok := timers[cmd.TaskID]; ok {
							close(stop)
						}
						stop := make(chan struct{})
						timers[cmd.TaskID] = stop
						go hostTicker(ctx, cmd, stop, reply)
					case cmdStopService:
						for id, stop := range timers {
							close(stop)
							delete(timers, id)
						}
					}
				}
			}
		},
	}
}

func hostTicker(ctx context.Context, cmd scheduleCmd, stop <-chan struct{}, reply func(worker.Message)) {
	t := time.NewTicker(cmd.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			reply(worker.Message{Type: cmdExecuteTask, Payload: cmd.TaskID})
		}
	}
}
