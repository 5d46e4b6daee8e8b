package sched

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskpace/internal/lifecycle"
	"taskpace/pkg/logx"
)

// timerService is the fully in-process variant: it owns the taskID ->
// recurring-timer mapping and implements replace/cancel/fire semantics
// without any host delegation.
//
// All mutations of the timer mapping go through s.mu (single-writer
// discipline); ticker goroutines never touch the maps.
type timerService struct {
	cfg    Config
	log    logx.Logger
	deps   Deps
	reg    *registry
	parser cron.Parser

	mu        sync.Mutex
	running   bool
	runCancel context.CancelFunc
	exec      *executor
	c         *cron.Cron
	pace      Pace
	tierStop  func()

	// base definitions (survive pacing, cleared by StopService)
	intervals map[string]time.Duration
	cronSpecs map[string]string

	// live timers (replaced in place, cleared by pacing and StopService)
	tickers map[string]chan struct{}
	cronIDs map[string]cron.EntryID
}

func newTimerService(cfg Config, deps Deps) *timerService {
	return &timerService{
		cfg:  cfg,
		log:  deps.Log,
		deps: deps,
		reg:  newRegistry(),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		intervals: map[string]time.Duration{},
		cronSpecs: map[string]string{},
		tickers:   map[string]chan struct{}{},
		cronIDs:   map[string]cron.EntryID{},
	}
}

func (s *timerService) Register(taskID string, fn TaskFunc) {
	s.reg.put(taskID, fn)
}

func (s *timerService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *timerService) StartService(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return true
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.exec = newExecutor(runCtx, s.cfg, s.deps, s.reg)
	s.c = cron.New(cron.WithParser(s.parser))
	s.c.Start()

	s.pace = Pace{Scale: 1}
	if s.deps.Tiers != nil {
		s.pace = s.deps.Policy(s.deps.Tiers.Tier())
		ch, unsub := s.deps.Tiers.TierChanges()
		s.tierStop = unsub
		go s.watchTiers(runCtx, ch)
	}

	s.running = true
	s.log.Info("scheduler started",
		logx.String("platform", PlatformInline),
		logx.Bool("paused", s.pace.Pause))
	return true
}

func (s *timerService) StopService() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false

	for _, stop := range s.tickers {
		close(stop)
	}
	s.tickers = map[string]chan struct{}{}
	s.intervals = map[string]time.Duration{}
	s.cronIDs = map[string]cron.EntryID{}
	s.cronSpecs = map[string]string{}

	c := s.c
	s.c = nil
	exec := s.exec
	s.exec = nil
	tierStop := s.tierStop
	s.tierStop = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if tierStop != nil {
		tierStop()
	}
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	if exec != nil {
		exec.stop()
	}
	s.log.Info("scheduler stopped")
	return true
}

func (s *timerService) SchedulePeriodicTask(interval time.Duration, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || interval <= 0 {
		return false
	}

	// Replace, never stack: any prior timer (interval or cron) goes first.
	s.cancelLocked(taskID)
	s.intervals[taskID] = interval
	if !s.pace.Pause {
		s.startTickerLocked(taskID)
	}
	s.log.Debug("periodic task scheduled",
		logx.String("task", taskID),
		logx.Duration("interval", interval))
	return true
}

// ScheduleCronTask installs a calendar schedule for taskID (inline-only
// extension). Calendar schedules pause with the tier policy but are not
// stretched by Pace.Scale: "daily at 03:00" means 03:00 in every tier.
func (s *timerService) ScheduleCronTask(spec, taskID string) bool {
	if _, err := s.parser.Parse(spec); err != nil {
		s.log.Warn("invalid cron spec", logx.String("task", taskID), logx.String("spec", spec), logx.Err(err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}

	s.cancelLocked(taskID)
	s.cronSpecs[taskID] = spec
	if !s.pace.Pause {
		if !s.addCronLocked(taskID, spec) {
			delete(s.cronSpecs, taskID)
			return false
		}
	}
	s.log.Debug("cron task scheduled", logx.String("task", taskID), logx.String("spec", spec))
	return true
}

// cancelLocked removes any active timer and base definition for taskID.
func (s *timerService) cancelLocked(taskID string) {
	if stop, ok := s.tickers[taskID]; ok {
		close(stop)
		delete(s.tickers, taskID)
	}
	delete(s.intervals, taskID)
	if eid, ok := s.cronIDs[taskID]; ok {
		s.c.Remove(eid)
		delete(s.cronIDs, taskID)
	}
	delete(s.cronSpecs, taskID)
}

func (s *timerService) startTickerLocked(taskID string) {
	stop := make(chan struct{})
	s.tickers[taskID] = stop
	d := s.pace.effective(s.intervals[taskID])
	go s.runTicker(taskID, d, stop)
}

func (s *timerService) addCronLocked(taskID, spec string) bool {
	eid, err := s.c.AddFunc(spec, func() { s.fire(taskID) })
	if err != nil {
		s.log.Warn("cron registration failed", logx.String("task", taskID), logx.Err(err))
		return false
	}
	s.cronIDs[taskID] = eid
	return true
}

func (s *timerService) runTicker(taskID string, d time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.fire(taskID)
		}
	}
}

// fire hands one invocation to the executor. The callback itself is looked
// up there, at execution time.
func (s *timerService) fire(taskID string) {
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()
	if exec != nil {
		exec.submit(taskID)
	}
}

func (s *timerService) watchTiers(ctx context.Context, ch <-chan lifecycle.Tier) {
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

// applyPace reinstalls every live timer under the new pace: paused tiers
// stop firing entirely, scaled tiers stretch interval cadences. Base
// definitions are kept so leaving the paused tier resumes every schedule.
func (s *timerService) applyPace(tier lifecycle.Tier, p Pace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || p == s.pace {
		return
	}
	s.pace = p

	for _, stop := range s.tickers {
		close(stop)
	}
	s.tickers = map[string]chan struct{}{}
	for id, eid := range s.cronIDs {
		s.c.Remove(eid)
		delete(s.cronIDs, id)
	}

	if p.Pause {
		s.log.Info("scheduling paused", logx.String("tier", tier.String()))
		return
	}
	for id := range s.intervals {
		s.startTickerLocked(id)
	}
	for id, spec := range s.cronSpecs {
		s.addCronLocked(id, spec)
	}
	s.log.Info("scheduling pace applied",
		logx.String("tier", tier.String()),
		logx.Float64("scale", p.Scale))
}
