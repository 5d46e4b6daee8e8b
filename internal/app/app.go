// Package app constructs and owns every component of the daemon. All wiring
// is explicit: components are built once and passed by reference, and Stop
// walks them back down in reverse order.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskpace/internal/config"
	"taskpace/internal/eventbus"
	"taskpace/internal/lifecycle"
	"taskpace/internal/notify"
	"taskpace/internal/probe"
	"taskpace/internal/runtime/supervisor"
	"taskpace/internal/sched"
	"taskpace/internal/storage"
	"taskpace/pkg/logx"
)

const probeTaskID = "connectivity.probe"

// Option customizes App construction.
type Option func(*App)

// WithInvoker supplies the host transport required by the bridge scheduler
// platform. Without it a bridge config fails at construction.
func WithInvoker(inv sched.Invoker) Option {
	return func(a *App) { a.invoker = inv }
}

type App struct {
	cfgPath string
	cfgMgr  *config.Manager
	invoker sched.Invoker
	logSvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	machine  *lifecycle.Machine
	sched    sched.Service
	store    storage.KV
	prober   *probe.Prober
	notifier *notify.Service

	probeInterval time.Duration

	mu      sync.Mutex
	sup     *supervisor.Supervisor
	lastCfg *config.Config
	started bool
}

// New loads and validates the config file at cfgPath and builds every
// component. An empty cfgPath runs on the built-in defaults.
func New(cfgPath string, opts ...Option) (*App, error) {
	mgr := config.NewManager(cfgPath)

	var cfg *config.Config
	if strings.TrimSpace(cfgPath) == "" {
		cfg = config.Default()
		mgr.Commit(cfg)
	} else {
		var err error
		cfg, err = mgr.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logSvc, log := logx.New(logxConfig(cfg.Logging))
	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	a := &App{
		cfgPath: strings.TrimSpace(cfgPath),
		cfgMgr:  mgr,
		logSvc:  logSvc,
		log:     log,
		bus:     eventbus.New(),
		lastCfg: cfg,
	}
	for _, o := range opts {
		o(a)
	}
	a.machine = lifecycle.NewMachine(log.With(logx.String("component", "lifecycle")))

	if err := a.buildCollaborators(cfg); err != nil {
		logSvc.Close()
		return nil, err
	}
	if err := a.buildScheduler(cfg); err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildCollaborators(cfg *config.Config) error {
	if s := cfg.Storage; s != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		if err != nil {
			return err
		}
		kv, err := storage.Open(storage.Config{
			Driver:         s.Driver,
			Path:           s.Path,
			BusyTimeout:    busy,
			Namespace:      s.Namespace,
			ObfuscationKey: s.ObfuscationKey,
		}, a.log.With(logx.String("component", "storage")))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.store = kv
	}

	if n := cfg.Notify; n != nil && n.Enabled {
		nlog := a.log.With(logx.String("component", "notify"))
		var sender notify.Sender
		if t := n.Telegram; t != nil {
			poll, err := config.ParseDurationField("notify.telegram.poll_timeout", t.PollTimeout)
			if err != nil {
				return err
			}
			tg, err := notify.NewTelegram(notify.TelegramConfig{
				Token:       t.Token,
				ChatID:      t.ChatID,
				ThreadID:    t.ThreadID,
				PollTimeout: poll,
			}, nlog)
			if err != nil {
				return fmt.Errorf("telegram transport: %w", err)
			}
			sender = tg
		} else {
			sender = notify.NewLogSink(nlog)
		}
		a.notifier = notify.New(notify.Config{RatePerSec: n.RatePerSec}, sender, nlog)
	}

	if p := cfg.Probe; p != nil && p.Enabled {
		interval, err := config.ParseDurationOrDefault("probe.interval", p.Interval, 5*time.Minute)
		if err != nil {
			return err
		}
		ping, err := config.ParseDurationField("probe.ping_timeout", p.PingTimeout)
		if err != nil {
			return err
		}
		opts := []probe.Option{}
		if ping > 0 {
			opts = append(opts, probe.WithPingTimeout(ping))
		}
		a.prober = probe.New(a.log.With(logx.String("component", "probe")), opts...)
		a.probeInterval = interval
	}
	return nil
}

func (a *App) buildScheduler(cfg *config.Config) error {
	taskTimeout, err := config.ParseDurationField("scheduler.task_timeout", cfg.Scheduler.TaskTimeout)
	if err != nil {
		return err
	}
	spawnTimeout, err := config.ParseDurationField("worker.spawn_timeout", cfg.Worker.SpawnTimeout)
	if err != nil {
		return err
	}

	deps := sched.Deps{
		Log:     a.log.With(logx.String("component", "sched")),
		Bus:     a.bus,
		Invoker: a.invoker,
	}
	if cfg.Scheduler.Pacing == nil || *cfg.Scheduler.Pacing {
		deps.Tiers = a.machine
	}

	svc, err := sched.New(sched.Config{
		Platform:     cfg.Scheduler.Platform,
		Workers:      cfg.Scheduler.Workers,
		QueueSize:    cfg.Scheduler.QueueSize,
		TaskTimeout:  taskTimeout,
		SpawnTimeout: spawnTimeout,
		InboxBuffer:  cfg.Worker.InboxBuffer,
	}, deps)
	if err != nil {
		return err
	}
	a.sched = svc
	return nil
}

// Start brings the daemon up: notifier, scheduler, probe task, config watch.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("component", "supervisor"))))
	a.sup = sup

	if a.notifier != nil {
		a.notifier.Start(sup.Context())
		if a.lastCfg.Logging.Notify.Enabled {
			a.logSvc.SetNotifier(a.notifier)
		}
	}

	if !a.sched.StartService(sup.Context()) {
		sup.Cancel()
		return fmt.Errorf("scheduler failed to start (platform %q)", a.lastCfg.Scheduler.Platform)
	}

	if a.prober != nil {
		p := a.prober
		a.sched.Register(probeTaskID, func(ctx context.Context) error {
			status := p.Check(ctx)
			a.bus.Publish(eventbus.Event{
				Type: eventbus.TypeProbeStatus,
				Time: time.Now(),
				Data: status,
			})
			return nil
		})
		if !a.sched.SchedulePeriodicTask(a.probeInterval, probeTaskID) {
			a.log.Warn("probe task could not be scheduled")
		}
	}

	// Log bus events for observability; components can also subscribe themselves.
	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Debug-level to avoid noise from frequent schedules.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.cfgPath != "" {
		sup.GoRestart("config.watch", a.cfgMgr.Watch)
		sup.Go0("config.apply", a.applyLoop)
	}

	a.started = true
	a.log.Info("daemon started",
		logx.String("platform", a.lastCfg.Scheduler.Platform),
		logx.Bool("storage", a.store != nil),
		logx.Bool("probe", a.prober != nil),
		logx.Bool("notify", a.notifier != nil),
	)
	return nil
}

// applyLoop consumes config reloads and applies the hot-swappable parts
// (logging sinks). Structural sections (scheduler platform, storage driver)
// require a restart; the loop only reports them.
func (a *App) applyLoop(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.mu.Lock()
			old := a.lastCfg
			a.lastCfg = cfg
			a.mu.Unlock()

			changed, attrs := config.SummarizeChange(old, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append(attrs, logx.Any("sections", changed))...)
			a.bus.Publish(eventbus.Event{
				Type: eventbus.TypeConfigReload,
				Time: time.Now(),
				Data: changed,
			})

			for _, section := range changed {
				switch section {
				case "logging":
					a.logSvc.Apply(logxConfig(cfg.Logging))
				default:
					a.log.Warn("config section needs restart to take effect",
						logx.String("section", section))
				}
			}
		}
	}
}

// Stop shuts everything down in reverse construction order.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	started := a.started
	a.started = false
	a.mu.Unlock()
	if !started {
		return nil
	}

	a.sched.StopService()
	if a.prober != nil {
		a.prober.Close()
	}
	if a.notifier != nil {
		a.notifier.ClearAll(ctx)
		a.notifier.Stop()
	}
	a.machine.Close()

	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if sup != nil {
		if err := sup.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.log.Info("daemon stopped")
	if err := a.logSvc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Lifecycle exposes the activity state machine so the host embedding this
// daemon can feed visibility transitions into it.
func (a *App) Lifecycle() *lifecycle.Machine { return a.machine }

// Scheduler exposes the periodic task service for task registration.
func (a *App) Scheduler() sched.Service { return a.sched }

// Bus exposes the operational event bus (task firings, config reloads,
// probe status) for embedders that want to observe them.
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Log() logx.Logger { return a.log }

func logxConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:    lc.Level,
		Console:  lc.Console,
		Journald: lc.Journald,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    lc.Notify.Enabled,
			MinLevel:   lc.Notify.MinLevel,
			RatePerSec: lc.Notify.RatePerSec,
		},
	}
}
