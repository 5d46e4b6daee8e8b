// Package notify is the notification display collaborator. Delivery is
// fire-and-forget: callers never see an error, never block on the network,
// and never learn whether the host displayed anything.
package notify

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"golang.org/x/time/rate"

	"taskpace/pkg/logx"
)

var errQueueFull = errors.New("notification queue full")

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, title, body string) error
}

// Clearer is implemented by senders that can retract delivered notifications.
type Clearer interface {
	Clear(ctx context.Context) error
}

type Config struct {
	RatePerSec int
	QueueSize  int
}

type item struct {
	title string
	body  string
}

// Service is an async notification pipeline: queue + drain worker + rate
// limit. Safe for concurrent use.
type Service struct {
	log    logx.Logger
	sender Sender

	limiter *rate.Limiter

	mu        sync.Mutex
	queue     chan item
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if sender == nil {
		sender = LogSink{log: log}
	}
	return &Service{
		log:    log,
		sender: sender,
		// Burst = rate per sec so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan item, cfg.QueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		// already running
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in notify worker",
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
			}
		}()
		s.drain()
	}()
}

// Stop cancels delivery and waits for the drain worker. Queued items that
// have not been delivered are dropped; the contract is fire-and-forget.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.workerWG.Wait()
}

// ShowNotification enqueues a notification. It never blocks and never
// reports failure; a full queue or a dead sender only shows up in the logs.
func (s *Service) ShowNotification(ctx context.Context, title, body string) {
	if ctx != nil && ctx.Err() != nil {
		return
	}
	select {
	case s.queue <- item{title: title, body: body}:
	default:
		s.log.Debug("notification dropped", logx.String("title", title), logx.Err(errQueueFull))
	}
}

// ClearAll asks the sender to retract what it can. Best-effort; senders
// without retraction support ignore it.
func (s *Service) ClearAll(ctx context.Context) {
	c, ok := s.sender.(Clearer)
	if !ok {
		return
	}
	if err := c.Clear(ctx); err != nil {
		s.log.Debug("notification clear failed", logx.Err(err))
	}
}

func (s *Service) drain() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if err := s.sender.Send(ctx, it.title, it.body); err != nil {
				s.log.Warn("notification send failed",
					logx.String("title", it.title),
					logx.Err(err),
				)
				continue
			}
			s.log.Debug("notification sent", logx.String("title", it.title))
		}
	}
}

// LogSink is the fallback sender used when no delivery transport is
// configured. Notifications end up in the log and nowhere else.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) LogSink { return LogSink{log: log} }

func (l LogSink) Send(_ context.Context, title, body string) error {
	l.log.Info("notification", logx.String("title", title), logx.String("body", body))
	return nil
}
