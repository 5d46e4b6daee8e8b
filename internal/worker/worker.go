// Package worker spawns isolated execution contexts that communicate with
// their caller only by message passing.
//
// A Channel owns at most one worker at a time (1:1 binding, not a pool).
// Spawn performs a handshake: the worker's first message carries its own
// inbound endpoint, so a freshly started worker can report its address
// without a pre-shared rendezvous channel. The cost is an explicit timeout
// to detect a worker that never starts listening.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"taskpace/internal/broadcast"
	"taskpace/pkg/logx"
)

// DefaultSpawnTimeout bounds the wait for the worker handshake.
const DefaultSpawnTimeout = 5 * time.Second

const defaultInboxBuffer = 64

// handshakeType tags the worker's first message. It is consumed by the
// channel runtime and never surfaced on Messages().
const handshakeType = "handshake"

// Message is the envelope for all worker<->caller traffic after handshake.
// Ordering is FIFO per channel; nothing is guaranteed across channels.
type Message struct {
	Type    string
	Payload any
}

// Option customizes a Channel.
type Option func(*Channel)

func WithSpawnTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.spawnTimeout = d
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Channel) { c.log = log }
}

func WithInboxBuffer(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.inboxBuf = n
		}
	}
}

// Channel is the caller-side owner of one worker's communication endpoints.
// It is not meant to be shared: the caller that spawned the worker owns it.
type Channel struct {
	log          logx.Logger
	spawnTimeout time.Duration
	inboxBuf     int

	// handshakeGate, when non-nil, delays the worker-side handshake until
	// the gate is closed. Test seam for the spawn-timeout path.
	handshakeGate chan struct{}

	mu       sync.Mutex
	spawning bool
	disposed bool
	run      *run
}

// run holds the state of one spawned worker between handshake and kill.
type run struct {
	cancel context.CancelFunc
	outbox chan Message
	msgs   *broadcast.Stream[Message]
	killed chan struct{}
	once   sync.Once
}

func NewChannel(opts ...Option) *Channel {
	c := &Channel{
		log:          logx.Nop(),
		spawnTimeout: DefaultSpawnTimeout,
		inboxBuf:     defaultInboxBuffer,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Live reports whether a handshake has completed and the worker has not
// been killed or exited.
func (c *Channel) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// Spawn starts entry in a new isolated goroutine and waits for its
// handshake. It fails with ErrAlreadyRunning if this channel already owns a
// live worker, with ErrSpawnTimeout if the handshake does not arrive in
// time (the partial worker is cancelled first), and with ErrDisposed after
// Dispose. Spawn is the only operation with an intrinsic wait.
func (c *Channel) Spawn(ctx context.Context, entry Entry) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.run != nil || c.spawning {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.spawning = true
	gate := c.handshakeGate
	c.mu.Unlock()

	// The worker context is detached from the spawn context: once live, the
	// worker's lifetime is bounded by Kill/Dispose, not by the spawn call.
	wctx, cancel := context.WithCancel(context.Background())
	fromWorker := make(chan Message, c.inboxBuf)

	go func() {
		defer close(fromWorker)
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("panic in worker entry",
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())))
			}
		}()

		if gate != nil {
			select {
			case <-gate:
			case <-wctx.Done():
				return
			}
		}

		inbox := make(chan Message, c.inboxBuf)
		select {
		case fromWorker <- Message{Type: handshakeType, Payload: inbox}:
		case <-wctx.Done():
			return
		}

		reply := func(m Message) {
			select {
			case fromWorker <- m:
			case <-wctx.Done():
			}
		}
		if err := runEntry(wctx, entry, inbox, reply); err != nil && wctx.Err() == nil {
			c.log.Warn("worker entry failed", logx.Err(err))
		}
	}()

	timer := time.NewTimer(c.spawnTimeout)
	defer timer.Stop()

	var first Message
	select {
	case first = <-fromWorker:
	case <-timer.C:
		cancel()
		c.clearSpawning()
		return ErrSpawnTimeout
	case <-ctx.Done():
		cancel()
		c.clearSpawning()
		return ctx.Err()
	}

	inbox, ok := first.Payload.(chan Message)
	if first.Type != handshakeType || !ok {
		// Cannot happen with the in-package bootstrap; fail conservatively.
		cancel()
		c.clearSpawning()
		return ErrSpawnTimeout
	}

	r := &run{
		cancel: cancel,
		outbox: inbox,
		msgs:   broadcast.NewStream[Message](),
		killed: make(chan struct{}),
	}

	c.mu.Lock()
	c.run = r
	c.spawning = false
	c.mu.Unlock()

	go c.pump(r, fromWorker)
	c.log.Debug("worker spawned")
	return nil
}

func (c *Channel) clearSpawning() {
	c.mu.Lock()
	c.spawning = false
	c.mu.Unlock()
}

// pump forwards worker messages onto the broadcast stream until the worker
// exits or is killed. A worker returning on its own finalizes the run
// exactly like Kill.
func (c *Channel) pump(r *run, fromWorker <-chan Message) {
	for {
		select {
		case m, ok := <-fromWorker:
			if !ok {
				c.finalize(r)
				return
			}
			r.msgs.Publish(m)
		case <-r.killed:
			return
		}
	}
}

func (c *Channel) finalize(r *run) {
	r.once.Do(func() {
		r.cancel()
		close(r.killed)
		r.msgs.Close()
		c.mu.Lock()
		if c.run == r {
			c.run = nil
		}
		c.mu.Unlock()
	})
}

// Send delivers m to the live worker's inbox (FIFO). It fails with
// ErrNotRunning when no handshake has completed. A send that is in flight
// when the worker is killed also reports ErrNotRunning.
func (c *Channel) Send(m Message) error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}
	// Priority check: a kill that has already landed must win even when the
	// inbox has buffer space left.
	select {
	case <-r.killed:
		return ErrNotRunning
	default:
	}
	select {
	case r.outbox <- m:
		return nil
	case <-r.killed:
		return ErrNotRunning
	}
}

// Messages subscribes to the live worker's broadcast message stream. Every
// subscriber receives every post-handshake message, in order; the stream
// terminates (channel closes) when the worker is killed or exits. With no
// live worker the returned channel is already terminated.
func (c *Channel) Messages() (<-chan Message, func()) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	return r.msgs.Subscribe()
}

// Kill unconditionally terminates the worker: it cancels the worker context,
// stops message delivery, and closes the current message stream. There is no
// graceful shutdown protocol. Idempotent; a Kill with no live worker is a
// no-op.
func (c *Channel) Kill() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return
	}
	c.finalize(r)
	c.log.Debug("worker killed")
}

// Dispose kills any live worker and makes the channel permanently unusable.
func (c *Channel) Dispose() {
	c.Kill()
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
}
