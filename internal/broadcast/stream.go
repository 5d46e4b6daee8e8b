// Package broadcast provides a lossless, order-preserving fanout stream.
//
// It differs from internal/eventbus on purpose: the bus is a fire-and-forget
// signal path that may drop events for slow subscribers, while a Stream
// guarantees that every subscriber observes every published value exactly
// once, in publish order. That guarantee costs unbounded buffering per
// subscriber, so Streams are reserved for the surfaces that contractually
// need it (lifecycle state/tier streams, worker message streams).
package broadcast

import (
	"sync"
)

// Stream is a broadcast fanout with per-subscriber ordered delivery.
//
// Publish never blocks and never drops; each subscriber has its own queue
// drained by a dedicated goroutine. Close terminates every subscription
// after its queued values are delivered.
type Stream[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*sub[T]
	seq    uint64
	closed bool
}

type sub[T any] struct {
	mu     sync.Mutex
	queue  []T
	wake   chan struct{}
	out    chan T
	done   chan struct{}
	closed bool
}

func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: map[uint64]*sub[T]{}}
}

// Publish appends v to every current subscriber's queue.
// Publishing on a closed stream is a no-op.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	subs := make([]*sub[T], 0, len(s.subs))
	for _, sb := range s.subs {
		subs = append(subs, sb)
	}
	s.mu.Unlock()

	for _, sb := range subs {
		sb.push(v)
	}
}

// Subscribe registers a new observer. The returned channel yields every value
// published after this call, in order. The cancel func detaches the observer;
// it is idempotent and safe to call concurrently with Publish/Close.
//
// Subscribing to a closed stream returns an already-closed channel.
func (s *Stream[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}
	sb := &sub[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
		done: make(chan struct{}),
	}
	s.seq++
	id := s.seq
	s.subs[id] = sb
	s.mu.Unlock()

	go sb.pump()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(sb.done)
		})
	}
	return sb.out, cancel
}

// Close terminates the stream. Each subscriber's channel is closed once its
// already-queued values have been delivered. Idempotent.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = map[uint64]*sub[T]{}
	s.mu.Unlock()

	for _, sb := range subs {
		sb.finish()
	}
}

// Closed reports whether Close has been called.
func (s *Stream[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (sb *sub[T]) push(v T) {
	sb.mu.Lock()
	if sb.closed {
		sb.mu.Unlock()
		return
	}
	sb.queue = append(sb.queue, v)
	sb.mu.Unlock()
	sb.signal()
}

func (sb *sub[T]) finish() {
	sb.mu.Lock()
	sb.closed = true
	sb.mu.Unlock()
	sb.signal()
}

func (sb *sub[T]) signal() {
	select {
	case sb.wake <- struct{}{}:
	default:
	}
}

func (sb *sub[T]) pump() {
	for {
		sb.mu.Lock()
		if len(sb.queue) == 0 {
			closed := sb.closed
			sb.mu.Unlock()
			if closed {
				close(sb.out)
				return
			}
			select {
			case <-sb.wake:
			case <-sb.done:
				return
			}
			continue
		}
		v := sb.queue[0]
		sb.queue = sb.queue[1:]
		sb.mu.Unlock()

		select {
		case sb.out <- v:
		case <-sb.done:
			return
		}
	}
}
