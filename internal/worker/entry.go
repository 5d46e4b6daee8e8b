package worker

import (
	"context"
	"fmt"
)

// Entry is the unit of work a Channel runs in its isolated goroutine.
//
// Entries form a small sealed set chosen explicitly at spawn time; the
// channel never probes a callback's shape at runtime. All variants must
// honor ctx cancellation: Kill is a context cancel, not a forced stop.
type Entry interface {
	entry()
}

// NoArgTask runs a self-contained body. It receives no messages and emits
// none; the handshake is still performed by the channel runtime so spawn
// semantics are uniform across entry kinds.
type NoArgTask struct {
	Run func(ctx context.Context) error
}

// PayloadTask consumes messages sent via Channel.Send on its inbox.
type PayloadTask struct {
	Run func(ctx context.Context, inbox <-chan Message) error
}

// PayloadAndReplyTask consumes inbox messages and may emit messages back to
// the caller's broadcast stream via reply. reply is safe to call until Run
// returns; after the worker is killed it silently discards.
type PayloadAndReplyTask struct {
	Run func(ctx context.Context, inbox <-chan Message, reply func(Message)) error
}

func (NoArgTask) entry()           {}
func (PayloadTask) entry()         {}
func (PayloadAndReplyTask) entry() {}

func runEntry(ctx context.Context, e Entry, inbox <-chan Message, reply func(Message)) error {
	switch t := e.(type) {
	case NoArgTask:
		if t.Run == nil {
			return nil
		}
		return t.Run(ctx)
	case PayloadTask:
		if t.Run == nil {
			return nil
		}
		return t.Run(ctx, inbox)
	case PayloadAndReplyTask:
		if t.Run == nil {
			return nil
		}
		return t.Run(ctx, inbox, reply)
	default:
		return fmt.Errorf("worker: unknown entry kind %T", e)
	}
}
