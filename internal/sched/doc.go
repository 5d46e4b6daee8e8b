// Package sched provides the periodic task scheduler used to run recurring
// background work under lifecycle-driven pacing.
//
// # Variants
//
// The concrete variant is chosen once at construction from config and is
// immutable afterwards:
//
//   - "inline": fully in-process. Owns per-task tickers (and, as an
//     extension, cron-spec schedules) with replace/cancel/fire semantics.
//   - "foreground": no in-process timer loop. Delegates timing to a host
//     running inside a worker channel and talks to it with
//     fire-and-forget commands (scheduleTask, stopService); the host emits
//     executeTask messages back.
//   - "bridge": no timer capability at all. Forwards every operation over a
//     narrow request/response Invoker; host failures degrade to false.
//
// # Failure policy
//
// Every operation returns a boolean success indicator. Nothing in this
// package throws across the platform boundary: several variants cross a
// host-process boundary where panics and errors do not propagate reliably.
// The single deliberate silent case is a timer firing for a task with no
// registered callback, which is a no-op (a stale schedule must not crash).
//
// # Registration semantics
//
// Register always succeeds and is last-write-wins. The callback is looked
// up at fire time, so re-registering changes the behavior of an
// already-scheduled timer. There is no unregister: registrations live as
// long as the scheduler instance.
//
// # Pacing
//
// When given a resource-tier source, the scheduler consults a Policy on
// every tier change to decide whether to pause timers or stretch intervals.
package sched
