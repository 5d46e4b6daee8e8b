package worker

import "errors"

var (
	// ErrAlreadyRunning is returned by Spawn when the channel already owns a
	// live (or currently handshaking) worker. The caller must Kill first.
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrSpawnTimeout is returned by Spawn when the worker's handshake does
	// not arrive within the spawn timeout. The partially started worker is
	// cancelled before the error is returned; the caller may retry.
	ErrSpawnTimeout = errors.New("worker spawn timed out")

	// ErrNotRunning is returned by Send when no handshake has completed.
	ErrNotRunning = errors.New("worker not running")

	// ErrDisposed is returned by Spawn after Dispose; the channel instance
	// is permanently unusable.
	ErrDisposed = errors.New("worker channel disposed")
)
