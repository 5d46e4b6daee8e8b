package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskpace/pkg/logx"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures the key/value store.
//
// Driver values:
//   - "file": JSON snapshot plus append-only journal
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Namespace prefixes every key. Callers cannot escape it.
	Namespace string

	// ObfuscationKey XOR-scrambles values at rest. Empty disables.
	ObfuscationKey string
}

// KV is the persistence API exposed to collaborators.
//
// Read reports ok=false for absent keys; absence is not an error.
type KV interface {
	Write(ctx context.Context, key, value string) error
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	ContainsKey(ctx context.Context, key string) (bool, error)
	Close() error
}

// Open initializes the configured store and stacks the obfuscation and
// namespace wrappers on top of the raw driver.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (KV, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		kv  KV
		err error
	)
	switch driver {
	case "file":
		kv, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		kv, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}

	if k := strings.TrimSpace(cfg.ObfuscationKey); k != "" {
		kv = Obfuscated(kv, []byte(k))
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		kv = Namespaced(kv, ns)
	}
	return kv, nil
}
