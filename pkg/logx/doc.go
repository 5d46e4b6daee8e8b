// Package logx configures taskpace's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional journald sink (systemd hosts)
//   - Optional notifier sink (min-level + rate limiting)
//
// Loggers created from a Service stay live across Service.Apply() calls.
// The zero Logger value is a safe no-op.
package logx
