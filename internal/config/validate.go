package config

import (
	"fmt"
	"strings"
)

var validPlatforms = map[string]bool{
	"inline":     true,
	"foreground": true,
	"bridge":     true,
}

var validLevels = map[string]bool{
	"": true, "trace": true, "debug": true, "info": true,
	"warn": true, "warning": true, "error": true,
}

// Default returns a runnable baseline configuration. Used when the daemon
// starts without a config file.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Scheduler: SchedulerConfig{
			Platform: "inline",
		},
	}
}

// Validate checks cross-field constraints that the strict decoder cannot.
// It is also installed as the Watch() validator so a bad edit never replaces
// a good running config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if lvl := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); !validLevels[lvl] {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file: enabled but path is empty")
	}

	p := strings.ToLower(strings.TrimSpace(cfg.Scheduler.Platform))
	if p == "" {
		p = "inline"
	}
	if !validPlatforms[p] {
		return fmt.Errorf("scheduler.platform: unknown platform %q", cfg.Scheduler.Platform)
	}
	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers: must be >= 0")
	}
	if cfg.Scheduler.QueueSize < 0 {
		return fmt.Errorf("scheduler.queue_size: must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.task_timeout", cfg.Scheduler.TaskTimeout); err != nil {
		return err
	}

	if _, err := ParseDurationField("worker.spawn_timeout", cfg.Worker.SpawnTimeout); err != nil {
		return err
	}
	if cfg.Worker.InboxBuffer < 0 {
		return fmt.Errorf("worker.inbox_buffer: must be >= 0")
	}

	if s := cfg.Storage; s != nil {
		d := strings.ToLower(strings.TrimSpace(s.Driver))
		if d != "sqlite" && d != "file" {
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path: required")
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if pr := cfg.Probe; pr != nil {
		if _, err := ParseDurationField("probe.interval", pr.Interval); err != nil {
			return err
		}
		if _, err := ParseDurationField("probe.ping_timeout", pr.PingTimeout); err != nil {
			return err
		}
	}

	if n := cfg.Notify; n != nil {
		if n.RatePerSec < 0 {
			return fmt.Errorf("notify.rate_per_sec: must be >= 0")
		}
		if t := n.Telegram; t != nil {
			if strings.TrimSpace(t.Token) == "" {
				return fmt.Errorf("notify.telegram.token: required")
			}
			if t.ChatID == 0 {
				return fmt.Errorf("notify.telegram.chat_id: required")
			}
			if _, err := ParseDurationField("notify.telegram.poll_timeout", t.PollTimeout); err != nil {
				return err
			}
		}
	}

	return nil
}
