package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "notify": {"enabled": false}},
		"worker": {"spawn_timeout": "2s", "inbox_buffer": 8},
		"scheduler": {"platform": "inline", "workers": 3, "task_timeout": "10s"},
		"storage": {"driver": "file", "path": "./store"}
	}`)

	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging section mismatch: %+v", cfg.Logging)
	}
	if cfg.Scheduler.Platform != "inline" || cfg.Scheduler.Workers != 3 {
		t.Fatalf("scheduler section mismatch: %+v", cfg.Scheduler)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage section mismatch: %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config pointer")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.yaml", strings.Join([]string{
		"logging:",
		"  level: info",
		"  console: true",
		"  file: {enabled: false, path: \"\"}",
		"  notify: {enabled: false}",
		"worker: {}",
		"scheduler:",
		"  platform: foreground",
		"  queue_size: 64",
		"probe:",
		"  enabled: true",
		"  interval: 5m",
	}, "\n"))

	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Platform != "foreground" || cfg.Scheduler.QueueSize != 64 {
		t.Fatalf("scheduler section mismatch: %+v", cfg.Scheduler)
	}
	if cfg.Probe == nil || !cfg.Probe.Enabled || cfg.Probe.Interval != "5m" {
		t.Fatalf("probe section mismatch: %+v", cfg.Probe)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.json", `{"scheduler": {"platform": "inline", "burst": 9}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.json", `{"scheduler": {"platform": "inline"}}{"x":1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected trailing-data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default ok", func(*Config) {}, true},
		{"bad platform", func(c *Config) { c.Scheduler.Platform = "cloud" }, false},
		{"empty platform falls back to inline", func(c *Config) { c.Scheduler.Platform = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"bad duration", func(c *Config) { c.Scheduler.TaskTimeout = "soon" }, false},
		{"negative workers", func(c *Config) { c.Scheduler.Workers = -1 }, false},
		{"file logging without path", func(c *Config) { c.Logging.File = LoggingFile{Enabled: true} }, false},
		{"storage without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, false},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis", Path: "x"} }, false},
		{"telegram without chat id", func(c *Config) {
			c.Notify = &NotifyConfig{Enabled: true, Telegram: &TelegramConfig{Token: "t"}}
		}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", " 1m "); err != nil || d != time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be zero: %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-3s"); err == nil {
		t.Fatalf("negative should fail")
	}
	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	old := Default()
	next := Default()
	next.Logging.Level = "warn"
	next.Scheduler.Platform = "bridge"
	next.Storage = &StorageConfig{Driver: "sqlite", Path: "db", ObfuscationKey: "secret"}

	changed, attrs := SummarizeChange(old, next)
	want := []string{"logging", "scheduler", "storage"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}

	if c, _ := SummarizeChange(next, next); len(c) != 0 {
		t.Fatalf("identical configs reported changes: %v", c)
	}
}

func TestSubscribePublishDropsOldest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := Default(), Default()
	b.Logging.Level = "warn"
	m.publish(a)
	m.publish(b) // buffer full: oldest dropped, newest delivered

	got := <-ch
	if got != b {
		t.Fatalf("expected latest config after overflow")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra config: %+v", extra)
	default:
	}
}
