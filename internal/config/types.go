package config

// Config is the whole daemon configuration. JSON and YAML are both accepted
// (YAML is coerced to JSON before the strict decode).
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Worker    WorkerConfig    `json:"worker"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Optional collaborator sections. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
	Probe   *ProbeConfig   `json:"probe,omitempty"`
	Notify  *NotifyConfig  `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level    string        `json:"level"`
	Console  bool          `json:"console"`
	File     LoggingFile   `json:"file"`
	Journald bool          `json:"journald,omitempty"`
	Notify   LoggingNotify `json:"notify"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingNotify forwards warn+ records to the notification collaborator.
type LoggingNotify struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// WorkerConfig tunes worker channel spawning.
//
// Defaults (when fields are omitted/zero):
//   - spawn_timeout: "5s"
//   - inbox_buffer: 16
type WorkerConfig struct {
	SpawnTimeout string `json:"spawn_timeout,omitempty"`
	InboxBuffer  int    `json:"inbox_buffer,omitempty"`
}

// SchedulerConfig selects and tunes the periodic task scheduler.
//
// Platform picks the variant once at startup; it is never re-selected at
// runtime. Valid values: "inline", "foreground", "bridge".
//
// Pacing is a pointer so we can distinguish "omitted" (default true) from an
// explicit false.
type SchedulerConfig struct {
	Platform string `json:"platform"`

	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// TaskTimeout bounds a single task run. Use "0s" to disable.
	TaskTimeout string `json:"task_timeout,omitempty"`

	// Pacing enables lifecycle-driven interval scaling and pausing.
	Pacing *bool `json:"pacing,omitempty"`
}

// StorageConfig controls the key/value store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./taskpace.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Namespace   string `json:"namespace,omitempty"`

	// ObfuscationKey XOR-scrambles stored values. This is readable-at-rest
	// obfuscation, not encryption; anyone with the key (or the binary)
	// can reverse it. Do not log.
	ObfuscationKey string `json:"obfuscation_key,omitempty"`
}

// ProbeConfig controls the periodic connectivity probe.
type ProbeConfig struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"interval,omitempty"`
	PingTimeout string `json:"ping_timeout,omitempty"`
}

// NotifyConfig controls notification delivery.
//
// With no telegram section notifications go to the log-only sink.
type NotifyConfig struct {
	Enabled    bool            `json:"enabled"`
	RatePerSec int             `json:"rate_per_sec,omitempty"`
	Telegram   *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}
