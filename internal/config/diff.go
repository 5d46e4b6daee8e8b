package config

import (
	"reflect"
	"sort"
	"strings"

	"taskpace/pkg/logx"
)

// SummarizeChange returns a compact sorted list of changed sections plus safe
// structured attrs for logging. Secrets (tokens, obfuscation keys) are never
// included; only their presence is.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.journald", newCfg.Logging.Journald),
			logx.Bool("logging.notify_enabled", newCfg.Logging.Notify.Enabled),
		)
	}

	if oldCfg.Worker != newCfg.Worker {
		changed = append(changed, "worker")
		attrs = append(attrs,
			logx.String("worker.spawn_timeout", strings.TrimSpace(newCfg.Worker.SpawnTimeout)),
			logx.Int("worker.inbox_buffer", newCfg.Worker.InboxBuffer),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		pacing := true
		pacingSet := false
		if newCfg.Scheduler.Pacing != nil {
			pacingSet = true
			pacing = *newCfg.Scheduler.Pacing
		}
		attrs = append(attrs,
			logx.String("scheduler.platform", strings.TrimSpace(newCfg.Scheduler.Platform)),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.task_timeout", strings.TrimSpace(newCfg.Scheduler.TaskTimeout)),
			logx.Bool("scheduler.pacing", pacing),
			logx.Bool("scheduler.pacing_set", pacingSet),
		)
	}

	// Storage (never log the obfuscation key)
	if storageChanged(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver, busy string
		var pathSet, keySet bool
		if s := newCfg.Storage; s != nil {
			driver = strings.TrimSpace(s.Driver)
			busy = strings.TrimSpace(s.BusyTimeout)
			pathSet = strings.TrimSpace(s.Path) != ""
			keySet = strings.TrimSpace(s.ObfuscationKey) != ""
		}
		attrs = append(attrs,
			logx.Bool("storage.present", newCfg.Storage != nil),
			logx.String("storage.driver", driver),
			logx.Bool("storage.path_set", pathSet),
			logx.String("storage.busy_timeout", busy),
			logx.Bool("storage.obfuscation_key_set", keySet),
		)
	}

	oPr, nPr := derefProbe(oldCfg.Probe), derefProbe(newCfg.Probe)
	if (oldCfg.Probe != nil) != (newCfg.Probe != nil) || oPr != nPr {
		changed = append(changed, "probe")
		attrs = append(attrs,
			logx.Bool("probe.present", newCfg.Probe != nil),
			logx.Bool("probe.enabled", nPr.Enabled),
			logx.String("probe.interval", strings.TrimSpace(nPr.Interval)),
		)
	}

	// Notify (never log token)
	if notifyChanged(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		var enabled, telegramSet, tokenSet bool
		var rate int
		if n := newCfg.Notify; n != nil {
			enabled = n.Enabled
			rate = n.RatePerSec
			if n.Telegram != nil {
				telegramSet = true
				tokenSet = strings.TrimSpace(n.Telegram.Token) != ""
			}
		}
		attrs = append(attrs,
			logx.Bool("notify.present", newCfg.Notify != nil),
			logx.Bool("notify.enabled", enabled),
			logx.Int("notify.rate_per_sec", rate),
			logx.Bool("notify.telegram_set", telegramSet),
			logx.Bool("notify.token_set", tokenSet),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func storageChanged(o, n *StorageConfig) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	return *o != *n
}

func notifyChanged(o, n *NotifyConfig) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	if o.Enabled != n.Enabled || o.RatePerSec != n.RatePerSec {
		return true
	}
	if (o.Telegram == nil) != (n.Telegram == nil) {
		return true
	}
	if o.Telegram == nil {
		return false
	}
	return *o.Telegram != *n.Telegram
}

func derefProbe(p *ProbeConfig) ProbeConfig {
	if p == nil {
		return ProbeConfig{}
	}
	return *p
}
