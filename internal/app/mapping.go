package app

import (
	"fmt"
	"strings"
	"time"

	"remindsync/internal/config"
	"remindsync/internal/notification"
	"remindsync/internal/remindersync"
	"remindsync/internal/storage"
	"remindsync/internal/webhook"
	logx "remindsync/pkg/logx"
)

const defaultHTTPAddr = "127.0.0.1:8085"

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./data/remindsync.db"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapWebhookConfig(cfg *Config) (webhook.Config, error) {
	timeout, err := parseDurationField("webhook.timeout", cfg.Webhook.Timeout)
	if err != nil {
		return webhook.Config{}, err
	}
	return webhook.Config{URL: strings.TrimSpace(cfg.Webhook.URL), Timeout: timeout}, nil
}

func mapPolicy(cfg *Config) notification.Policy {
	fg := cfg.Notifications.Foreground
	if fg == nil {
		return notification.DefaultPolicy()
	}
	return notification.Policy{ShowAlert: fg.ShowAlert, PlaySound: fg.PlaySound, SetBadge: fg.SetBadge}
}

// channelDefaults turns the config flags into sync options. Webhooks are off
// when no URL is configured.
func channelDefaults(cfg *Config) (push, hook bool) {
	push = config.BoolOr(cfg.Notifications.PushEnabled, true)
	hook = config.BoolOr(cfg.Notifications.WebhookEnabled, true) && strings.TrimSpace(cfg.Webhook.URL) != ""
	return push, hook
}

// effectiveOptions fills unset request flags from config.
func effectiveOptions(cfg *Config, req remindersync.Options) remindersync.Options {
	push, hook := channelDefaults(cfg)
	out := req
	if out.PushEnabled == nil {
		out.PushEnabled = &push
	}
	if out.WebhookEnabled == nil {
		out.WebhookEnabled = &hook
	}
	return out
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func httpAddr(cfg *Config) string {
	if a := strings.TrimSpace(cfg.HTTP.Addr); a != "" {
		return a
	}
	return defaultHTTPAddr
}
