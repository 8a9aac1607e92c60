package config

import (
	"strings"

	logx "remindsync/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe fields for logging.
// Secrets (telegram token, webhook URL query) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	fields := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	on, nn := oldCfg.Notifications, newCfg.Notifications
	if strings.TrimSpace(on.Platform) != strings.TrimSpace(nn.Platform) ||
		BoolOr(on.PushEnabled, true) != BoolOr(nn.PushEnabled, true) ||
		BoolOr(on.WebhookEnabled, true) != BoolOr(nn.WebhookEnabled, true) ||
		on.Sound != nn.Sound ||
		!sameForeground(on.Foreground, nn.Foreground) {
		changed = append(changed, "notifications")
		fields = append(fields,
			logx.String("notifications.platform", nn.Platform),
			logx.Bool("notifications.push_enabled", BoolOr(nn.PushEnabled, true)),
			logx.Bool("notifications.webhook_enabled", BoolOr(nn.WebhookEnabled, true)),
		)
	}

	if strings.TrimSpace(oldCfg.Webhook.URL) != strings.TrimSpace(newCfg.Webhook.URL) ||
		strings.TrimSpace(oldCfg.Webhook.Timeout) != strings.TrimSpace(newCfg.Webhook.Timeout) {
		changed = append(changed, "webhook")
		fields = append(fields,
			logx.Bool("webhook.url_set", strings.TrimSpace(newCfg.Webhook.URL) != ""),
			logx.String("webhook.timeout", newCfg.Webhook.Timeout),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		fields = append(fields,
			logx.String("reminders.path", newCfg.Reminders.Path),
			logx.String("reminders.resync", newCfg.Reminders.Resync),
		)
	}

	if !sameStorage(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !sameTelegram(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		fields = append(fields, logx.Bool("telegram.enabled", newCfg.Telegram != nil && newCfg.Telegram.Token != ""))
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		fields = append(fields, logx.Bool("http.enabled", newCfg.HTTP.Enabled), logx.String("http.addr", newCfg.HTTP.Addr))
	}
	return changed, fields
}

func sameForeground(a, b *ForegroundConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameStorage(a, b *StorageConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTelegram(a, b *TelegramConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
