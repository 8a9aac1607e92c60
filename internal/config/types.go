package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Logging       LoggingConfig       `json:"logging"`
	Notifications NotificationsConfig `json:"notifications"`
	Webhook       WebhookConfig       `json:"webhook"`
	Reminders     RemindersConfig     `json:"reminders"`
	Storage       *StorageConfig      `json:"storage,omitempty"`
	Telegram      *TelegramConfig     `json:"telegram,omitempty"`
	HTTP          HTTPConfig          `json:"http"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotificationsConfig selects the notification host variant and the delivery channels.
//
// PushEnabled and WebhookEnabled are pointers so an omitted key means "enabled".
//
// Platform values:
//   - "auto" (default): local host unless the runtime has no notification service
//   - "local": always use the in-process notification host
//   - "none": stub adapter, permission always denied
type NotificationsConfig struct {
	Platform       string            `json:"platform,omitempty"`
	PushEnabled    *bool             `json:"push_enabled,omitempty"`
	WebhookEnabled *bool             `json:"webhook_enabled,omitempty"`
	Sound          string            `json:"sound,omitempty"` // default: "default"
	Foreground     *ForegroundConfig `json:"foreground,omitempty"`
}

// ForegroundConfig is the presentation policy registered once at start.
// Omitted means alert+sound, no badge.
type ForegroundConfig struct {
	ShowAlert bool `json:"show_alert"`
	PlaySound bool `json:"play_sound"`
	SetBadge  bool `json:"set_badge"`
}

// WebhookConfig points the dispatcher at the automation endpoint.
//
// Timeout is a Go duration string. Empty or "0s" leaves the request without a deadline.
type WebhookConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout,omitempty"`
}

// RemindersConfig controls the optional file-backed reminder source.
//
// Example:
//
//	"reminders": { "path": "./reminders.yaml", "resync": "@every 15m" }
type RemindersConfig struct {
	Path     string `json:"path,omitempty"`     // .json, .yaml/.yml or .ics
	Timezone string `json:"timezone,omitempty"` // IANA TZ used for .ics display fields
	Resync   string `json:"resync,omitempty"`   // cron spec or "@every 10m"; empty disables
}

// StorageConfig controls persistence of the notification host.
//
// Driver values: "none" (default), "file", "sqlite".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TelegramConfig enables delivery of local notifications to a Telegram chat.
type TelegramConfig struct {
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// HTTPConfig controls the caller-facing API server.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8085"
}

// BoolOr dereferences p, returning def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
