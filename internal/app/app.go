package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"remindsync/internal/api"
	"remindsync/internal/config"
	"remindsync/internal/eventbus"
	"remindsync/internal/notification"
	"remindsync/internal/reminder"
	"remindsync/internal/remindersync"
	"remindsync/internal/storage"
	"remindsync/internal/transport/telegram"
	"remindsync/internal/webhook"
	logx "remindsync/pkg/logx"
	"remindsync/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	loc   *time.Location

	center     *notification.Center
	adapter    notification.Adapter
	dispatcher *webhook.Dispatcher
	syncer     *remindersync.Synchronizer
	resync     *resyncTrigger
	http       *api.Server

	// Last reminder set handed to Synchronize, replayed on resync.
	mu       sync.Mutex
	last     []reminder.Reminder
	lastOpt  remindersync.Options
	haveLast bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	loc, err := loadLocation(cfg.Reminders.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}

	whCfg, err := mapWebhookConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	presenter, err := newPresenter(cfg, log)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	center := notification.NewCenter(
		notification.WithLogger(log),
		notification.WithStore(store),
		notification.WithBus(bus),
		notification.WithPresenter(presenter),
	)
	var host notification.Host = center
	adapter := notification.Select(cfg.Notifications.Platform, host, log.With(logx.String("comp", "notifications")))

	dispatcher := webhook.New(whCfg, webhook.WithLogger(log), webhook.WithBus(bus))

	syncer := remindersync.New(adapter, dispatcher,
		remindersync.WithLogger(log),
		remindersync.WithBus(bus),
		remindersync.WithSound(cfg.Notifications.Sound),
	)

	a := &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		loc:        loc,
		center:     center,
		adapter:    adapter,
		dispatcher: dispatcher,
		syncer:     syncer,
	}
	a.resync = newResyncTrigger(loc, log.With(logx.String("comp", "resync")), func() { a.Resync("cron") })
	if cfg.HTTP.Enabled {
		a.http = api.New(httpAddr(cfg), a, log)
	}
	return a, nil
}

func newPresenter(cfg *Config, log logx.Logger) (notification.Presenter, error) {
	tc := cfg.Telegram
	if tc == nil || strings.TrimSpace(tc.Token) == "" {
		return notification.NewLogPresenter(log.With(logx.String("comp", "presenter"))), nil
	}
	client, err := telegram.New(telegram.Config{
		Token:      tc.Token,
		ChatID:     tc.ChatID,
		ThreadID:   tc.ThreadID,
		RatePerSec: tc.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Info("telegram delivery enabled", logx.Int64("chat_id", tc.ChatID))
	return telegram.NewPresenter(client, client.Target(), tc.RatePerSec, log), nil
}

// validate runs the checks the config package cannot do on its own.
func validate(cfg *Config) error {
	if err := validateResync(cfg.Reminders.Resync); err != nil {
		return fmt.Errorf("reminders.resync: %w", err)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	runCtx := a.sup.Context()
	cfg := a.cfgm.Get()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error { return validate(cfg) })

	if err := a.center.Start(runCtx); err != nil {
		return err
	}

	a.syncer.Setup(mapPolicy(cfg))
	granted := a.syncer.EnsurePermissions(runCtx)
	a.log.Info("notifications ready", logx.Bool("permission", granted), logx.String("adapter", fmt.Sprintf("%T", a.adapter)))

	// Both file watches are armed before the initial reads so no edit slips between.
	sub := a.cfgm.Subscribe(8)
	lastApplied := cfg
	a.sup.Go("config.watch", a.cfgm.ArmWatch())
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	if path := strings.TrimSpace(cfg.Reminders.Path); path != "" {
		watch := config.ArmWatch(path, a.log.With(logx.String("comp", "reminders.watch")), func(c context.Context) {
			a.loadReminders(c, path, "file")
		})
		a.loadReminders(runCtx, path, "start")
		a.sup.Go("reminders.watch", watch)
	}

	if err := a.resync.Start(cfg.Reminders.Resync); err != nil {
		return fmt.Errorf("reminders.resync: %w", err)
	}

	if a.http != nil {
		a.sup.Go("http", a.http.Run)
	}

	a.sup.GoRestart("systemd.watchdog", time.Second, 30*time.Second, systemd.Watchdog)

	// Debug trail of component events.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Config edits made between NewApp and the watch being armed.
	if _, err := a.cfgm.Reload(runCtx); err != nil {
		a.log.Warn("config reload failed", logx.Err(err))
	}

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	_ = systemd.Reloading()
	defer func() { _ = systemd.Ready() }()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change applied", fields...)

	for _, s := range []string{"storage", "telegram", "http"} {
		if slices.Contains(sections, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	if oldCfg.Notifications.Platform != newCfg.Notifications.Platform {
		a.log.Warn("notifications.platform changed; restart required")
	}
	if oldCfg.Reminders.Path != newCfg.Reminders.Path || oldCfg.Reminders.Timezone != newCfg.Reminders.Timezone {
		a.log.Warn("reminders source changed; restart required")
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if whCfg, err := mapWebhookConfig(newCfg); err != nil {
		a.log.Warn("invalid webhook config; keeping previous", logx.Err(err))
	} else {
		a.dispatcher.Apply(whCfg)
	}
	if err := a.resync.Apply(newCfg.Reminders.Resync); err != nil {
		a.log.Warn("invalid reminders.resync; keeping previous", logx.Err(err))
	}

	if slices.Contains(sections, "notifications") || slices.Contains(sections, "webhook") {
		a.Resync("config")
	}
}

func (a *App) loadReminders(ctx context.Context, path, reason string) {
	rs, err := reminder.Load(path, a.loc)
	if err != nil {
		a.log.Warn("reminder file rejected; keeping previous schedule", logx.String("path", path), logx.Err(err))
		return
	}
	a.log.Debug("reminder file loaded", logx.String("path", path), logx.Int("count", len(rs)), logx.String("reason", reason))
	a.Synchronize(ctx, rs, remindersync.Options{})
}

// Synchronize records rs as the current set and reconciles it. Unset option
// flags fall back to the notifications config.
func (a *App) Synchronize(ctx context.Context, rs []reminder.Reminder, opt remindersync.Options) remindersync.Result {
	a.mu.Lock()
	a.last = slices.Clone(rs)
	a.lastOpt = opt
	a.haveLast = true
	a.mu.Unlock()
	res := a.syncer.Synchronize(ctx, rs, effectiveOptions(a.cfgm.Get(), opt))
	_ = systemd.Status(fmt.Sprintf("%d notifications, %d webhooks armed", res.Notifications, res.Webhooks))
	return res
}

// Resync replays the last reminder set with the current config.
func (a *App) Resync(reason string) {
	a.mu.Lock()
	if !a.haveLast {
		a.mu.Unlock()
		return
	}
	rs := slices.Clone(a.last)
	opt := a.lastOpt
	a.mu.Unlock()

	ctx := context.Background()
	if a.sup != nil {
		ctx = a.sup.Context()
		if ctx.Err() != nil {
			return
		}
	}
	a.log.Debug("resync", logx.String("reason", reason), logx.Int("reminders", len(rs)))
	a.syncer.Synchronize(ctx, rs, effectiveOptions(a.cfgm.Get(), opt))
}

// CancelReminder drops id from the current set and cancels its schedules.
func (a *App) CancelReminder(ctx context.Context, id string) {
	a.mu.Lock()
	a.last = slices.DeleteFunc(a.last, func(r reminder.Reminder) bool { return r.ID == id })
	a.mu.Unlock()
	a.syncer.CancelReminder(ctx, id)
}

func (a *App) EnsurePermissions(ctx context.Context) bool { return a.syncer.EnsurePermissions(ctx) }

func (a *App) Setup(p notification.Policy) bool { return a.syncer.Setup(p) }

func (a *App) Scheduled(ctx context.Context) []notification.Scheduled { return a.syncer.Scheduled(ctx) }

func (a *App) PendingWebhooks() []string { return a.dispatcher.Pending() }

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops (http, watchers) start unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			// respect the caller's deadline; never extend it
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("resync", time.Second, func(context.Context) error { a.resync.Stop(); return nil })
	step("webhooks", 2*time.Second, func(context.Context) error { a.dispatcher.Close(); return nil })
	step("notifications", 2*time.Second, a.center.Stop)
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
