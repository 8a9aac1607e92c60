// Package remindersync reconciles a reminder set against the scheduled local
// notifications and pending webhook calls.
//
// Every Synchronize is a full reset: all prior schedules are cancelled before
// the new set is armed. There is no incremental path.
package remindersync

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"remindsync/internal/eventbus"
	"remindsync/internal/notification"
	"remindsync/internal/reminder"
	logx "remindsync/pkg/logx"
)

const DefaultSound = "default"

// Dispatcher is the webhook side of a sync. *webhook.Dispatcher implements it.
type Dispatcher interface {
	ScheduleCall(r reminder.Reminder, delay time.Duration) bool
	CancelCall(id string) bool
	ResetAll()
}

// Options selects the delivery channels. A nil flag means enabled.
type Options struct {
	PushEnabled    *bool `json:"pushEnabled,omitempty"`
	WebhookEnabled *bool `json:"webhookEnabled,omitempty"`
}

func (o Options) Push() bool    { return o.PushEnabled == nil || *o.PushEnabled }
func (o Options) Webhook() bool { return o.WebhookEnabled == nil || *o.WebhookEnabled }

// Result summarizes one Synchronize call.
type Result struct {
	Considered    int `json:"considered"`
	Skipped       int `json:"skipped"`
	Notifications int `json:"notifications"`
	Webhooks      int `json:"webhooks"`
	Failed        int `json:"failed,omitempty"`
}

type Option func(*Synchronizer)

func WithLogger(l logx.Logger) Option       { return func(s *Synchronizer) { s.log = l } }
func WithBus(b eventbus.Bus) Option         { return func(s *Synchronizer) { s.bus = b } }
func WithClock(now func() time.Time) Option { return func(s *Synchronizer) { s.now = now } }

// WithSound sets the sound cue attached to local notifications.
func WithSound(sound string) Option {
	return func(s *Synchronizer) {
		if sound != "" {
			s.sound = sound
		}
	}
}

type Synchronizer struct {
	adapter    notification.Adapter
	dispatcher Dispatcher
	log        logx.Logger
	bus        eventbus.Bus
	now        func() time.Time
	sound      string

	// mu serializes Synchronize and CancelReminder so two reconciliations never interleave.
	mu        sync.Mutex
	setupOnce sync.Once
}

func New(adapter notification.Adapter, dispatcher Dispatcher, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		adapter:    adapter,
		dispatcher: dispatcher,
		now:        time.Now,
		sound:      DefaultSound,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "sync"))
	return s
}

// Setup registers the foreground presentation policy. Only the first call has an effect.
func (s *Synchronizer) Setup(p notification.Policy) bool {
	applied := false
	s.setupOnce.Do(func() {
		s.adapter.SetForegroundPolicy(p)
		applied = true
		s.log.Debug("foreground policy registered",
			logx.Bool("alert", p.ShowAlert),
			logx.Bool("sound", p.PlaySound),
			logx.Bool("badge", p.SetBadge),
		)
	})
	return applied
}

// EnsurePermissions asks the platform whether notifications may be shown.
func (s *Synchronizer) EnsurePermissions(ctx context.Context) bool {
	return s.adapter.RequestPermission(ctx)
}

// Synchronize cancels everything previously scheduled, then arms the
// reminders more than one second in the future.
func (s *Synchronizer) Synchronize(ctx context.Context, rs []reminder.Reminder, opt Options) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adapter.CancelAll(ctx)
	s.dispatcher.ResetAll()

	push, hook := opt.Push(), opt.Webhook()
	res := Result{Considered: len(rs)}
	if !push && !hook {
		s.log.Debug("both channels disabled; schedules cleared", logx.Int("reminders", len(rs)))
		eventbus.Publish(s.bus, eventbus.SyncCompleted, res)
		return res
	}

	now := s.now()
	for _, r := range rs {
		diff, ok := reminder.Eligible(r, now)
		if !ok {
			res.Skipped++
			continue
		}
		if err := s.scheduleOne(ctx, r, diff, push, hook, &res); err != nil {
			res.Failed++
			s.log.Error("schedule reminder failed", logx.String("reminder_id", r.ID), logx.Err(err))
		}
	}

	s.log.Info("reminders synchronized",
		logx.Int("considered", res.Considered),
		logx.Int("skipped", res.Skipped),
		logx.Int("notifications", res.Notifications),
		logx.Int("webhooks", res.Webhooks),
		logx.Bool("push", push),
		logx.Bool("webhook", hook),
	)
	eventbus.Publish(s.bus, eventbus.SyncCompleted, res)
	return res
}

func (s *Synchronizer) scheduleOne(ctx context.Context, r reminder.Reminder, diff time.Duration, push, hook bool, res *Result) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			s.log.Debug("schedule panic stack", logx.String("stack", string(debug.Stack())))
		}
	}()

	if push && s.adapter.Schedule(ctx, notification.Request{
		Title: r.Title,
		Body:  r.Body,
		Sound: s.sound,
		At:    r.TriggerDate,
		Data:  map[string]string{notification.DataReminderID: r.ID},
	}) {
		res.Notifications++
	}
	if hook && s.dispatcher.ScheduleCall(r, diff) {
		res.Webhooks++
	}
	return nil
}

// CancelReminder drops one reminder's notification and webhook call.
func (s *Synchronizer) CancelReminder(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapter.CancelOne(ctx, id)
	s.dispatcher.CancelCall(id)
	s.log.Debug("reminder cancelled", logx.String("reminder_id", id))
}

// Scheduled lists what the platform currently holds.
func (s *Synchronizer) Scheduled(ctx context.Context) []notification.Scheduled {
	return s.adapter.ListScheduled(ctx)
}
