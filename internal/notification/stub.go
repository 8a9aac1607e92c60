package notification

import (
	"context"

	logx "remindsync/pkg/logx"
)

// Stub is the adapter for runtimes without a notification host.
// Permission is always denied and every other call is a no-op.
type Stub struct {
	log logx.Logger
}

func NewStub(log logx.Logger) *Stub {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Stub{log: log.With(logx.String("adapter", "stub"))}
}

func (s *Stub) RequestPermission(ctx context.Context) bool {
	s.log.Debug("notification permission unavailable")
	return false
}

func (s *Stub) Schedule(ctx context.Context, req Request) bool {
	s.log.Trace("schedule ignored", logx.String("reminder_id", req.ReminderID()))
	return false
}

func (s *Stub) CancelOne(ctx context.Context, reminderID string) {}

func (s *Stub) CancelAll(ctx context.Context) {}

func (s *Stub) ListScheduled(ctx context.Context) []Scheduled { return nil }

func (s *Stub) SetForegroundPolicy(p Policy) {}
