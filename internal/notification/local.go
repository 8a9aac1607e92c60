package notification

import (
	"context"

	logx "remindsync/pkg/logx"
)

// Host is the notification service the Local adapter talks to. *Center implements it.
type Host interface {
	Add(ctx context.Context, req Request) (string, error)
	Remove(ctx context.Context, id string) error
	RemoveAll(ctx context.Context) error
	List(ctx context.Context) ([]Scheduled, error)
	Authorize(ctx context.Context) (bool, error)
	SetPolicy(p Policy)
}

// Local adapts a Host to the Adapter contract. It keeps no state of its own.
type Local struct {
	host Host
	log  logx.Logger
}

func NewLocal(host Host, log logx.Logger) *Local {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Local{host: host, log: log.With(logx.String("adapter", "local"))}
}

func (l *Local) RequestPermission(ctx context.Context) bool {
	ok, err := l.host.Authorize(ctx)
	if err != nil {
		l.log.Warn("permission request failed", logx.Err(err))
		return false
	}
	return ok
}

func (l *Local) Schedule(ctx context.Context, req Request) bool {
	id, err := l.host.Add(ctx, req)
	if err != nil {
		l.log.Warn("schedule failed", logx.String("reminder_id", req.ReminderID()), logx.Err(err))
		return false
	}
	l.log.Debug("scheduled",
		logx.String("id", id),
		logx.String("reminder_id", req.ReminderID()),
		logx.Time("at", req.At),
	)
	return true
}

// CancelOne scans the host's scheduled set for the entry tagged with reminderID.
func (l *Local) CancelOne(ctx context.Context, reminderID string) {
	list, err := l.host.List(ctx)
	if err != nil {
		l.log.Warn("list scheduled failed", logx.Err(err))
		return
	}
	for _, s := range list {
		if s.ReminderID() != reminderID {
			continue
		}
		if err := l.host.Remove(ctx, s.ID); err != nil {
			l.log.Warn("cancel failed", logx.String("id", s.ID), logx.String("reminder_id", reminderID), logx.Err(err))
		}
		return
	}
}

func (l *Local) CancelAll(ctx context.Context) {
	if err := l.host.RemoveAll(ctx); err != nil {
		l.log.Warn("cancel all failed", logx.Err(err))
	}
}

func (l *Local) ListScheduled(ctx context.Context) []Scheduled {
	list, err := l.host.List(ctx)
	if err != nil {
		l.log.Warn("list scheduled failed", logx.Err(err))
		return nil
	}
	return list
}

func (l *Local) SetForegroundPolicy(p Policy) { l.host.SetPolicy(p) }
