package notification

import (
	"context"

	logx "remindsync/pkg/logx"
)

// Presenter renders a fired notification to the user.
// Authorize is the permission prompt; the Center asks it once.
type Presenter interface {
	Authorize(ctx context.Context) (bool, error)
	Present(ctx context.Context, n Scheduled, p Policy) error
}

// LogPresenter writes fired notifications to the log. It always grants permission.
type LogPresenter struct {
	log logx.Logger
}

func NewLogPresenter(log logx.Logger) *LogPresenter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPresenter{log: log}
}

func (p *LogPresenter) Authorize(ctx context.Context) (bool, error) { return true, nil }

func (p *LogPresenter) Present(ctx context.Context, n Scheduled, pol Policy) error {
	if !pol.ShowAlert {
		p.log.Debug("notification fired silently", logx.String("id", n.ID), logx.String("reminder_id", n.ReminderID()))
		return nil
	}
	fields := []logx.Field{
		logx.String("id", n.ID),
		logx.String("reminder_id", n.ReminderID()),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
	}
	if pol.PlaySound && n.Sound != "" {
		fields = append(fields, logx.String("sound", n.Sound))
	}
	if pol.SetBadge {
		fields = append(fields, logx.Bool("badge", true))
	}
	p.log.Info("notification", fields...)
	return nil
}
