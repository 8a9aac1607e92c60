package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"golang.org/x/time/rate"

	"remindsync/internal/notification"
	kit "remindsync/internal/transport"
	logx "remindsync/pkg/logx"
)

// Presenter renders fired notifications as Telegram messages.
type Presenter struct {
	send    kit.Sender
	target  kit.ChatTarget
	limiter *rate.Limiter
	log     logx.Logger
}

func NewPresenter(send kit.Sender, target kit.ChatTarget, ratePerSec int, log logx.Logger) *Presenter {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Presenter{
		send:   send,
		target: target,
		// Token bucket: burst = rate per sec so a sync burst is not stretched out.
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log.With(logx.String("comp", "telegram")),
	}
}

// Authorize grants permission when the bot can reach the target chat.
func (p *Presenter) Authorize(ctx context.Context) (bool, error) {
	if p.target.ChatID == 0 {
		return false, nil
	}
	v, ok := p.send.(kit.ChatVerifier)
	if !ok {
		return true, nil
	}
	if err := v.VerifyChat(ctx, p.target.ChatID); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Presenter) Present(ctx context.Context, n notification.Scheduled, pol notification.Policy) error {
	if !pol.ShowAlert {
		p.log.Debug("alert suppressed by policy", logx.String("reminder_id", n.ReminderID()))
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := p.send.SendText(ctx, p.target, formatNotification(n), &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Silent:         !pol.PlaySound || n.Sound == "",
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatNotification(n notification.Scheduled) string {
	var b strings.Builder
	b.WriteString("⏰ <b>")
	b.WriteString(html.EscapeString(strings.TrimSpace(n.Title)))
	b.WriteString("</b>")
	if body := strings.TrimSpace(n.Body); body != "" && body != strings.TrimSpace(n.Title) {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(body))
	}
	return b.String()
}
