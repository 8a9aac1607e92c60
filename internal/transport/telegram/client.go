// Package telegram delivers fired reminders to a Telegram chat.
//
// The bot is send-only: no poller is started and no updates are consumed.
package telegram

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindsync/internal/transport"
	logx "remindsync/pkg/logx"
)

type Config struct {
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec int
}

// Client wraps a telebot Bot for outbound messages.
type Client struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// New validates the token against the Bot API (getMe) and returns a client.
func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log, bot: b}, nil
}

// Target is the configured delivery chat.
func (c *Client) Target() kit.ChatTarget {
	return kit.ChatTarget{ChatID: c.cfg.ChatID, ThreadID: c.cfg.ThreadID}
}

// VerifyChat confirms the bot can see chatID.
func (c *Client) VerifyChat(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.ChatByID(chatID)
	return err
}

func (c *Client) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return first, ctx.Err()
		default:
		}

		msg, err := c.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			DisableNotification:   opt.Silent,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}
