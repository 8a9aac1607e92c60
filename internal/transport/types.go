// Package transport holds the chat-delivery types shared by outbound channels.
package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool // deliver without sound
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// ChatVerifier is an optional Sender capability: confirm the bot can reach a chat.
type ChatVerifier interface {
	VerifyChat(ctx context.Context, chatID int64) error
}
