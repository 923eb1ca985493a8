package app

import (
	"context"
	"time"

	"intentbot/internal/notifier"
	"intentbot/internal/reminder"
	kit "intentbot/internal/transport"
	logx "intentbot/pkg/logx"
)

// Enqueuer accepts outgoing messages without blocking. *notifier.Service
// satisfies it.
type Enqueuer interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// ChatNotifier is the reminder.Notifier of one conversation. It renders
// status blocks and hands them to the async notifier, so a store holding its
// lock never waits on the network.
type ChatNotifier struct {
	chat kit.ChatTarget
	out  Enqueuer
	loc  *time.Location
	now  func() time.Time
	log  logx.Logger
}

var _ reminder.Notifier = (*ChatNotifier)(nil)

func NewChatNotifier(chatID int64, out Enqueuer, loc *time.Location, now func() time.Time, log logx.Logger) *ChatNotifier {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ChatNotifier{chat: kit.ChatTarget{ChatID: chatID}, out: out, loc: loc, now: now, log: log}
}

func (n *ChatNotifier) SendStatus(it reminder.Item, label string) {
	n.send(reminder.StatusText(it, label, n.now(), n.loc))
}

func (n *ChatNotifier) SendNotice(text string) { n.send(text) }

func (n *ChatNotifier) send(text string) {
	err := n.out.Notify(context.Background(), notifier.Notification{
		Target:  n.chat,
		Text:    text,
		Options: &kit.SendOptions{DisablePreview: true},
	})
	if err != nil {
		n.log.Warn("notification not queued", logx.Int64("chat_id", n.chat.ChatID), logx.Err(err))
	}
}
