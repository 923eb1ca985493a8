package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "intentbot/internal/transport"
	logx "intentbot/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		text      string
		limit     int
		parseMode string
		want      []string
	}{
		{name: "short", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "newline boundary", text: "aaaa\nbbbb\ncccc", limit: 10, want: []string{"aaaa\nbbbb", "cccc"}},
		{name: "hard cut", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "html tag kept whole", text: "abcdef<b>x</b>", limit: 8, parseMode: "HTML", want: []string{"abcdef", "<b>x</b>"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitTelegramText(tt.text, tt.limit, tt.parseMode)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("split = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitTelegramTextCountsRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("я", telegramTextLimit+10)
	got := splitTelegramText(text, 0, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	for _, c := range got {
		if n := utf8.RuneCountInString(c); n > telegramTextLimit {
			t.Fatalf("chunk has %d runes", n)
		}
	}
}

type fakePoster struct {
	sent []string
	opts []*tele.SendOptions
	fail int // fail the n-th send (1-based), 0 never
}

func (f *fakePoster) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.fail > 0 && len(f.sent)+1 == f.fail {
		return nil, errors.New("flood wait")
	}
	f.sent = append(f.sent, what.(string))
	if len(opts) > 0 {
		f.opts = append(f.opts, opts[0].(*tele.SendOptions))
	}
	return &tele.Message{ID: 100 + len(f.sent)}, nil
}

func TestSendTextSplitsAndReturnsFirstRef(t *testing.T) {
	t.Parallel()
	fp := &fakePoster{}
	a := &Adapter{post: fp, log: logx.Nop()}

	text := strings.Repeat("x", telegramTextLimit) + "\n" + "tail"
	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 42, ThreadID: 3}, text, &kit.SendOptions{Silent: true})
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(fp.sent) != 2 || fp.sent[1] != "tail" {
		t.Fatalf("sent = %d chunks", len(fp.sent))
	}
	if ref.MessageID != 101 || ref.ChatID != 42 || ref.ThreadID != 3 {
		t.Fatalf("ref = %+v", ref)
	}
	if !fp.opts[0].DisableNotification || fp.opts[0].ThreadID != 3 {
		t.Fatalf("send options = %+v", fp.opts[0])
	}
}

func TestSendTextError(t *testing.T) {
	t.Parallel()
	a := &Adapter{post: &fakePoster{fail: 1}, log: logx.Nop()}
	if _, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "x", nil); err == nil {
		t.Fatalf("SendText succeeded on failing poster")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fp := &fakePoster{}
	a = &Adapter{post: fp, log: logx.Nop()}
	if _, err := a.SendText(ctx, kit.ChatTarget{ChatID: 1}, "x", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("SendText on cancelled ctx = %v", err)
	}
	if len(fp.sent) != 0 {
		t.Fatalf("sent after cancel")
	}
}

func TestSendLogIsSilent(t *testing.T) {
	t.Parallel()
	fp := &fakePoster{}
	a := &Adapter{post: fp, log: logx.Nop()}
	var sender logx.Sender = a
	if err := sender.SendLog(context.Background(), -100, "[WARN] x"); err != nil {
		t.Fatalf("SendLog: %v", err)
	}
	if len(fp.opts) != 1 || !fp.opts[0].DisableNotification {
		t.Fatalf("log message not silent")
	}
}

func TestMenuHashStable(t *testing.T) {
	t.Parallel()
	a := []kit.BotCommand{{Command: "list", Description: "show"}}
	b := []kit.BotCommand{{Command: "lis", Description: "tshow"}}
	if menuHash(a) != menuHash(a) || menuHash(a) == menuHash(b) {
		t.Fatalf("menuHash not separating fields")
	}
}
