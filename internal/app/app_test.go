package app

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"intentbot/internal/config"
	"intentbot/internal/notifier"
	"intentbot/internal/reminder"
	"intentbot/internal/storage"
	logx "intentbot/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   *config.StorageConfig
		want storage.Config
	}{
		{"default", nil, storage.Config{Driver: "file", Path: defaultDataDir, BusyTimeout: time.Second}},
		{"sqlite", &config.StorageConfig{Driver: "SQLite", Path: "db.sqlite", BusyTimeout: "3s"}, storage.Config{Driver: "sqlite", Path: "db.sqlite", BusyTimeout: 3 * time.Second}},
		{"file dir", &config.StorageConfig{Path: "/var/lib/intentbot"}, storage.Config{Driver: "file", Path: "/var/lib/intentbot", BusyTimeout: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if err != nil || got != tt.want {
				t.Fatalf("got %+v, %v; want %+v", got, err, tt.want)
			}
		})
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{
		Workers: 3, RetryMax: 2, RetryBase: "100ms", DedupWindow: "1m",
	}})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.Workers != 3 || got.RetryMax != 2 || got.RetryBase != 100*time.Millisecond || got.DedupWindow != time.Minute {
		t.Fatalf("got %+v", got)
	}
	if _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "x"}}); err == nil {
		t.Fatalf("bad duration accepted")
	}
}

func TestChatNotifierRendersStatus(t *testing.T) {
	t.Parallel()
	q := newCaptureQueue()
	now := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)
	n := NewChatNotifier(5, q, time.UTC, func() time.Time { return now }, logx.Nop())

	n.SendStatus(reminder.New(7, "позвонить", now.Add(90*time.Minute), true), reminder.LabelAdded)
	want := "---- Добавлено ----\n" +
		"Когда:          2030-01-02 11:30:00\n" +
		"Через сколько:  01:30:00\n" +
		"Сообщение:      позвонить\n" +
		"Идентификатор:  7"
	if got := <-q.ch; got != want {
		t.Fatalf("status =\n%s\nwant\n%s", got, want)
	}
	n.SendNotice(reminder.NoticeEmpty)
	if got := <-q.ch; got != reminder.NoticeEmpty {
		t.Fatalf("notice = %q", got)
	}
	if q.got[0].Target.ChatID != 5 || !q.got[0].Options.DisablePreview {
		t.Fatalf("notification = %+v", q.got[0])
	}
}

func TestDigestListsNonEmptyChats(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.store(t, 21).Create(ctx, "pending", time.Now().Add(time.Hour), true); err != nil {
		t.Fatal(err)
	}
	recv(t, h.queue.ch, "added")
	_ = h.store(t, 22) // open but empty

	d, err := NewDigest("@daily", time.UTC, h.reg, logx.Nop())
	if err != nil || d == nil {
		t.Fatalf("NewDigest: %v", err)
	}
	d.Run()
	if got := recv(t, h.queue.ch, "digest"); !strings.HasPrefix(got, "---- В списке ----") {
		t.Fatalf("digest = %q", got)
	}
	select {
	case extra := <-h.queue.ch:
		t.Fatalf("empty chat got %q", extra)
	case <-time.After(50 * time.Millisecond):
	}

	d.Start()
	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	d.Stop(sctx)
}

func TestNewDigestDisabledAndInvalid(t *testing.T) {
	t.Parallel()
	if d, err := NewDigest("", nil, nil, logx.Nop()); d != nil || err != nil {
		t.Fatalf("empty spec = %v, %v", d, err)
	}
	if _, err := NewDigest("not a spec", nil, nil, logx.Nop()); err == nil {
		t.Fatalf("invalid spec accepted")
	}
}

func TestDeliveryFields(t *testing.T) {
	t.Parallel()
	at := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		in    []notifier.HistoryItem
		count float64
		chats float64
	}{
		{"empty", nil, 0, 0},
		{"two chats", []notifier.HistoryItem{
			{At: at.Add(-time.Minute), ChatID: 1},
			{At: at.Add(-time.Second), ChatID: 2},
			{At: at, ChatID: 1},
		}, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logx.NewWriter(&buf, "info").Info("notifier drained", deliveryFields(tt.in)...)
			var m map[string]any
			if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if m["recent_deliveries"] != tt.count {
				t.Fatalf("recent_deliveries = %v, want %v", m["recent_deliveries"], tt.count)
			}
			if tt.chats == 0 {
				if _, ok := m["recent_chats"]; ok {
					t.Fatalf("empty history logged chats: %v", m)
				}
				return
			}
			if m["recent_chats"] != tt.chats || m["last_delivery"] == nil {
				t.Fatalf("log line = %v", m)
			}
		})
	}
}
