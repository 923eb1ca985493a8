package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	in := []byte(`{"level":"warn","time":"x","message":"persist failed","chat_id":42,"err":"disk full"}`)
	got := formatTelegramJSON(in)
	want := "[WARN] persist failed\n- chat_id=42\n- err=disk full"
	if got != want {
		t.Fatalf("formatTelegramJSON = %q, want %q", got, want)
	}

	if got := formatTelegramJSON([]byte("  not json \n")); got != "not json" {
		t.Fatalf("non-json line = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijkl", 10, "abcdefg..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(Int64("chat_id", 7))
	log.Debug("hidden")
	log.Warn("store loaded", Int("loaded", 3), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["message"] != "store loaded" || m["chat_id"] != float64(7) || m["loaded"] != float64(3) || m["err"] != "boom" {
		t.Fatalf("log line = %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %v", m["caller"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatalf("zero logger not reported as zero")
	}
	log.Info("dropped")
	if Nop().IsZero() {
		t.Fatalf("Nop reported as zero")
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	ch   chan struct{}
}

func (c *captureSender) SendLog(ctx context.Context, chatID int64, text string) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	select {
	case c.ch <- struct{}{}:
	default:
	}
	return nil
}

// Not parallel: New sets zerolog package globals.
func TestServiceMirrorsWarningsToTelegram(t *testing.T) {
	sender := &captureSender{ch: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	defer svc.Close()
	svc.SetTelegramTarget(-100)

	log.Info("not mirrored")
	log.Error("timer lost", String("id", "5"))

	select {
	case <-sender.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("no message mirrored")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 1 || !strings.HasPrefix(sender.msgs[0], "[ERROR] timer lost") {
		t.Fatalf("mirrored = %q", sender.msgs)
	}
}
