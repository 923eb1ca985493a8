package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  poll_timeout: 30s
  group_log: "-100200"
logging:
  level: info
  console: true
notifier:
  workers: 2
  rate_per_sec: 10
  dedup_window: 1m
storage:
  driver: sqlite
  path: ./data/intentbot.db
  busy_timeout: 2s
reminders:
  timezone: Europe/Moscow
  id_range: 1000
  digest: "0 9 * * *"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Storage.Driver != "sqlite" || cfg.Notifier.Workers != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	id, err := cfg.GroupLogChatID()
	if err != nil || id != -100200 {
		t.Fatalf("GroupLogChatID = %d, %v", id, err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Moscow" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, path, body, wantErr string
	}{
		{"unknown json key", "c.json", `{"telegram":{"token":"x"},"plugins":{}}`, "unknown field"},
		{"unknown yaml key", "c.yml", "telegram:\n  token: x\n  owner_user_ids: [1]\n", "unknown field"},
		{"trailing json", "c.json", `{"telegram":{"token":"x"}} {}`, "trailing data"},
		{"bad yaml", "c.yaml", "telegram: [", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.path, []byte(tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}

	cfg, err := Decode("c.yaml", nil)
	if err != nil || cfg.Telegram.Token != "" {
		t.Fatalf("empty yaml = %+v, %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config { return &Config{Telegram: TelegramConfig{Token: "t"}} }
	tests := []struct {
		name    string
		mut     func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"bad poll", func(c *Config) { c.Telegram.PollTimeout = "soon" }, "telegram.poll_timeout"},
		{"bad group", func(c *Config) { c.Telegram.GroupLog = "ops" }, "telegram.group_log"},
		{"negative workers", func(c *Config) { c.Notifier = &NotifierConfig{Workers: -1} }, "notifier"},
		{"bad dedup", func(c *Config) { c.Notifier = &NotifierConfig{DedupWindow: "-1s"} }, "notifier.dedup_window"},
		{"sqlite no path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"bad driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, "storage.driver"},
		{"bad tz", func(c *Config) { c.Reminders = &RemindersConfig{Timezone: "Mars/Base"} }, "reminders.timezone"},
		{"tiny id range", func(c *Config) { c.Reminders = &RemindersConfig{IDRange: 1} }, "id_range"},
		{"bad digest", func(c *Config) { c.Reminders = &RemindersConfig{Digest: "every day"} }, "reminders.digest"},
		{"descriptor digest", func(c *Config) { c.Reminders = &RemindersConfig{Digest: "@daily"} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mut(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	old := &Config{Telegram: TelegramConfig{Token: "a"}, Logging: LoggingConfig{Level: "info"}}
	next := &Config{
		Telegram:  TelegramConfig{Token: "a"},
		Logging:   LoggingConfig{Level: "debug"},
		Storage:   &StorageConfig{Driver: "file", Path: "./data"},
		Reminders: &RemindersConfig{Digest: "@daily"},
	}
	changed, attrs := SummarizeChange(old, next)
	if !slices.Equal(changed, []string{"logging", "reminders", "storage"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("no attrs")
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{"reminders", "storage"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
	if changed, _ := SummarizeChange(next, next); len(changed) != 0 {
		t.Fatalf("self diff = %v", changed)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "250ms", time.Second); err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x.y", "-1s"); err == nil || !strings.Contains(err.Error(), "x.y") {
		t.Fatalf("negative err = %v", err)
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"t"},"logging":{"level":"info"}}`)
	m := NewManager(p)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// An invalid file must not be published.
	writeFile(t, dir, "config.json", `{"telegram":{"token":""}}`)
	time.Sleep(150 * time.Millisecond)
	if m.Get().Telegram.Token != "t" {
		t.Fatalf("invalid config committed")
	}

	// The watcher may still be starting; keep rewriting until a reload lands.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		writeFile(t, dir, "config.json", `{"telegram":{"token":"t"},"logging":{"level":"debug","console":`+strings.Repeat(" ", i)+`true}}`)
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" || m.Get() != cfg {
				t.Fatalf("published %+v", cfg.Logging)
			}
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no reload published")
		}
	}
}
