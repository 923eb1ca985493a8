package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Telegram  TelegramConfig   `json:"telegram"`
	Logging   LoggingConfig    `json:"logging"`
	Notifier  *NotifierConfig  `json:"notifier,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Reminders *RemindersConfig `json:"reminders,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id that receives mirrored warn+ log lines.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// APIURL overrides the Bot API endpoint (tests, local bot api servers).
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig controls the async delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Defaults (when the section or a field is omitted):
//   - workers: 4
//   - queue_size: 256 (per worker)
//   - rate_per_sec: 25
//   - retry_max: 0 (a failed send is dropped)
//   - retry_base: "500ms", retry_max_delay: "10s"
//   - dedup_window: "0s" (disabled)
type NotifierConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	DedupWindow   string `json:"dedup_window"`
	HistorySize   int    `json:"history_size"`
}

// StorageConfig selects where reminders are persisted.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type RemindersConfig struct {
	// Timezone is an IANA name used to read and print times. Default: Local.
	Timezone string `json:"timezone,omitempty"`
	// IDRange bounds reminder ids to [1, id_range). Default: 1000.
	IDRange int `json:"id_range,omitempty"`
	// Digest is a cron spec (5 or 6 fields). Each tick lists pending
	// reminders in every chat that has some. Empty disables it.
	Digest string `json:"digest,omitempty"`
}

// CronParser accepts 5-field specs with an optional seconds field and
// descriptors such as @daily.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Location resolves reminders.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c == nil || c.Reminders == nil || strings.TrimSpace(c.Reminders.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(c.Reminders.Timezone))
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks values that decode fine but cannot be used.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GroupLogChatID(); err != nil {
		errs = append(errs, err)
	}
	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.HistorySize < 0 {
			errs = append(errs, errors.New("notifier: numeric settings must be >= 0"))
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required when storage.driver=sqlite"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if r := c.Reminders; r != nil {
		if _, err := c.Location(); err != nil {
			errs = append(errs, err)
		}
		if r.IDRange != 0 && r.IDRange < 2 {
			errs = append(errs, errors.New("reminders.id_range must be >= 2"))
		}
		if spec := strings.TrimSpace(r.Digest); spec != "" {
			if _, err := CronParser.Parse(spec); err != nil {
				errs = append(errs, fmt.Errorf("reminders.digest: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// GroupLogChatID parses telegram.group_log. Empty yields 0.
func (c *Config) GroupLogChatID() (int64, error) {
	raw := strings.TrimSpace(c.Telegram.GroupLog)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
	}
	return id, nil
}
