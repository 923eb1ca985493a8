package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed     = errors.New("storage closed")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Store is the persistence API used by the reminder core.
type Store interface {
	// LoadLines returns every record line stored under key, in stored order.
	// A key that was never written yields (nil, nil).
	LoadLines(ctx context.Context, key string) ([][]byte, error)
	// ReplaceLines atomically replaces the lines stored under key.
	ReplaceLines(ctx context.Context, key string, lines [][]byte) error
	// Keys lists every key that has been written at least once.
	Keys(ctx context.Context) ([]string, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (default): Path is a directory
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one reminder lifecycle action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	ChatID     int64     `json:"chat_id"`
	ReminderID int64     `json:"reminder_id"`
	Action     string    `json:"action"`
	Due        time.Time `json:"due"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// validKey reports whether key is safe to use as a file name component.
func validKey(key string) bool {
	if key == "" || len(key) > 64 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
