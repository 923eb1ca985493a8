package notifier

import (
	"time"

	kit "intentbot/internal/transport"
)

// Config controls the pipeline. Zero values get defaults.
type Config struct {
	Workers       int
	QueueSize     int // per worker
	RatePerSec    int
	RetryMax      int // 0: a failed send is dropped
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// DedupWindow suppresses identical text to the same chat within the
	// window. 0 disables it.
	DedupWindow time.Duration
	HistorySize int
}

// Notification is one outgoing message.
type Notification struct {
	Target  kit.ChatTarget
	Text    string
	Options *kit.SendOptions
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
}

// Event types published on the bus.
const (
	EventSent    = "notify.sent"
	EventFailed  = "notify.failed"
	EventDropped = "notify.dropped"
)

// Event is the payload of notifier bus events.
type Event struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
