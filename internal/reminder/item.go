package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies an item within one conversation's store.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseID parses a user supplied identifier ("42", "#42").
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return ID(n), nil
}

const timeLayout = "2006-01-02 15:04:05"

// Item is a single scheduled (or unscheduled) intent. Items are immutable:
// rescheduling is delete + re-add with a new item.
type Item struct {
	id          ID
	due         time.Time
	message     string
	schedulable bool
}

// New builds an item. Due is truncated to the second, the resolution of the
// persisted record.
func New(id ID, message string, due time.Time, schedulable bool) Item {
	return Item{
		id:          id,
		due:         due.Truncate(time.Second),
		message:     message,
		schedulable: schedulable,
	}
}

func (it Item) ID() ID            { return it.id }
func (it Item) Due() time.Time    { return it.due }
func (it Item) Message() string   { return it.message }
func (it Item) Schedulable() bool { return it.schedulable }
func (it Item) IsZero() bool      { return it.id == 0 }

func (it Item) dueBy(t time.Time) bool { return !it.due.After(t) }

// wireRecord is the on-disk line layout. Field order is fixed so output is
// deterministic.
type wireRecord struct {
	ETA         int64  `json:"eta"`
	Message     string `json:"message"`
	ID          int64  `json:"id"`
	Schedulable int    `json:"is_schedulable"`
}

// Record serializes the item into a single JSON line (without the newline).
func (it Item) Record() []byte {
	sched := 0
	if it.schedulable {
		sched = 1
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// wireRecord holds only ints and a string; Encode cannot fail.
	_ = enc.Encode(wireRecord{
		ETA:         it.due.Unix(),
		Message:     it.message,
		ID:          int64(it.id),
		Schedulable: sched,
	})
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// DecodeRecord rebuilds an item from a persisted line.
//
// Besides the canonical layout it accepts the legacy one, where eta is a
// quoted epoch string and is_schedulable may be a JSON bool.
func DecodeRecord(line []byte) (Item, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Item{}, &MalformedRecordError{Reason: "not a json object", Err: err}
	}
	for _, k := range []string{"eta", "message", "id", "is_schedulable"} {
		if _, ok := raw[k]; !ok {
			return Item{}, &MalformedRecordError{Reason: "missing field " + k}
		}
	}

	eta, err := decodeInt(raw["eta"])
	if err != nil {
		return Item{}, &MalformedRecordError{Reason: "bad eta", Err: err}
	}
	id, err := decodeInt(raw["id"])
	if err != nil || id <= 0 {
		if err == nil {
			err = fmt.Errorf("id must be positive, got %d", id)
		}
		return Item{}, &MalformedRecordError{Reason: "bad id", Err: err}
	}
	var msg string
	if err := json.Unmarshal(raw["message"], &msg); err != nil {
		return Item{}, &MalformedRecordError{Reason: "bad message", Err: err}
	}
	sched, err := decodeFlag(raw["is_schedulable"])
	if err != nil {
		return Item{}, &MalformedRecordError{Reason: "bad is_schedulable", Err: err}
	}
	return New(ID(id), msg, time.Unix(eta, 0), sched), nil
}

func decodeInt(b json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
	}
	return strconv.ParseInt(s, 10, 64)
}

func decodeFlag(b json.RawMessage) (bool, error) {
	switch strings.TrimSpace(string(b)) {
	case "true", "1", `"1"`:
		return true, nil
	case "false", "0", `"0"`, "null":
		return false, nil
	}
	return false, fmt.Errorf("unexpected flag %s", string(b))
}

// Describe renders the item for chat output. The remaining time line is only
// shown for schedulable items.
func (it Item) Describe(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString("Когда:          ")
	b.WriteString(it.due.In(loc).Format(timeLayout))
	b.WriteString("\n")
	if it.schedulable {
		b.WriteString("Через сколько:  ")
		b.WriteString(FormatETA(it.due.Sub(now)))
		b.WriteString("\n")
	}
	b.WriteString("Сообщение:      ")
	b.WriteString(it.message)
	b.WriteString("\n")
	b.WriteString("Идентификатор:  ")
	b.WriteString(it.id.String())
	return b.String()
}

// FormatETA renders a duration as "[-][Nд ]HH:MM:SS", rounded to the second.
func FormatETA(d time.Duration) string {
	d = d.Round(time.Second)
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	if days > 0 {
		return fmt.Sprintf("%s%dд %02d:%02d:%02d", sign, days, h, m, sec)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, sec)
}
