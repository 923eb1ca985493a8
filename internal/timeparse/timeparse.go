// Package timeparse extracts a due time from free-form reminder text.
//
// Supported forms, tried in order:
//   - Go duration as the first word: "10m позвонить", "2h30m deploy"
//   - Clock time as the first word: "18:30 ужин" (today, or tomorrow if passed)
//   - Natural language in Russian or English via olebedev/when:
//     "через 2 часа", "завтра в 9", "in 5 minutes", "next friday at 10am"
//
// Text with no recognizable time parses with Confidence 0 and Due == now; the
// caller stores such items as unscheduled.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"
)

var ErrEmptyText = errors.New("timeparse: empty text")

// Source names the rule that produced a Result.
const (
	SourceNone     = ""
	SourceDuration = "duration"
	SourceClock    = "hhmm"
	SourceNatural  = "natural"
)

// Result is the outcome of Parse.
type Result struct {
	Due time.Time
	// Confidence is 0 when no time expression was found, 1 otherwise.
	Confidence int
	Source     string
	// Matched is the substring recognized as the time expression.
	Matched string
}

// Schedulable reports whether a time was found.
func (r Result) Schedulable() bool { return r.Confidence > 0 }

// Error wraps a parser failure so the command layer can tell it apart from
// internal errors.
type Error struct {
	Text string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("cannot parse time in %q: %v", e.Text, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Parser is safe for concurrent use.
type Parser struct {
	loc *time.Location
	w   *when.Parser
}

// New returns a parser that interprets wall-clock expressions in loc. A nil
// loc means time.Local.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	w := when.New(nil)
	w.Add(ru.All...)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{loc: loc, w: w}
}

func (p *Parser) Location() *time.Location { return p.loc }

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Parse finds the first time expression in text, relative to now.
func (p *Parser) Parse(text string, now time.Time) (Result, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Result{}, ErrEmptyText
	}
	now = now.In(p.loc)

	first := strings.Fields(s)[0]
	if d, err := time.ParseDuration(first); err == nil {
		if d <= 0 {
			return Result{}, &Error{Text: text, Err: fmt.Errorf("duration must be > 0")}
		}
		return Result{Due: now.Add(d), Confidence: 1, Source: SourceDuration, Matched: first}, nil
	}
	if m := reClock.FindStringSubmatch(first); m != nil {
		due, err := nextClock(now, m[1], m[2])
		if err != nil {
			return Result{}, &Error{Text: text, Err: err}
		}
		return Result{Due: due, Confidence: 1, Source: SourceClock, Matched: first}, nil
	}

	r, err := p.w.Parse(s, now)
	if err != nil {
		return Result{}, &Error{Text: text, Err: err}
	}
	if r == nil {
		return Result{Due: now, Source: SourceNone}, nil
	}
	return Result{Due: r.Time, Confidence: 1, Source: SourceNatural, Matched: r.Text}, nil
}

// nextClock returns the next occurrence of hh:mm at or after now.
func nextClock(now time.Time, hh, mm string) (time.Time, error) {
	h, err := strconv.Atoi(hh)
	if err != nil || h > 23 {
		return time.Time{}, fmt.Errorf("invalid hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m > 59 {
		return time.Time{}, fmt.Errorf("invalid minute %q", mm)
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if due.Before(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due, nil
}
