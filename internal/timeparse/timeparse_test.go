package timeparse

import (
	"errors"
	"testing"
	"time"
)

func TestParseForms(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	p := New(time.UTC)

	tests := []struct {
		name   string
		text   string
		due    time.Time
		source string
	}{
		{name: "duration", text: "10m позвонить маме", due: now.Add(10 * time.Minute), source: SourceDuration},
		{name: "compound duration", text: "1h30m deploy", due: now.Add(90 * time.Minute), source: SourceDuration},
		{name: "clock later today", text: "18:30 ужин", due: time.Date(2026, 10, 17, 18, 30, 0, 0, time.UTC), source: SourceClock},
		{name: "clock tomorrow", text: "09:05 зарядка", due: time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC), source: SourceClock},
		{name: "english deadline", text: "call bob in 2 hours", due: now.Add(2 * time.Hour), source: SourceNatural},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := p.Parse(tt.text, now)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.text, err)
			}
			if !r.Schedulable() || r.Source != tt.source {
				t.Fatalf("Parse(%q) = %+v, want source %s", tt.text, r, tt.source)
			}
			if !r.Due.Equal(tt.due) {
				t.Fatalf("Due = %v, want %v", r.Due, tt.due)
			}
		})
	}
}

func TestParseRussianRelative(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	r, err := New(time.UTC).Parse("через 2 часа позвонить", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !r.Schedulable() || !r.Due.After(now) {
		t.Fatalf("Parse = %+v, want a future due time", r)
	}
}

func TestParseNoTime(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	r, err := New(time.UTC).Parse("купить молоко", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Schedulable() || r.Confidence != 0 || !r.Due.Equal(now) {
		t.Fatalf("Parse = %+v, want confidence 0 and due == now", r)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	p := New(nil)
	if _, err := p.Parse("   ", time.Now()); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("Parse(blank) = %v, want ErrEmptyText", err)
	}
	for _, text := range []string{"25:00 x", "-5m x", "12:75 x"} {
		_, err := p.Parse(text, time.Now())
		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("Parse(%q) = %v, want *Error", text, err)
		}
	}
}

func TestParseUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) // 15:00 MSK
	r, err := New(loc).Parse("16:00 встреча", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC)
	if !r.Due.Equal(want) {
		t.Fatalf("Due = %v, want %v", r.Due, want)
	}
}
