package reminder

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateIdentity      = errors.New("reminder: duplicate id")
	ErrIdentitySpaceExhausted = errors.New("reminder: no free id left")
	ErrClosed                 = errors.New("reminder: store closed")
)

// MalformedRecordError reports a persisted line that cannot be turned into an
// Item. Line is 1-based and 0 when unknown.
type MalformedRecordError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := "malformed record"
	if e.Line > 0 {
		msg = fmt.Sprintf("malformed record at line %d", e.Line)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }
