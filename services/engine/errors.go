package engine

// Error taxonomy shared by every pipeline stage

import (
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindConfiguration         ErrorKind = "CONFIGURATION"
	KindInsufficientHedgeData ErrorKind = "INSUFFICIENT_HEDGE_DATA"
	KindMismatchedLegs        ErrorKind = "MISMATCHED_LEGS"
	KindEmptyTradeSet         ErrorKind = "EMPTY_TRADE_SET"
	KindIncompleteTrade       ErrorKind = "INCOMPLETE_TRADE"
)

// Error carries the kind of failure plus the bar index and date that triggered it
// when one is known. Index is -1 when the failure is not tied to a bar.
type Error struct {
	Kind    ErrorKind
	Message string
	Index   int
	Date    time.Time
}

var (
	ErrConfiguration         = &Error{Kind: KindConfiguration, Index: -1}
	ErrInsufficientHedgeData = &Error{Kind: KindInsufficientHedgeData, Index: -1}
	ErrMismatchedLegs        = &Error{Kind: KindMismatchedLegs, Index: -1}
	ErrEmptyTradeSet         = &Error{Kind: KindEmptyTradeSet, Index: -1}
	ErrIncompleteTrade       = &Error{Kind: KindIncompleteTrade, Index: -1}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Index >= 0 {
		msg += fmt.Sprintf(" (index %d", e.Index)
		if !e.Date.IsZero() {
			msg += ", " + e.Date.Format("2006-01-02")
		}
		msg += ")"
	}
	return msg
}

// Is matches on kind so errors.Is(err, ErrConfiguration) works for any configuration failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Index: -1}
}

func (e *Error) at(index int, date time.Time) *Error {
	e.Index = index
	e.Date = date
	return e
}
