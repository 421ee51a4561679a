// Package timeout defines the contract shared by every timeout backend:
// schedule a deadline to get a Handle, cancel it, and poll for expired handles.
//
// Backends are not safe for concurrent use. Callers confine all calls to one
// goroutine or guard the backend with their own lock. A Handler may call
// Schedule and Cancel on the backend that invoked it, but never Poll.
package timeout

import (
	"strconv"
	"time"

	"github.com/fixkme/bitwheel/errs"
)

// Handle identifies one scheduled timeout. Non-negative values are live
// handles; negative values are error sentinels returned by Schedule.
type Handle int64

const (
	// Expired: the deadline equals the start time or is already behind the cursor.
	Expired Handle = -1
	// OutOfRange: the deadline is beyond the configured horizon.
	OutOfRange Handle = -2
	// CapacityExceeded: the target bucket has no free slot.
	CapacityExceeded Handle = -3
)

func (h Handle) Valid() bool {
	return h >= 0
}

// Err maps an error sentinel to its errs value. Valid handles return nil.
func (h Handle) Err() error {
	switch {
	case h >= 0:
		return nil
	case h == Expired:
		return errs.Expired
	case h == OutOfRange:
		return errs.OutOfRange
	case h == CapacityExceeded:
		return errs.CapacityExceeded
	}
	return errs.InvalidHandle.Printf("handle=%d", int64(h))
}

func (h Handle) String() string {
	switch h {
	case Expired:
		return "Expired"
	case OutOfRange:
		return "OutOfRange"
	case CapacityExceeded:
		return "CapacityExceeded"
	}
	return strconv.FormatInt(int64(h), 10)
}

// Handler is called once per expired timeout during Poll. unit is the time
// unit tag the backend was built with, echoed back untouched.
type Handler func(unit time.Duration, now int64, h Handle)

type Timeout interface {
	// Schedule registers an absolute deadline and returns its handle or a
	// negative sentinel.
	Schedule(deadline int64) Handle
	// Cancel retracts an active handle. It returns false for handles that
	// already fired, were cancelled, or were never issued.
	Cancel(h Handle) bool
	// Poll advances to now and calls handler for every expired timeout.
	// A now at or before the current cursor is a no-op.
	Poll(now int64, handler Handler) int
}

// Limited is implemented by backends that can stop a poll after limit
// expirations and resume on the next call.
type Limited interface {
	PollLimit(now int64, limit int, handler Handler) int
}

type Counter interface {
	Count() int
}

// Drain polls t with limit when t supports it, and falls back to Poll.
func Drain(t Timeout, now int64, limit int, handler Handler) int {
	if l, ok := t.(Limited); ok && limit > 0 {
		return l.PollLimit(now, limit, handler)
	}
	return t.Poll(now, handler)
}

// Count returns the number of active timeouts, or -1 when t does not track it.
func Count(t Timeout) int {
	if c, ok := t.(Counter); ok {
		return c.Count()
	}
	return -1
}
