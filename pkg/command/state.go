package command

import (
	"strconv"
	"time"
)

// CallID correlates an invocation with its return value. Zero is never
// issued.
type CallID uint64

// String returns the decimal id.
func (id CallID) String() string { return strconv.FormatUint(uint64(id), 10) }

// CallState is the lifecycle state of a call.
type CallState uint8

const (
	StateUnsent CallState = iota
	StateSent
	StateReturned
	StateTimedOut
	StateDropped
)

// String returns the state name.
func (s CallState) String() string {
	switch s {
	case StateUnsent:
		return "UNSENT"
	case StateSent:
		return "SENT"
	case StateReturned:
		return "RETURNED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// Outstanding returns true while the return value can still be retrieved.
func (s CallState) Outstanding() bool {
	return s == StateSent || s == StateTimedOut
}

// Policy selects how an invocation's return value is delivered.
type Policy uint8

const (
	// Immediate sends and waits for the return value.
	Immediate Policy = iota
	// Delay sends and leaves retrieval to the caller.
	Delay
	// Drop sends and discards the return value.
	Drop
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case Immediate:
		return "IMMEDIATE"
	case Delay:
		return "DELAY"
	case Drop:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

// ParsePolicy converts a policy name, case-sensitive.
func ParsePolicy(s string) (Policy, bool) {
	for _, p := range []Policy{Immediate, Delay, Drop} {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// WaitForever makes a wait block until the value arrives.
const WaitForever time.Duration = -1
