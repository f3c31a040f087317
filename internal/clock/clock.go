// Package clock abstracts wall-clock time and timers so debounce and polling
// behaviour can be driven deterministically in tests.
package clock

import "time"

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending call scheduled by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call was
	// still pending.
	Stop() bool
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// OrDefault returns c, or the real clock when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return New()
	}
	return c
}
