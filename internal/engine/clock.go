package engine

import "time"

// Clock abstracts time.Now() and timers to allow deterministic testing.
// It is used by the Verifier to determine "today" and by the background
// loops (cycle runner, ledger sweeper) to wait between iterations.
type Clock interface {
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After delegates to time.After.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
