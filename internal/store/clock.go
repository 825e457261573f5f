package store

import "time"

// Clock supplies the current time for expiry computation and filtering.
//
// now + timeout must exceed any expiry previously written for the same id;
// wall-clock time is good enough for that.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}
