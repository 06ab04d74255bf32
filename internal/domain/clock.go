package domain

import "time"

// Clock supplies the ledger's notion of current time in unix seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// FixedClock always returns the same instant. Advance moves it forward.
type FixedClock struct {
	At int64
}

// Now implements Clock.
func (c *FixedClock) Now() int64 {
	return c.At
}

// Advance moves the clock forward by secs.
func (c *FixedClock) Advance(secs int64) {
	c.At += secs
}
