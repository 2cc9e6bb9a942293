// Package system provides the clocks used to stamp first_seen_utc.
package system

import (
	"time"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// Clock reads the wall clock in UTC.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock frozen at one instant. Tests use it to pin first_seen_utc.
type Fixed time.Time

// Now returns the frozen instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}

// Epoch returns the clock's reading as Unix seconds, the resolution stores
// persist first_seen_utc at. A nil clock falls back to the wall clock.
func Epoch(c crawler.Clock) int64 {
	if c == nil {
		c = Clock{}
	}
	return c.Now().Unix()
}
