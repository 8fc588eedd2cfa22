package util

import (
	"math"
	"time"
)

// NowUTC exposes time.Now for deterministic testing.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// HoursBetween returns the whole number of hours from then to now, rounded half away from zero.
func HoursBetween(then, now time.Time) int {
	return int(math.Round(now.Sub(then).Hours()))
}
