package domain

import "time"

// Floating is the location given to timestamps that were recorded without a
// UTC offset. Such wall-clock times compare as if they were UTC, but they are
// never silently mixed with offset-aware times where awareness matters.
var Floating = time.FixedZone("floating", 0)

// IsFloating reports whether t was recorded without an offset.
func IsFloating(t time.Time) bool {
	return t.Location() == Floating
}

// AsFloating reinterprets the wall clock of t as a floating time.
func AsFloating(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Floating)
}
