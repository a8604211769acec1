// Package timestamp standardizes the float64-seconds clock carried on the
// wire. Envelopes stamp production time as seconds since the Unix epoch
// with fractional precision; this package is the one place that converts
// between that representation and time.Time.
package timestamp

import "time"

// Now returns the current wall clock as epoch seconds.
func Now() float64 {
	return ToSeconds(time.Now())
}

// ToSeconds converts a time.Time to epoch seconds.
func ToSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromSeconds converts epoch seconds to time.Time. Zero means "not set"
// and maps to the zero time.
func FromSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*float64(time.Second))).UTC()
}

// Format renders epoch seconds as RFC3339 with millisecond precision, or
// an empty string for the zero value.
func Format(s float64) string {
	if s == 0 {
		return ""
	}
	return FromSeconds(s).Format("2006-01-02T15:04:05.000Z07:00")
}

// Age reports how long ago the stamp was taken. Zero stamps have no age.
func Age(s float64) time.Duration {
	if s == 0 {
		return 0
	}
	return time.Since(FromSeconds(s))
}
