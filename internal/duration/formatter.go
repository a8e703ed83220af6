// Package duration formats a time.Duration the way passivation.Strategy's
// String methods want it: "1h 2m 3s" instead of Go's "1h2m3s".
package duration

import (
	"strings"
	"time"
)

// Format returns a human-readable string for a time.Duration,
// supporting years, months, weeks, days, hours, minutes, seconds, milliseconds, microseconds, and nanoseconds.
//
// Note: Months and years are approximated as 30 days and 365 days respectively.
//
// Examples:
//   - 400 * 24 * time.Hour => "1y 1mo 5d"
//   - 90 * time.Second => "1m 30s"
//   - 2 * time.Hour + 15 * time.Minute => "2h 15m"
//   - 5 * time.Second => "5s"
func Format(d time.Duration) string {
	if d < 0 {
		return "0s"
	}

	const (
		nanosecond  = uint64(1)
		microsecond = 1000 * nanosecond
		millisecond = 1000 * microsecond
		second      = 1000 * millisecond
		minute      = 60 * second
		hour        = 60 * minute
		day         = 24 * hour
		week        = 7 * day
		month       = 30 * day  // Approximate month as 30 days
		year        = 365 * day // Approximate year as 365 days
	)

	units := []struct {
		name  string
		value uint64
	}{
		{"y", year},
		{"mo", month},
		{"w", week},
		{"d", day},
		{"h", hour},
		{"m", minute},
		{"s", second},
		{"ms", millisecond},
		{"us", microsecond},
		{"ns", nanosecond},
	}

	u := uint64(d)
	parts := []string{}

	for _, unit := range units {
		if u >= unit.value {
			val := u / unit.value
			parts = append(parts, formatUint(val)+unit.name)
			u -= val * unit.value
		}
	}

	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}

// formatUint returns the string representation of a uint64.
func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = '0' + byte(v%10)
		v /= 10
	}
	return string(buf[i:])
}
