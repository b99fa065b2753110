// Package timefmt converts timer ticks into human readable run times.
package timefmt

import (
	"fmt"
	"math"
)

// Seconds converts a tick count into seconds for the given server tickrate.
func Seconds(ticks int64, tickrate float64) float64 {
	if tickrate <= 0 || ticks <= 0 {
		return 0
	}
	return float64(ticks) / tickrate
}

// Format renders a tick count as "M:SS.cc", growing to "H:MM:SS.cc" for runs
// over an hour.
func Format(ticks int64, tickrate float64) string {
	return FormatSeconds(Seconds(ticks, tickrate))
}

// FormatSeconds renders a duration in seconds the same way Format does.
func FormatSeconds(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	whole := int64(secs)
	centis := int64(math.Round((secs - float64(whole)) * 100))
	if centis >= 100 {
		whole++
		centis = 0
	}
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, centis)
	}
	return fmt.Sprintf("%d:%02d.%02d", m, s, centis)
}

// Diff renders the signed gap between two tick counts, e.g. "-0:01.25" when
// the candidate beat the reference.
func Diff(candidate, reference int64, tickrate float64) string {
	delta := candidate - reference
	sign := "+"
	if delta < 0 {
		sign = "-"
		delta = -delta
	}
	return sign + Format(delta, tickrate)
}
