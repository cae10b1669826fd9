// Package prayer turns provider timings into an ordered daily schedule and
// answers "what comes next" questions against it.
package prayer

import (
	"fmt"
	"strings"
	"time"
)

// Label identifies one of the six daily events, in canonical order.
type Label int

const (
	Fajr Label = iota
	Sunrise
	Dhuhr
	Asr
	Maghrib
	Isha
)

// Labels lists every label in its fixed daily sequence.
var Labels = []Label{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

var labelNames = [...]string{"Fajr", "Sunrise", "Dhuhr", "Asr", "Maghrib", "Isha"}

// ShortNames maps labels to single-character abbreviations.
var ShortNames = map[Label]string{
	Fajr:    "F",
	Sunrise: "S",
	Dhuhr:   "D",
	Asr:     "A",
	Maghrib: "M",
	Isha:    "I",
}

// String returns the provider key for the label, e.g. "Fajr".
func (l Label) String() string {
	if l < Fajr || l > Isha {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return labelNames[l]
}

// Short returns the single-character abbreviation.
func (l Label) Short() string {
	return ShortNames[l]
}

// ParseLabel maps a name like "fajr" or "Isha" to its Label.
func ParseLabel(name string) (Label, error) {
	name = strings.TrimSpace(name)
	for i, n := range labelNames {
		if strings.EqualFold(n, name) {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown prayer %q; valid names: %s", name, strings.Join(labelNames[:], ", "))
}

// ParseLabels parses a comma-separated list such as "Fajr,Dhuhr,Asr".
// Duplicates are dropped and the result follows canonical order.
func ParseLabels(list string) ([]Label, error) {
	seen := make(map[Label]bool)
	for _, part := range strings.Split(list, ",") {
		l, err := ParseLabel(part)
		if err != nil {
			return nil, err
		}
		seen[l] = true
	}
	out := make([]Label, 0, len(seen))
	for _, l := range Labels {
		if seen[l] {
			out = append(out, l)
		}
	}
	return out, nil
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the value as "HH:mm".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On resolves the time of day on the calendar date of date, in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// ParseTimeOfDay parses "HH:mm". A trailing zone annotation such as
// "05:17 (BST)", which the provider sometimes appends, is ignored.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, " "); idx != -1 {
		s = s[:idx]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TimeOfDay{}, fmt.Errorf("invalid time format: %q", raw)
	}

	hour, err := parseDigits(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", raw, err)
	}
	min, err := parseDigits(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", raw, err)
	}

	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("hour %d out of range in %q", hour, raw)
	}
	if min < 0 || min > 59 {
		return TimeOfDay{}, fmt.Errorf("minute %d out of range in %q", min, raw)
	}

	return TimeOfDay{Hour: hour, Minute: min}, nil
}

// parseDigits accepts exactly two ASCII digits.
func parseDigits(s string) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("expected 2 digits, got %q", s)
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
