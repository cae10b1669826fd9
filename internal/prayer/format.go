package prayer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Format constants for display modes.
const (
	FormatTimeRemaining      = "time-remaining"
	FormatNextPrayerTime     = "next-prayer-time"
	FormatNameAndTime        = "name-and-time"
	FormatNameAndRemaining   = "name-and-remaining"
	FormatShortNameAndTime   = "short-name-and-time"
	FormatShortNameAndRemain = "short-name-and-remaining"
	FormatCountdownMode      = "countdown"
	FormatFull               = "full"
)

// FormatData is the data passed to custom Go templates.
type FormatData struct {
	Name      string // Full prayer name, e.g. "Asr"
	ShortName string // Abbreviated name, e.g. "A"
	Time      string // Formatted prayer time, e.g. "15:02" or "3:02 PM"
	Remaining string // Compact time remaining, e.g. "2h 15m"
	Countdown string // Long time remaining, e.g. "2 hours 15 minutes"
	Hours     int    // Whole hours remaining
	Minutes   int    // Remaining minutes after hours
}

// splitMinutes truncates d to whole minutes and splits it. Negative input
// yields zero.
func splitMinutes(d time.Duration) (hours, minutes int) {
	if d < 0 {
		return 0, 0
	}
	total := int(d / time.Minute)
	return total / 60, total % 60
}

// FormatCountdown renders d as "1 hour 15 minutes" or "45 minutes". The hour
// part is omitted when zero. Seconds are truncated, never rounded up.
func FormatCountdown(d time.Duration) string {
	h, m := splitMinutes(d)
	mins := plural(m, "minute")
	if h == 0 {
		return mins
	}
	return plural(h, "hour") + " " + mins
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatRemaining formats a duration as "Xh Ym" or "Ym" if less than an hour.
func FormatRemaining(d time.Duration) string {
	h, m := splitMinutes(d)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// FormatOutput formats the next event according to the chosen mode.
// timeLayout should be "15:04" for 24h or "3:04 PM" for 12h.
//
// If mode contains "{{", it is treated as a custom Go template string.
// Available template fields: .Name, .ShortName, .Time, .Remaining,
// .Countdown, .Hours, .Minutes
//
// Example: "{{.Name}} in {{.Remaining}}" -> "Asr in 2h 15m"
func FormatOutput(next NextEvent, now time.Time, mode string, timeLayout string) string {
	d := next.Instant.Sub(now)
	remaining := FormatRemaining(d)
	timeStr := next.Instant.Format(timeLayout)
	name := next.Label.String()
	short := next.Label.Short()

	if strings.Contains(mode, "{{") {
		h, m := splitMinutes(d)
		return formatCustom(mode, FormatData{
			Name:      name,
			ShortName: short,
			Time:      timeStr,
			Remaining: remaining,
			Countdown: FormatCountdown(d),
			Hours:     h,
			Minutes:   m,
		})
	}

	switch mode {
	case FormatTimeRemaining:
		return remaining
	case FormatNextPrayerTime:
		return timeStr
	case FormatNameAndTime:
		return fmt.Sprintf("%s %s", name, timeStr)
	case FormatNameAndRemaining:
		return fmt.Sprintf("%s %s", name, remaining)
	case FormatShortNameAndTime:
		return fmt.Sprintf("%s %s", short, timeStr)
	case FormatShortNameAndRemain:
		return fmt.Sprintf("%s %s", short, remaining)
	case FormatCountdownMode:
		return fmt.Sprintf("%s in %s", name, FormatCountdown(d))
	case FormatFull:
		return fmt.Sprintf("%s %s (%s)", name, timeStr, remaining)
	default:
		return fmt.Sprintf("%s %s", name, timeStr)
	}
}

// formatCustom executes a user-provided Go template string against the FormatData.
func formatCustom(tmpl string, data FormatData) string {
	t, err := template.New("custom").Parse(tmpl)
	if err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	return buf.String()
}
