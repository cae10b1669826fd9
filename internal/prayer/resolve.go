package prayer

import (
	"errors"
	"time"
)

// NextEvent is the upcoming entry and the time left until it.
type NextEvent struct {
	Label     Label
	Instant   time.Time
	Remaining time.Duration
}

// Resolve returns the first entry strictly after now. An entry whose instant
// equals now is current, not next. When now is at or after the last entry,
// Resolve returns ErrWrapAroundNeeded.
func Resolve(schedule DailySchedule, now time.Time) (NextEvent, error) {
	if schedule.IsZero() {
		return NextEvent{}, ErrEmptySchedule
	}

	for _, e := range schedule.Entries {
		if e.Instant.After(now) {
			return NextEvent{
				Label:     e.Label,
				Instant:   e.Instant,
				Remaining: e.Instant.Sub(now),
			}, nil
		}
	}
	return NextEvent{}, ErrWrapAroundNeeded
}

// ResolveWithTomorrow resolves against today and, on wraparound, against
// tomorrow. tomorrow may be zero when the caller knows today still has a
// future entry.
func ResolveWithTomorrow(today, tomorrow DailySchedule, now time.Time) (NextEvent, error) {
	next, err := Resolve(today, now)
	if !errors.Is(err, ErrWrapAroundNeeded) {
		return next, err
	}
	return Resolve(tomorrow, now)
}

// Current returns the latest entry at or before now.
func Current(schedule DailySchedule, now time.Time) (Entry, bool) {
	var (
		cur   Entry
		found bool
	)
	for _, e := range schedule.Entries {
		if e.Instant.After(now) {
			break
		}
		cur, found = e, true
	}
	return cur, found
}
