package prayer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrWrapAroundNeeded signals that every entry of the schedule is at or
	// before now. The caller must normalize the following date and retry.
	ErrWrapAroundNeeded = errors.New("next event falls on the following day")

	// ErrEmptySchedule is returned when resolving against a zero schedule.
	ErrEmptySchedule = errors.New("schedule has no entries")

	// ErrInvalidTimezone wraps time.LoadLocation failures.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Entry is one labelled event resolved to an absolute instant.
type Entry struct {
	Label   Label
	Instant time.Time
}

// DailySchedule holds the six events of one calendar day, ordered by instant.
type DailySchedule struct {
	Date     time.Time // midnight of the day, in Location
	Location *time.Location
	Entries  []Entry
}

// IsZero reports whether the schedule holds no entries.
func (s DailySchedule) IsZero() bool {
	return len(s.Entries) == 0
}

// Lookup returns the entry for label.
func (s DailySchedule) Lookup(label Label) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Label == label {
			return e, true
		}
	}
	return Entry{}, false
}

// Filter returns the entries whose label is in labels, keeping schedule order.
func (s DailySchedule) Filter(labels []Label) []Entry {
	want := make(map[Label]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	var out []Entry
	for _, e := range s.Entries {
		if want[e.Label] {
			out = append(out, e)
		}
	}
	return out
}

// LabelProblem describes why one label could not be normalized.
type LabelProblem struct {
	Label  Label
	Raw    string
	Reason string
}

// MalformedScheduleError lists every missing or invalid label in a provider
// response. Normalize never returns a partial schedule alongside it.
type MalformedScheduleError struct {
	Problems []LabelProblem
}

func (e *MalformedScheduleError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		if p.Raw == "" {
			parts[i] = fmt.Sprintf("%s %s", p.Label, p.Reason)
		} else {
			parts[i] = fmt.Sprintf("%s %q %s", p.Label, p.Raw, p.Reason)
		}
	}
	return "malformed schedule: " + strings.Join(parts, "; ")
}

// Labels returns the offending labels in canonical order.
func (e *MalformedScheduleError) Labels() []Label {
	out := make([]Label, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p.Label
	}
	return out
}

// Normalize resolves raw provider timings against referenceDate in timezone.
// The year, month and day of referenceDate are used as given.
func Normalize(raw map[string]string, timezone string, referenceDate time.Time) (DailySchedule, error) {
	if timezone == "" {
		return DailySchedule{}, fmt.Errorf("%w: empty name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return DailySchedule{}, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, timezone, err)
	}

	var (
		entries  = make([]Entry, 0, len(Labels))
		problems []LabelProblem
	)
	for _, label := range Labels {
		value, problem := lookupRaw(raw, label)
		if problem != "" {
			problems = append(problems, LabelProblem{Label: label, Raw: value, Reason: problem})
			continue
		}

		tod, err := ParseTimeOfDay(value)
		if err != nil {
			problems = append(problems, LabelProblem{Label: label, Raw: value, Reason: err.Error()})
			continue
		}

		entries = append(entries, Entry{Label: label, Instant: tod.On(referenceDate, loc)})
	}

	if len(problems) > 0 {
		return DailySchedule{}, &MalformedScheduleError{Problems: problems}
	}

	// Entries were built in label order, so a stable sort keeps that order on ties.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Instant.Before(entries[j].Instant)
	})

	return DailySchedule{
		Date:     time.Date(referenceDate.Year(), referenceDate.Month(), referenceDate.Day(), 0, 0, 0, 0, loc),
		Location: loc,
		Entries:  entries,
	}, nil
}

// lookupRaw finds the value for label. An exact key wins; otherwise a
// single case-insensitive match is accepted.
func lookupRaw(raw map[string]string, label Label) (string, string) {
	key := label.String()
	if v, ok := raw[key]; ok {
		return v, ""
	}

	var (
		found  bool
		value  string
		differ bool
	)
	for k, v := range raw {
		if !strings.EqualFold(k, key) {
			continue
		}
		if found && v != value {
			differ = true
		}
		found = true
		value = v
	}

	switch {
	case !found:
		return "", "missing"
	case differ:
		return "", "ambiguous: conflicting keys differ only in case"
	default:
		return value, ""
	}
}
