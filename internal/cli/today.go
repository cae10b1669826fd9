package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mirac/internal/display"
	"github.com/smokyabdulrahman/mirac/internal/prayer"
)

const unavailable = "unavailable"

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's prayer schedule",
		Long:  "Display today's prayer times with the current prayer dimmed and the next one highlighted with a countdown.\nThis is also the default when mirac runs without a subcommand.",
		RunE:  runToday,
	}
}

// todayRow is one line of the schedule. Time holds "unavailable" when the
// provider sent no usable value for the label.
type todayRow struct {
	Label     prayer.Label
	Time      string
	Instant   time.Time
	Available bool
}

// todayView is the rendered state of the today screen.
type todayView struct {
	Rows        []todayRow
	Current     int // row index, -1 when none
	Next        int // row index, -1 when every event has passed
	Remaining   time.Duration
	Unavailable []prayer.Label
}

func runToday(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig(cmd)
	labels, err := cfg.PrayerLabels()
	if err != nil {
		return err
	}
	layout := timeLayout(cfg)
	ctx := cmd.Context()

	e := newEnv(cfg)
	defer e.close()
	loc, err := e.resolveLocation(ctx)
	if err != nil {
		return err
	}

	d, now, err := newDayLoader(e, loc, labels).today(ctx, time.Now())
	bad, malformed := malformedLabels(err)
	if err != nil && !malformed {
		return err
	}
	if malformed {
		e.log.Warn().Err(err).Msg("provider returned malformed timings")
	}

	view := buildTodayView(d, labels, bad, now, layout)

	if FlagJSON {
		return printTodayJSON(view, now, d, loc)
	}

	printTodayRich(view, now, d, buildLocationStr(loc, d.Result))
	return nil
}

// buildTodayView lays out the selected labels. With a malformed schedule the
// valid labels keep their times in canonical order, the rest are marked
// unavailable, and nothing is highlighted.
func buildTodayView(d *day, labels []prayer.Label, bad map[prayer.Label]bool, now time.Time, layout string) todayView {
	view := todayView{Current: -1, Next: -1}

	if bad == nil {
		sched := selectLabels(d.Schedule, labels)
		cur, hasCur := prayer.Current(sched, now)
		next, nextErr := prayer.Resolve(sched, now)
		for i, e := range sched.Entries {
			view.Rows = append(view.Rows, todayRow{
				Label:     e.Label,
				Time:      e.Instant.Format(layout),
				Instant:   e.Instant,
				Available: true,
			})
			if hasCur && e.Label == cur.Label {
				view.Current = i
			}
			if nextErr == nil && e.Label == next.Label {
				view.Next = i
				view.Remaining = next.Remaining
			}
		}
		return view
	}

	raw := d.Result.Timings.Map()
	for _, label := range labels {
		tod, err := prayer.ParseTimeOfDay(raw[label.String()])
		if bad[label] || err != nil {
			view.Rows = append(view.Rows, todayRow{Label: label, Time: unavailable})
			view.Unavailable = append(view.Unavailable, label)
			continue
		}
		at := tod.On(now, d.Location)
		view.Rows = append(view.Rows, todayRow{
			Label:     label,
			Time:      at.Format(layout),
			Instant:   at,
			Available: true,
		})
	}
	return view
}

// buildLocationStr builds a "City, Country" string from available data.
func buildLocationStr(loc resolvedLocation, result *fetchResult) string {
	if loc.City != "" && loc.Country != "" {
		return loc.City + ", " + loc.Country
	}
	// Fall back to coordinates.
	return fmt.Sprintf("%.4f, %.4f", result.Meta.Latitude, result.Meta.Longitude)
}

// printTodayRich renders the colored terminal output for today's prayer schedule.
func printTodayRich(view todayView, now time.Time, d *day, locationStr string) {
	fmt.Println()
	fmt.Printf("  %s\n", display.Bold("Prayer Times"))
	fmt.Println()

	fmt.Printf("  %s\n", locationStr)
	fmt.Printf("  %s\n", d.Timezone)
	fmt.Printf("  %s\n", formatGregorianDate(now, d.Result))
	if hijri := d.Result.DateInfo.Hijri.Format(); hijri != "" {
		fmt.Printf("  %s\n", hijri)
	}
	fmt.Println()

	t := display.NewTable([]string{"Prayer", "Time", ""})
	for i, r := range view.Rows {
		note := ""
		if i == view.Next {
			note = "<- next in " + prayer.FormatCountdown(view.Remaining)
		}
		t.AddRow([]string{r.Label.String(), r.Time, note})
	}
	t.SetDimRow(view.Current)
	t.SetHighlightRow(view.Next)
	fmt.Print(t.Render())

	if len(view.Unavailable) > 0 {
		names := make([]string, len(view.Unavailable))
		for i, l := range view.Unavailable {
			names[i] = l.String()
		}
		fmt.Println()
		fmt.Printf("  %s\n", display.Red("Provider data unavailable for: "+strings.Join(names, ", ")))
	}

	fmt.Println()
}

// formatGregorianDate returns a formatted Gregorian date string.
// Prefers API data; falls back to formatting `now`.
func formatGregorianDate(now time.Time, result *fetchResult) string {
	g := result.DateInfo.Gregorian
	if g.Day != "" && g.Month.En != "" && g.Year != "" {
		return g.Day + " " + g.Month.En + " " + g.Year
	}
	return now.Format("02 Jan 2006")
}

// todayJSON is the JSON output structure for the root command.
type todayJSON struct {
	Location todayJSONLocation `json:"location"`
	Date     todayJSONDate     `json:"date"`
	Timings  map[string]string `json:"timings"`
	Current  string            `json:"current"`
	Next     *todayJSONNext    `json:"next"`
}

type todayJSONLocation struct {
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Timezone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type todayJSONDate struct {
	Gregorian string `json:"gregorian"`
	Hijri     string `json:"hijri"`
}

type todayJSONNext struct {
	Prayer    string `json:"prayer"`
	Time      string `json:"time"`
	Remaining string `json:"remaining"`
	Countdown string `json:"countdown"`
}

// printTodayJSON renders structured JSON output.
func printTodayJSON(view todayView, now time.Time, d *day, loc resolvedLocation) error {
	out := todayJSON{
		Location: todayJSONLocation{
			Timezone:  d.Timezone,
			Latitude:  d.Result.Meta.Latitude,
			Longitude: d.Result.Meta.Longitude,
		},
		Date: todayJSONDate{
			Gregorian: formatGregorianDate(now, d.Result),
			Hijri:     d.Result.DateInfo.Hijri.Format(),
		},
		Timings: todayTimings(view),
	}

	if loc.City != "" && loc.Country != "" {
		out.Location.City = loc.City
		out.Location.Country = loc.Country
	}

	if view.Current >= 0 {
		out.Current = strings.ToLower(view.Rows[view.Current].Label.String())
	}
	if view.Next >= 0 {
		r := view.Rows[view.Next]
		out.Next = &todayJSONNext{
			Prayer:    strings.ToLower(r.Label.String()),
			Time:      r.Time,
			Remaining: prayer.FormatRemaining(view.Remaining),
			Countdown: prayer.FormatCountdown(view.Remaining),
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func todayTimings(view todayView) map[string]string {
	timings := make(map[string]string, len(view.Rows))
	for _, r := range view.Rows {
		timings[strings.ToLower(r.Label.String())] = r.Time
	}
	return timings
}
