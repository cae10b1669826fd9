package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/smokyabdulrahman/mirac/internal/api"
	"github.com/smokyabdulrahman/mirac/internal/prayer"
)

func sampleTimings() api.Timings {
	return api.Timings{
		Fajr:       "05:17",
		Sunrise:    "06:48",
		Dhuhr:      "12:13",
		Asr:        "15:02",
		Sunset:     "17:39",
		Maghrib:    "17:39",
		Isha:       "19:10",
		Imsak:      "05:07",
		Midnight:   "00:14",
		Firstthird: "22:02",
		Lastthird:  "02:25",
	}
}

// sampleDay normalizes timings on 28 Feb 2026 in UTC the way dayLoader does.
func sampleDay(t *testing.T, timings api.Timings) (*day, error) {
	t.Helper()
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	d := &day{
		Result:   &fetchResult{Timings: timings},
		Timezone: "UTC",
		Location: time.UTC,
	}
	sched, err := prayer.Normalize(timings.Map(), "UTC", date)
	if err != nil {
		return d, err
	}
	d.Schedule = sched
	return d, nil
}

func TestBuildLocationStr_CityCountry(t *testing.T) {
	loc := resolvedLocation{City: "Riyadh", Country: "Saudi Arabia"}
	result := &fetchResult{Meta: api.Meta{Latitude: 24.7136, Longitude: 46.6753}}

	got := buildLocationStr(loc, result)
	want := "Riyadh, Saudi Arabia"
	if got != want {
		t.Errorf("buildLocationStr() = %q, want %q", got, want)
	}
}

func TestBuildLocationStr_CoordsOnly(t *testing.T) {
	loc := resolvedLocation{Lat: 24.7136, Lon: 46.6753}
	result := &fetchResult{Meta: api.Meta{Latitude: 24.7136, Longitude: 46.6753}}

	got := buildLocationStr(loc, result)
	want := "24.7136, 46.6753"
	if got != want {
		t.Errorf("buildLocationStr() = %q, want %q", got, want)
	}
}

func TestFormatGregorianDate_FromAPI(t *testing.T) {
	now := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	result := &fetchResult{
		DateInfo: api.DateInfo{
			Gregorian: api.GregorianDate{
				Day:   "28",
				Month: api.GregorianMonth{Number: 2, En: "February"},
				Year:  "2026",
			},
		},
	}

	got := formatGregorianDate(now, result)
	want := "28 February 2026"
	if got != want {
		t.Errorf("formatGregorianDate() = %q, want %q", got, want)
	}
}

func TestFormatGregorianDate_Fallback(t *testing.T) {
	now := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	result := &fetchResult{} // empty DateInfo

	got := formatGregorianDate(now, result)
	want := "28 Feb 2026"
	if got != want {
		t.Errorf("formatGregorianDate() fallback = %q, want %q", got, want)
	}
}

func TestBuildTodayView_CurrentAndNext(t *testing.T) {
	d, err := sampleDay(t, sampleTimings())
	if err != nil {
		t.Fatal(err)
	}

	// At 13:00 current=Dhuhr, next=Asr.
	now := time.Date(2026, 2, 28, 13, 0, 0, 0, time.UTC)
	view := buildTodayView(d, prayer.Labels, nil, now, "15:04")

	if len(view.Rows) != 6 {
		t.Fatalf("got %d rows, want 6", len(view.Rows))
	}
	if view.Current < 0 || view.Rows[view.Current].Label != prayer.Dhuhr {
		t.Errorf("current row = %d, want Dhuhr", view.Current)
	}
	if view.Next < 0 || view.Rows[view.Next].Label != prayer.Asr {
		t.Errorf("next row = %d, want Asr", view.Next)
	}
	if view.Remaining != 2*time.Hour+2*time.Minute {
		t.Errorf("remaining = %v, want 2h2m", view.Remaining)
	}
	if view.Rows[view.Next].Time != "15:02" {
		t.Errorf("next time = %q, want 15:02", view.Rows[view.Next].Time)
	}
	if len(view.Unavailable) != 0 {
		t.Errorf("unexpected unavailable labels: %v", view.Unavailable)
	}
}

func TestBuildTodayView_BeforeFajr(t *testing.T) {
	d, err := sampleDay(t, sampleTimings())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 2, 28, 3, 0, 0, 0, time.UTC)
	view := buildTodayView(d, prayer.Labels, nil, now, "15:04")
	if view.Current != -1 {
		t.Errorf("current = %d, want -1 before Fajr", view.Current)
	}
	if view.Next != 0 {
		t.Errorf("next = %d, want 0 (Fajr)", view.Next)
	}
}

func TestBuildTodayView_AfterIsha(t *testing.T) {
	d, err := sampleDay(t, sampleTimings())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 2, 28, 22, 0, 0, 0, time.UTC)
	view := buildTodayView(d, prayer.Labels, nil, now, "15:04")
	if view.Next != -1 {
		t.Errorf("next = %d, want -1 after Isha", view.Next)
	}
	if view.Current < 0 || view.Rows[view.Current].Label != prayer.Isha {
		t.Errorf("current = %d, want Isha", view.Current)
	}
}

func TestBuildTodayView_Selection(t *testing.T) {
	d, err := sampleDay(t, sampleTimings())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 2, 28, 13, 0, 0, 0, time.UTC)
	view := buildTodayView(d, []prayer.Label{prayer.Fajr, prayer.Maghrib}, nil, now, "3:04 PM")
	if len(view.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(view.Rows))
	}
	if view.Rows[1].Label != prayer.Maghrib || view.Rows[1].Time != "5:39 PM" {
		t.Errorf("row 1 = %+v, want Maghrib 5:39 PM", view.Rows[1])
	}
	if view.Next != 1 {
		t.Errorf("next = %d, want 1 (Maghrib)", view.Next)
	}
	if view.Current != 0 {
		t.Errorf("current = %d, want 0 (Fajr)", view.Current)
	}
}

func TestBuildTodayView_Malformed(t *testing.T) {
	timings := sampleTimings()
	timings.Asr = "25:00"
	timings.Isha = ""

	d, err := sampleDay(t, timings)
	bad, ok := malformedLabels(err)
	if !ok {
		t.Fatalf("expected a malformed schedule error, got %v", err)
	}

	now := time.Date(2026, 2, 28, 13, 0, 0, 0, time.UTC)
	view := buildTodayView(d, prayer.Labels, bad, now, "15:04")

	if len(view.Rows) != 6 {
		t.Fatalf("got %d rows, want 6", len(view.Rows))
	}
	if view.Current != -1 || view.Next != -1 {
		t.Errorf("no highlight expected, got current=%d next=%d", view.Current, view.Next)
	}
	for _, r := range view.Rows {
		switch r.Label {
		case prayer.Asr, prayer.Isha:
			if r.Available || r.Time != unavailable {
				t.Errorf("%s = %+v, want unavailable", r.Label, r)
			}
		default:
			if !r.Available {
				t.Errorf("%s unexpectedly unavailable", r.Label)
			}
		}
	}
	if len(view.Unavailable) != 2 || view.Unavailable[0] != prayer.Asr || view.Unavailable[1] != prayer.Isha {
		t.Errorf("Unavailable = %v, want [Asr Isha]", view.Unavailable)
	}
	if view.Rows[0].Time != "05:17" {
		t.Errorf("Fajr time = %q, want 05:17", view.Rows[0].Time)
	}
}

func TestTodayTimings_LowercaseKeys(t *testing.T) {
	view := todayView{Rows: []todayRow{
		{Label: prayer.Fajr, Time: "05:17"},
		{Label: prayer.Asr, Time: unavailable},
	}}
	got := todayTimings(view)
	if got["fajr"] != "05:17" || got["asr"] != unavailable || len(got) != 2 {
		t.Errorf("todayTimings = %v", got)
	}
}

func TestMalformedLabels_OtherError(t *testing.T) {
	if _, ok := malformedLabels(errors.New("boom")); ok {
		t.Error("plain error reported as malformed")
	}
	if _, ok := malformedLabels(nil); ok {
		t.Error("nil error reported as malformed")
	}
}

func TestSelectLabels(t *testing.T) {
	d, err := sampleDay(t, sampleTimings())
	if err != nil {
		t.Fatal(err)
	}

	if got := selectLabels(d.Schedule, nil); len(got.Entries) != 6 {
		t.Errorf("empty selection kept %d entries, want 6", len(got.Entries))
	}
	got := selectLabels(d.Schedule, []prayer.Label{prayer.Isha, prayer.Fajr})
	if len(got.Entries) != 2 || got.Entries[0].Label != prayer.Fajr || got.Entries[1].Label != prayer.Isha {
		t.Errorf("selection = %+v, want Fajr then Isha", got.Entries)
	}
	if len(d.Schedule.Entries) != 6 {
		t.Error("selectLabels modified the original schedule")
	}
}

func TestSameDate(t *testing.T) {
	riyadh := time.FixedZone("AST", 3*3600)
	utc := time.Date(2026, 2, 28, 22, 0, 0, 0, time.UTC)
	if !sameDate(utc, utc.Add(time.Hour)) {
		t.Error("same day reported as different")
	}
	if sameDate(utc, utc.In(riyadh)) {
		t.Error("22:00 UTC is already the next day in Riyadh")
	}
}
