package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/mirac/internal/api"
	"github.com/smokyabdulrahman/mirac/internal/cache"
	"github.com/smokyabdulrahman/mirac/internal/config"
	"github.com/smokyabdulrahman/mirac/internal/geo"
	"github.com/smokyabdulrahman/mirac/internal/prayer"
)

// locationMode describes how the user specified their location.
type locationMode int

const (
	locationCoords locationMode = iota
	locationCity
	locationAuto
)

// resolvedLocation holds the result of location resolution.
type resolvedLocation struct {
	Mode     locationMode
	Lat, Lon float64
	City     string
	Country  string
	Timezone string // optional hint from geo-detection
}

// fetchResult holds the data returned from a prayer times fetch.
type fetchResult struct {
	Timings  api.Timings
	Meta     api.Meta
	DateInfo api.DateInfo
}

// env bundles what every data-fetching command needs.
type env struct {
	cfg    *config.Config
	store  cache.Store // nil when caching is disabled
	client *api.Client
	params api.Params
	log    zerolog.Logger
}

// newEnv builds the environment from the merged config. A cache that cannot
// be opened only disables caching.
func newEnv(cfg *config.Config) *env {
	e := &env{
		cfg:    cfg,
		client: api.NewClient(),
		params: api.Params{
			Method:             cfg.MethodOrDefault(-1),
			School:             cfg.SchoolOrDefault(-1),
			LatitudeAdjustment: cfg.LatitudeAdjustmentOrDefault(-1),
		},
		log: log.Logger,
	}
	e.client.SetLogger(e.log)

	store, err := cache.Open(cache.Options{
		Backend:   cfg.CacheBackend,
		Dir:       cfg.CacheDir,
		RedisAddr: cfg.RedisAddr,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("cache disabled")
	} else {
		e.store = store
	}
	return e
}

// close releases the cache backend.
func (e *env) close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.log.Debug().Err(err).Msg("cache close failed")
	}
}

// resolveLocation determines the effective location based on user flags, config, or auto-detection.
// Priority: CLI flags > config > cached geolocation > IP auto-detect.
func (e *env) resolveLocation(ctx context.Context) (resolvedLocation, error) {
	cfg := e.cfg
	switch {
	case cfg.Latitude != 0 || cfg.Longitude != 0:
		return resolvedLocation{Mode: locationCoords, Lat: cfg.Latitude, Lon: cfg.Longitude}, nil
	case cfg.City != "":
		if cfg.Country == "" {
			return resolvedLocation{}, fmt.Errorf("--country is required when using --city")
		}
		return resolvedLocation{Mode: locationCity, City: cfg.City, Country: cfg.Country}, nil
	}

	if e.store != nil {
		if cached := e.store.LoadGeo(ctx); cached != nil {
			return fromGeo(cached), nil
		}
	}

	detected, err := geo.DetectLocation(ctx)
	if err != nil {
		return resolvedLocation{}, fmt.Errorf("no location specified and auto-detection failed: %w", err)
	}
	e.log.Debug().Str("city", detected.City).Str("timezone", detected.Timezone).Msg("location detected")

	if e.store != nil {
		if err := e.store.SaveGeo(ctx, detected); err != nil {
			e.log.Debug().Err(err).Msg("geo cache write failed")
		}
	}
	return fromGeo(detected), nil
}

func fromGeo(l *geo.Location) resolvedLocation {
	return resolvedLocation{
		Mode:     locationAuto,
		Lat:      l.Latitude,
		Lon:      l.Longitude,
		City:     l.City,
		Country:  l.Country,
		Timezone: l.Timezone,
	}
}

func (e *env) cacheKey(loc resolvedLocation) cache.Key {
	k := cache.Key{
		Method:             e.params.Method,
		School:             e.params.School,
		LatitudeAdjustment: e.params.LatitudeAdjustment,
	}
	if loc.Mode == locationCity {
		k.City, k.Country = loc.City, loc.Country
	} else {
		k.Latitude, k.Longitude = loc.Lat, loc.Lon
	}
	return k
}

// fetchTimings returns prayer timings for the given date, using the cache when available.
func (e *env) fetchTimings(ctx context.Context, date time.Time, loc resolvedLocation) (*fetchResult, error) {
	key := e.cacheKey(loc)
	if e.store != nil {
		if entry := e.store.LoadTimings(ctx, date, key); entry != nil {
			return &fetchResult{
				Timings:  entry.Timings,
				Meta:     entry.Meta,
				DateInfo: entry.DateInfo,
			}, nil
		}
	}

	var (
		resp *api.Response
		err  error
	)
	switch loc.Mode {
	case locationCity:
		resp, err = e.client.FetchByCity(ctx, date, loc.City, loc.Country, e.params)
	default:
		resp, err = e.client.FetchByCoordinates(ctx, date, loc.Lat, loc.Lon, e.params)
	}
	if err != nil {
		return nil, err
	}

	if e.store != nil {
		if err := e.store.SaveTimings(ctx, date, key, resp); err != nil {
			e.log.Debug().Err(err).Msg("timings cache write failed")
		}
	}

	return &fetchResult{
		Timings:  resp.Data.Timings,
		Meta:     resp.Data.Meta,
		DateInfo: resp.Data.Date,
	}, nil
}

// day is one fetched and normalized calendar date.
type day struct {
	Schedule prayer.DailySchedule
	Result   *fetchResult
	Timezone string
	Location *time.Location
}

// dayLoader turns provider timings into normalized schedules for one
// location. It implements trigger.Source.
type dayLoader struct {
	env    *env
	loc    resolvedLocation
	labels []prayer.Label
}

func newDayLoader(e *env, loc resolvedLocation, labels []prayer.Label) *dayLoader {
	return &dayLoader{env: e, loc: loc, labels: labels}
}

// load fetches and normalizes date. When the provider data is malformed the
// returned day still carries the fetch result and zone, alongside the error.
func (l *dayLoader) load(ctx context.Context, date time.Time) (*day, error) {
	res, err := l.env.fetchTimings(ctx, date, l.loc)
	if err != nil {
		return nil, err
	}

	tz := l.loc.Timezone
	if tz == "" {
		tz = res.Meta.Timezone
	}
	zone, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		return nil, fmt.Errorf("%w %q", prayer.ErrInvalidTimezone, tz)
	}

	d := &day{Result: res, Timezone: tz, Location: zone}
	sched, err := prayer.Normalize(res.Timings.Map(), tz, date)
	if err != nil {
		return d, err
	}
	d.Schedule = sched
	return d, nil
}

// today loads the schedule of the calendar date at now in the location's
// zone. The first fetch uses the host date, which may differ from the
// location's date; in that case the right date is fetched again.
func (l *dayLoader) today(ctx context.Context, now time.Time) (*day, time.Time, error) {
	d, err := l.load(ctx, now)
	if d == nil {
		return nil, now, err
	}

	local := now.In(d.Location)
	if sameDate(local, now) {
		return d, local, err
	}

	l.env.log.Debug().Str("timezone", d.Timezone).Str("date", local.Format("2006-01-02")).Msg("refetching for location date")
	d, err = l.load(ctx, local)
	if d == nil {
		return nil, local, err
	}
	return d, local, err
}

// Schedule returns the selected events of date.
func (l *dayLoader) Schedule(ctx context.Context, date time.Time) (prayer.DailySchedule, error) {
	d, err := l.load(ctx, date)
	if err != nil {
		return prayer.DailySchedule{}, err
	}
	return selectLabels(d.Schedule, l.labels), nil
}

// selectLabels keeps only the entries for labels. An empty selection keeps
// everything.
func selectLabels(s prayer.DailySchedule, labels []prayer.Label) prayer.DailySchedule {
	if len(labels) == 0 {
		return s
	}
	s.Entries = s.Filter(labels)
	return s
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// malformedLabels reports which labels made err a malformed schedule.
func malformedLabels(err error) (map[prayer.Label]bool, bool) {
	var malformed *prayer.MalformedScheduleError
	if !errors.As(err, &malformed) {
		return nil, false
	}
	bad := make(map[prayer.Label]bool)
	for _, l := range malformed.Labels() {
		bad[l] = true
	}
	return bad, true
}
