package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/mirac/internal/prayer"
)

// maxWrapAttempts bounds how many following days are loaded when a
// schedule has no future entry.
const maxWrapAttempts = 2

var (
	// ErrNoSource is returned when a wraparound is needed but no Source
	// was configured.
	ErrNoSource = errors.New("trigger: no schedule source configured")

	// ErrNoUpcomingEvent is returned when the following days loaded from
	// the Source still hold no event after now.
	ErrNoUpcomingEvent = errors.New("trigger: no upcoming event found")
)

// Source loads the normalized schedule of a calendar date.
type Source interface {
	Schedule(ctx context.Context, date time.Time) (prayer.DailySchedule, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, date time.Time) (prayer.DailySchedule, error)

func (f SourceFunc) Schedule(ctx context.Context, date time.Time) (prayer.DailySchedule, error) {
	return f(ctx, date)
}

// Handle identifies the live timer. A new handle is issued on every arm.
type Handle uuid.UUID

// IsZero reports whether h is the zero handle of an idle scheduler.
func (h Handle) IsZero() bool { return uuid.UUID(h) == uuid.Nil }

func (h Handle) String() string { return uuid.UUID(h).String() }

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

type eventKey struct{}

// ContextWithEvent returns a copy of ctx carrying ev. The scheduler uses it
// for the context passed to Action.Fire.
func ContextWithEvent(ctx context.Context, ev prayer.NextEvent) context.Context {
	return context.WithValue(ctx, eventKey{}, ev)
}

// EventFromContext returns the event being fired.
func EventFromContext(ctx context.Context) (prayer.NextEvent, bool) {
	ev, ok := ctx.Value(eventKey{}).(prayer.NextEvent)
	return ev, ok
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithErrorHandler registers a callback for failures that stop the loop.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// WithContext sets the context passed to the action and the source.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// Scheduler fires an Action at every event of a daily schedule.
type Scheduler struct {
	clock   Clock
	action  Action
	source  Source
	log     zerolog.Logger
	onError func(error)
	ctx     context.Context

	// fireMu serializes firings.
	fireMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	state    State
	timer    Timer
	handle   Handle
	next     prayer.NextEvent
	schedule prayer.DailySchedule
}

// New creates an idle Scheduler. source may be nil if the caller re-arms
// after the last event of each day itself.
func New(clock Clock, action Action, source Source, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		action: action,
		source: source,
		log:    zerolog.Nop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm resolves the next event of schedule after now and starts a timer for
// it, replacing any live timer. When the event is already due the action
// fires immediately.
func (s *Scheduler) Arm(schedule prayer.DailySchedule, now time.Time) error {
	next, sched, err := s.resolve(schedule, now)
	if err != nil {
		s.mu.Lock()
		s.disarmLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(sched, next)
	return nil
}

// Cancel stops the live timer. It is safe to call at any time and more
// than once. An action already running is not interrupted but will not
// re-arm.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Armed {
		s.log.Debug().Str("handle", s.handle.String()).Msg("trigger cancelled")
	}
	s.disarmLocked()
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next returns the armed event. The boolean is false when idle.
func (s *Scheduler) Next() (prayer.NextEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return prayer.NextEvent{}, false
	}
	return s.next, true
}

// Handle returns the id of the live timer, or the zero handle when idle.
func (s *Scheduler) Handle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Scheduler) armLocked(sched prayer.DailySchedule, next prayer.NextEvent) {
	s.disarmLocked()
	gen := s.gen

	s.state = Armed
	s.handle = Handle(uuid.New())
	s.next = next
	s.schedule = sched

	delay := next.Instant.Sub(s.clock.Now())
	s.log.Info().
		Str("prayer", next.Label.String()).
		Time("at", next.Instant).
		Dur("in", delay).
		Str("handle", s.handle.String()).
		Msg("trigger armed")

	if delay <= 0 {
		go s.fire(gen)
		return
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
}

// disarmLocked stops the timer and invalidates any pending fire.
func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.state = Idle
	s.handle = Handle{}
	s.next = prayer.NextEvent{}
}

func (s *Scheduler) fire(gen uint64) {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	ev, sched := s.next, s.schedule
	s.timer = nil
	s.mu.Unlock()

	s.runAction(ev)

	// Resolve from no earlier than the fired instant so a clock running
	// behind cannot fire the same event twice.
	now := s.clock.Now()
	if now.Before(ev.Instant) {
		now = ev.Instant
	}
	next, nextSched, err := s.resolve(sched, now)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.disarmLocked()
		s.mu.Unlock()
		s.reportError(err)
		return
	}
	s.armLocked(nextSched, next)
	s.mu.Unlock()
}

func (s *Scheduler) runAction(ev prayer.NextEvent) {
	logger := s.log.With().Str("prayer", ev.Label.String()).Time("at", ev.Instant).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("trigger action panicked")
		}
	}()

	logger.Info().Msg("trigger fired")
	if err := s.action.Fire(ContextWithEvent(s.ctx, ev)); err != nil {
		logger.Error().Err(err).Msg("trigger action failed")
	}
}

// resolve finds the next event after now, loading following days from the
// source when schedule is exhausted.
func (s *Scheduler) resolve(schedule prayer.DailySchedule, now time.Time) (prayer.NextEvent, prayer.DailySchedule, error) {
	next, err := prayer.Resolve(schedule, now)
	if err == nil {
		return next, schedule, nil
	}
	if !errors.Is(err, prayer.ErrWrapAroundNeeded) {
		return prayer.NextEvent{}, prayer.DailySchedule{}, err
	}
	if s.source == nil {
		return prayer.NextEvent{}, prayer.DailySchedule{}, ErrNoSource
	}

	date := schedule.Date.AddDate(0, 0, 1)
	for attempt := 0; attempt < maxWrapAttempts; attempt++ {
		// After a long sleep the day after the stale schedule may itself be past.
		if today := midnight(now, schedule.Location); date.Before(today) {
			date = today
		}

		s.log.Debug().Str("date", date.Format("2006-01-02")).Msg("loading following day")
		following, err := s.source.Schedule(s.ctx, date)
		if err != nil {
			return prayer.NextEvent{}, prayer.DailySchedule{}, fmt.Errorf("load schedule for %s: %w", date.Format("2006-01-02"), err)
		}

		next, err := prayer.Resolve(following, now)
		if err == nil {
			return next, following, nil
		}
		if !errors.Is(err, prayer.ErrWrapAroundNeeded) {
			return prayer.NextEvent{}, prayer.DailySchedule{}, err
		}
		date = following.Date.AddDate(0, 0, 1)
	}
	return prayer.NextEvent{}, prayer.DailySchedule{}, ErrNoUpcomingEvent
}

func (s *Scheduler) reportError(err error) {
	s.log.Error().Err(err).Msg("trigger stopped")
	if s.onError != nil {
		s.onError(err)
	}
}

func midnight(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
