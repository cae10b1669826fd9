package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mirac/internal/config"
	"github.com/smokyabdulrahman/mirac/internal/notify"
	"github.com/smokyabdulrahman/mirac/internal/prayer"
	"github.com/smokyabdulrahman/mirac/internal/trigger"
)

// DefaultAdhanURL is the recitation played when no other URL is given.
const DefaultAdhanURL = "https://cdn.islamic.network/quran/audio/128/ar.alafasy/001.mp3"

const (
	// prefetchSpec warms the cache with the following day's timings shortly
	// after local midnight.
	prefetchSpec = "0 30 0 * * *"
	// resyncSpec re-arms after a suspend or a failed wraparound.
	resyncSpec = "@every 15m"

	// missedGrace is how late an event may fire before it is skipped as
	// missed.
	missedGrace = time.Minute
)

var (
	flagPreview      bool
	flagForce        bool
	flagAdhanCommand string
	flagAdhanURL     string
	flagAdhanPrayers string
	flagMQTTBroker   string
	flagMQTTTopic    string
)

func newAdhanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adhan",
		Short: "Play the adhan at each prayer time",
		Long: "Run in the foreground and play the adhan at every selected prayer time until interrupted.\n" +
			"Without a player command the terminal bell rings and a notice is printed.\n\n" +
			"Examples:\n" +
			"  mirac adhan --command \"mpv --no-video {url}\"\n" +
			"  mirac adhan --mqtt-broker tcp://localhost:1883\n" +
			"  mirac adhan --preview",
		RunE: runAdhan,
	}

	cmd.Flags().BoolVar(&flagPreview, "preview", false, "Play the adhan once now and exit")
	cmd.Flags().BoolVar(&flagForce, "force", false, "Run even when adhan_enabled is false")
	cmd.Flags().StringVar(&flagAdhanCommand, "command", "", "Player command; {url} is replaced with the audio URL (overrides config)")
	cmd.Flags().StringVar(&flagAdhanURL, "url", DefaultAdhanURL, "Audio URL passed to the player")
	cmd.Flags().StringVar(&flagAdhanPrayers, "prayers", "", "Comma-separated prayers to call (default: all but Sunrise)")
	cmd.Flags().StringVar(&flagMQTTBroker, "mqtt-broker", "", "Also publish each adhan to this MQTT broker (overrides config)")
	cmd.Flags().StringVar(&flagMQTTTopic, "mqtt-topic", "", "MQTT topic (default \""+notify.DefaultTopic+"\")")

	return cmd
}

// adhanLabels returns the prayers the adhan is called for. Sunrise is not a
// prayer and is only included when asked for explicitly.
func adhanLabels(flagValue string, flagSet bool, cfg *config.Config) ([]prayer.Label, error) {
	if flagSet && flagValue != "" {
		return prayer.ParseLabels(flagValue)
	}
	labels, err := cfg.PrayerLabels()
	if err != nil {
		return nil, err
	}
	out := make([]prayer.Label, 0, len(labels))
	for _, l := range labels {
		if l != prayer.Sunrise {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no prayers selected for the adhan")
	}
	return out, nil
}

// playerAction plays the adhan through an external command, or rings the
// terminal bell when none is configured. The player runs in the background
// so Fire returns as soon as it has started.
type playerAction struct {
	command string
	url     string
	layout  string
	out     io.Writer
	log     zerolog.Logger

	// start launches the player and returns a function that waits for it
	// to exit. Nil means os/exec.
	start func(ctx context.Context, name string, args ...string) (wait func() error, err error)

	running sync.WaitGroup
}

func (a *playerAction) Fire(ctx context.Context) error {
	title := "Adhan"
	if ev, ok := trigger.EventFromContext(ctx); ok {
		title = fmt.Sprintf("%s adhan at %s", ev.Label, ev.Instant.Format(a.layout))
	}

	args := playerArgs(a.command, a.url)
	if len(args) == 0 {
		fmt.Fprintf(a.out, "\a%s\n", title)
		return nil
	}

	fmt.Fprintln(a.out, title)
	a.log.Debug().Strs("args", args).Msg("starting player")

	start := a.start
	if start == nil {
		start = execPlayer
	}
	wait, err := start(ctx, args[0], args[1:]...)
	if err != nil {
		return fmt.Errorf("player %q failed: %w", args[0], err)
	}

	a.running.Add(1)
	go func() {
		defer a.running.Done()
		if err := wait(); err != nil {
			a.log.Error().Err(err).Str("player", args[0]).Msg("player exited with an error")
		}
	}()
	return nil
}

// wait blocks until every started player has exited.
func (a *playerAction) wait() {
	a.running.Wait()
}

// playerArgs splits command on whitespace and substitutes {url}. When the
// command has no placeholder the URL is appended as the last argument.
func playerArgs(command, url string) []string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	replaced := false
	for i, f := range fields {
		if strings.Contains(f, "{url}") {
			fields[i] = strings.ReplaceAll(f, "{url}", url)
			replaced = true
		}
	}
	if !replaced && url != "" {
		fields = append(fields, url)
	}
	return fields
}

// adhanAction fans each event out to an MQTT publisher when a broker is
// configured. An unreachable broker only costs the notification.
func adhanAction(player *playerAction, broker, topic string, logger zerolog.Logger) (trigger.Action, func()) {
	if broker == "" {
		return player, func() {}
	}
	pub, err := notify.Dial(broker, topic, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("mqtt notifications disabled")
		return player, func() {}
	}
	return fanOut(player, pub), pub.Close
}

// fanOut publishes before starting the player.
func fanOut(player, publisher trigger.Action) trigger.Action {
	return trigger.Chain(publisher, player)
}

func execPlayer(ctx context.Context, name string, args ...string) (func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}

func runAdhan(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig(cmd)

	command := cfg.AdhanCommand
	if cmd.Flags().Changed("command") {
		command = flagAdhanCommand
	}
	player := &playerAction{
		command: command,
		url:     flagAdhanURL,
		layout:  timeLayout(cfg),
		out:     cmd.OutOrStdout(),
		log:     log.Logger,
	}

	if !flagPreview && !flagForce && !cfg.AdhanEnabledOrDefault(true) {
		return errors.New("adhan is disabled; run 'mirac config set adhan_enabled true' or pass --force")
	}

	broker, topic := cfg.MQTTBroker, cfg.MQTTTopic
	if cmd.Flags().Changed("mqtt-broker") {
		broker = flagMQTTBroker
	}
	if cmd.Flags().Changed("mqtt-topic") {
		topic = flagMQTTTopic
	}
	action, closeAction := adhanAction(player, broker, topic, log.Logger)
	defer closeAction()

	defer player.wait()

	if flagPreview {
		return action.Fire(cmd.Context())
	}

	labels, err := adhanLabels(flagAdhanPrayers, cmd.Flags().Changed("prayers"), cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := newEnv(cfg)
	defer e.close()
	loc, err := e.resolveLocation(ctx)
	if err != nil {
		return err
	}

	loader := newDayLoader(e, loc, labels)
	day, now, err := loader.today(ctx, time.Now())
	if err != nil {
		return err
	}

	d := newAdhanDaemon(ctx, trigger.RealClock{}, loader, action, day.Location, player.layout, cmd.OutOrStdout(), e.log)
	return d.run(ctx, selectLabels(day.Schedule, labels), now)
}

// adhanDaemon keeps a trigger armed for the adhan and runs the cron jobs
// that maintain it.
type adhanDaemon struct {
	sched  *trigger.Scheduler
	loader *dayLoader
	cron   *cron.Cron
	clock  trigger.Clock
	zone   *time.Location
	layout string
	out    io.Writer
	log    zerolog.Logger
}

func newAdhanDaemon(ctx context.Context, clock trigger.Clock, loader *dayLoader, action trigger.Action, zone *time.Location, layout string, out io.Writer, logger zerolog.Logger) *adhanDaemon {
	d := &adhanDaemon{
		loader: loader,
		clock:  clock,
		zone:   zone,
		layout: layout,
		out:    out,
		log:    logger.With().Str("component", "adhan").Logger(),
	}
	d.sched = trigger.New(d.clock, d.skipMissed(action), loader,
		trigger.WithLogger(d.log),
		trigger.WithContext(ctx),
		trigger.WithErrorHandler(func(err error) {
			d.log.Warn().Err(err).Msg("adhan paused until the next resync")
		}),
	)
	d.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(zone),
		cron.WithLogger(cron.PrintfLogger(&d.log)),
	)
	return d
}

func (d *adhanDaemon) run(ctx context.Context, schedule prayer.DailySchedule, now time.Time) error {
	if err := d.sched.Arm(schedule, now); err != nil {
		return fmt.Errorf("failed to arm adhan: %w", err)
	}
	d.announce()

	if _, err := d.cron.AddFunc(prefetchSpec, func() { d.prefetch(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule prefetch: %w", err)
	}
	if _, err := d.cron.AddFunc(resyncSpec, func() { d.resync(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule resync: %w", err)
	}
	d.cron.Start()

	<-ctx.Done()

	d.sched.Cancel()
	stopped := d.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		d.log.Warn().Msg("cron jobs still running at shutdown")
	}
	fmt.Fprintln(d.out, "Adhan stopped.")
	return nil
}

// skipMissed drops events that fire more than missedGrace late, e.g. when
// the timer was held back while the machine slept.
func (d *adhanDaemon) skipMissed(action trigger.Action) trigger.Action {
	return trigger.ActionFunc(func(ctx context.Context) error {
		if ev, ok := trigger.EventFromContext(ctx); ok {
			if late := d.clock.Now().Sub(ev.Instant); late > missedGrace {
				d.log.Warn().Str("prayer", ev.Label.String()).Dur("late", late).Msg("missed adhan skipped")
				return nil
			}
		}
		return action.Fire(ctx)
	})
}

func (d *adhanDaemon) announce() {
	ev, ok := d.sched.Next()
	if !ok {
		return
	}
	fmt.Fprintf(d.out, "Next adhan: %s at %s (in %s). Press Ctrl+C to stop.\n",
		ev.Label, ev.Instant.In(d.zone).Format(d.layout), prayer.FormatCountdown(ev.Remaining))
}

// prefetch loads the following day so the wraparound after Isha does not
// depend on the network.
func (d *adhanDaemon) prefetch(ctx context.Context) {
	now := d.clock.Now().In(d.zone)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, d.zone)
	if _, err := d.loader.Schedule(ctx, tomorrow); err != nil {
		d.log.Warn().Err(err).Str("date", tomorrow.Format("2006-01-02")).Msg("prefetch failed")
		return
	}
	d.log.Info().Str("date", tomorrow.Format("2006-01-02")).Msg("prefetched timings")
}

// resync re-arms when the scheduler went idle or its event was missed,
// e.g. while the machine was asleep.
func (d *adhanDaemon) resync(ctx context.Context) {
	now := d.clock.Now()
	if ev, ok := d.sched.Next(); ok && !ev.Instant.Before(now.Add(-missedGrace)) {
		return
	}

	day, local, err := d.loader.today(ctx, now)
	if err != nil {
		d.log.Warn().Err(err).Msg("resync failed")
		return
	}
	if err := d.sched.Arm(selectLabels(day.Schedule, d.loader.labels), local); err != nil {
		d.log.Warn().Err(err).Msg("resync failed")
		return
	}
	d.log.Info().Msg("adhan re-armed")
	d.announce()
}
