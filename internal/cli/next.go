package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mirac/internal/prayer"
)

var (
	flagFormat  string
	flagPrayers string
)

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer with countdown",
		Long:  "Display the next upcoming prayer time with a countdown.\nThe compact formats are meant for status bars such as tmux.",
		RunE:  runNext,
	}

	cmd.Flags().StringVar(&flagFormat, "format", prayer.FormatFull, "Display format: time-remaining, next-prayer-time, name-and-time, name-and-remaining, short-name-and-time, short-name-and-remaining, countdown, full, or a custom Go template")
	cmd.Flags().StringVar(&flagPrayers, "prayers", "", "Comma-separated list of prayers to track (overrides config)")

	return cmd
}

// selectedLabels returns the --prayers selection, falling back to config.
func selectedLabels(cmd *cobra.Command, value string) ([]prayer.Label, error) {
	if cmd.Flags().Changed("prayers") && value != "" {
		return prayer.ParseLabels(value)
	}
	return effectiveConfig(cmd).PrayerLabels()
}

func runNext(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig(cmd)
	labels, err := selectedLabels(cmd, flagPrayers)
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

	loader := newDayLoader(e, loc, labels)
	d, now, err := loader.today(ctx, time.Now())
	if err != nil {
		if _, ok := malformedLabels(err); ok {
			// Status bars get a stable placeholder instead of an error.
			e.log.Warn().Err(err).Msg("provider returned malformed timings")
			fmt.Print(unavailable)
			return nil
		}
		return err
	}

	today := selectLabels(d.Schedule, labels)
	next, err := prayer.Resolve(today, now)
	if errors.Is(err, prayer.ErrWrapAroundNeeded) {
		tomorrow, fetchErr := loader.Schedule(ctx, d.Schedule.Date.AddDate(0, 0, 1))
		if fetchErr != nil {
			// Network failure for tomorrow's data: show last prayer with
			// a "done" indicator rather than crashing the status bar.
			e.log.Warn().Err(fetchErr).Msg("failed to load tomorrow's timings")
			last := today.Entries[len(today.Entries)-1]
			fmt.Printf("%s --:--", last.Label)
			return nil
		}
		next, err = prayer.ResolveWithTomorrow(today, tomorrow, now)
	}
	if err != nil {
		return fmt.Errorf("could not determine next prayer: %w", err)
	}

	fmt.Print(prayer.FormatOutput(next, now, flagFormat, layout))
	return nil
}
