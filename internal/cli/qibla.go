package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mirac/internal/display"
	"github.com/smokyabdulrahman/mirac/internal/qibla"
)

var (
	flagHeading float64
	flagAlpha   float64
)

func newQiblaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qibla",
		Short: "Show the qibla direction",
		Long: "Display the great-circle bearing and distance to the Kaaba from your location.\n" +
			"Pass a device heading with --heading (compass degrees) or --alpha (orientation angle)\n" +
			"to see how far to turn.",
		RunE: runQibla,
	}

	cmd.Flags().Float64Var(&flagHeading, "heading", 0, "Device compass heading in degrees clockwise from north")
	cmd.Flags().Float64Var(&flagAlpha, "alpha", 0, "Device orientation alpha angle in degrees (used when --heading is not given)")

	return cmd
}

// qiblaResult is everything the qibla screen shows.
type qiblaResult struct {
	Observer  qibla.Coordinates
	Bearing   qibla.Bearing
	Distance  float64
	Available bool
	Heading   *qibla.Heading
	Rotation  *qibla.Rotation
}

// computeQibla derives the bearing and, with a heading, the needle. An
// undefined bearing leaves Available false.
func computeQibla(obs qibla.Coordinates, heading *qibla.Heading) (qiblaResult, error) {
	res := qiblaResult{Observer: obs, Heading: heading}

	bearing, err := qibla.Compute(obs)
	switch {
	case errors.Is(err, qibla.ErrUndefinedBearing):
		return res, nil
	case err != nil:
		return res, err
	}

	res.Bearing = bearing
	res.Distance = qibla.Distance(obs)
	res.Available = true
	if rot, ok := qibla.Reconcile(bearing, heading); ok {
		res.Rotation = &rot
	}
	return res, nil
}

// orientationFlags returns the heading inputs that were given, rejecting
// values that are not finite numbers.
func orientationFlags(heading, alpha float64, headingSet, alphaSet bool) (compass, a *float64, err error) {
	if headingSet {
		if math.IsNaN(heading) || math.IsInf(heading, 0) {
			return nil, nil, fmt.Errorf("invalid --heading %v: must be a finite number of degrees", heading)
		}
		compass = &heading
	}
	if alphaSet {
		if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
			return nil, nil, fmt.Errorf("invalid --alpha %v: must be a finite number of degrees", alpha)
		}
		a = &alpha
	}
	return compass, a, nil
}

func runQibla(cmd *cobra.Command, args []string) error {
	compass, alpha, err := orientationFlags(flagHeading, flagAlpha,
		cmd.Flags().Changed("heading"), cmd.Flags().Changed("alpha"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e := newEnv(effectiveConfig(cmd))
	defer e.close()

	loc, err := e.resolveLocation(ctx)
	if err != nil {
		return err
	}
	obs, err := e.coordinates(ctx, loc)
	if err != nil {
		return err
	}

	res, err := computeQibla(obs, qibla.HeadingFromOrientation(compass, alpha))
	if err != nil {
		return err
	}

	if FlagJSON {
		return printQiblaJSON(res)
	}
	printQiblaRich(res, qiblaLocationStr(loc, obs))
	return nil
}

// coordinates returns the observer position. City lookups only learn their
// coordinates from the provider, so today's timings are fetched for them.
func (e *env) coordinates(ctx context.Context, loc resolvedLocation) (qibla.Coordinates, error) {
	if loc.Mode != locationCity {
		return qibla.Coordinates{Latitude: loc.Lat, Longitude: loc.Lon}, nil
	}
	res, err := e.fetchTimings(ctx, time.Now(), loc)
	if err != nil {
		return qibla.Coordinates{}, fmt.Errorf("failed to look up coordinates for %s: %w", loc.City, err)
	}
	return qibla.Coordinates{Latitude: res.Meta.Latitude, Longitude: res.Meta.Longitude}, nil
}

func qiblaLocationStr(loc resolvedLocation, obs qibla.Coordinates) string {
	if loc.City != "" && loc.Country != "" {
		return loc.City + ", " + loc.Country
	}
	return fmt.Sprintf("%.4f, %.4f", obs.Latitude, obs.Longitude)
}

func printQiblaRich(res qiblaResult, locationStr string) {
	fmt.Println()
	fmt.Printf("  %s\n", display.Bold("Qibla"))
	fmt.Println()
	fmt.Printf("  %s\n", locationStr)
	fmt.Println()

	if !res.Available {
		fmt.Printf("  %s\n\n", display.Red("Qibla direction unavailable at this position"))
		return
	}

	fmt.Printf("  %-10s %s\n", "Bearing", display.Accent(res.Bearing.String()))
	fmt.Printf("  %-10s %s km\n", "Distance", formatKm(res.Distance))

	if res.Rotation != nil {
		fmt.Printf("  %-10s %.1f° (%s)\n", "Heading", res.Heading.Degrees, res.Heading.Source)
		fmt.Printf("  %-10s %s  %s\n", "Needle", display.Accent(display.Arrow(res.Rotation.Delta)), res.Rotation)
	}
	fmt.Println()
}

// formatKm renders whole kilometres with thousands separators.
func formatKm(km float64) string {
	n := int64(km + 0.5)
	s := fmt.Sprintf("%d", n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

type qiblaJSON struct {
	Latitude   float64     `json:"latitude"`
	Longitude  float64     `json:"longitude"`
	Available  bool        `json:"available"`
	Bearing    *float64    `json:"bearing,omitempty"`
	Compass    string      `json:"compass,omitempty"`
	DistanceKm *float64    `json:"distance_km,omitempty"`
	Needle     *needleJSON `json:"needle,omitempty"`
}

type needleJSON struct {
	Heading   float64 `json:"heading"`
	Source    string  `json:"source"`
	Delta     float64 `json:"delta"`
	Direction string  `json:"direction"`
	Degrees   float64 `json:"degrees"`
}

func printQiblaJSON(res qiblaResult) error {
	out := qiblaJSON{
		Latitude:  res.Observer.Latitude,
		Longitude: res.Observer.Longitude,
		Available: res.Available,
	}
	if res.Available {
		b, d := float64(res.Bearing), res.Distance
		out.Bearing = &b
		out.Compass = res.Bearing.CompassPoint()
		out.DistanceKm = &d
	}
	if res.Rotation != nil {
		out.Needle = &needleJSON{
			Heading:   res.Heading.Degrees,
			Source:    string(res.Heading.Source),
			Delta:     res.Rotation.Delta,
			Direction: res.Rotation.Direction.String(),
			Degrees:   res.Rotation.Degrees,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
