package qibla

import (
	"fmt"
	"math"
)

// HeadingSource records which sensor field produced a heading.
type HeadingSource string

const (
	SourceCompass     HeadingSource = "compass"
	SourceOrientation HeadingSource = "orientation"
	SourceManual      HeadingSource = "manual"
)

// Heading is one device heading sample in degrees clockwise from north.
type Heading struct {
	Degrees float64
	Source  HeadingSource
}

// HeadingFromOrientation builds a heading from a device orientation event.
// A platform compass reading is used as is. Otherwise the generic alpha
// angle, which grows counter-clockwise, is converted with 360 - alpha.
// A NaN or infinite reading counts as absent. It returns nil when neither
// value is usable.
func HeadingFromOrientation(compass, alpha *float64) *Heading {
	switch {
	case finite(compass):
		return &Heading{Degrees: normalize(*compass), Source: SourceCompass}
	case finite(alpha):
		return &Heading{Degrees: normalize(360 - *alpha), Source: SourceOrientation}
	default:
		return nil
	}
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// Direction is the way the needle turns.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	if d == CounterClockwise {
		return "counter-clockwise"
	}
	return "clockwise"
}

// Rotation describes how far the device must turn to face the target.
type Rotation struct {
	// Delta is the clockwise angle from heading to target, in [0,360).
	// The needle is drawn at this angle.
	Delta     float64
	Direction Direction
	// Degrees is the shortest turn, in [0,180].
	Degrees float64
}

func (r Rotation) String() string {
	if r.Degrees == 0 {
		return "facing the qibla"
	}
	return fmt.Sprintf("turn %.0f° %s", r.Degrees, r.Direction)
}

// Reconcile compares the target bearing with a live heading. The boolean is
// false when there is no heading, in which case no needle should be shown.
func Reconcile(target Bearing, heading *Heading) (Rotation, bool) {
	if heading == nil || !finite(&heading.Degrees) {
		return Rotation{}, false
	}

	delta := normalize(float64(target) - heading.Degrees)
	if delta > 180 {
		return Rotation{Delta: delta, Direction: CounterClockwise, Degrees: 360 - delta}, true
	}
	return Rotation{Delta: delta, Direction: Clockwise, Degrees: delta}, true
}
