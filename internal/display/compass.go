package display

import "math"

var arrows = [...]string{"↑", "↗", "→", "↘", "↓", "↙", "←", "↖"}

// Arrow returns the arrow closest to deg, measured clockwise from straight
// ahead. It is used to draw the qibla needle relative to the device heading.
func Arrow(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return arrows[int(math.Floor((deg+22.5)/45))%len(arrows)]
}
