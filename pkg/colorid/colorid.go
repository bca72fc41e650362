// Package colorid maps entity identifiers to stable colors so the same node
// keeps its color across the flow and spatial views and across renders.
package colorid

import (
	"fmt"
	"math"
)

// Fixed saturation/lightness; only the hue varies per identity.
const (
	saturation = 0.65
	lightness  = 0.55
)

// Hue hashes the id's characters into a hue in [0, 360). Pure function of
// the string content; the empty string maps to hue 0.
func Hue(id string) int {
	h := 0
	for _, r := range id {
		h = (h*31 + int(r)) % 360
	}
	if h < 0 {
		h += 360
	}
	return h
}

// Hex returns the identity color as a #rrggbb CSS hex string.
func Hex(id string) string {
	r, g, b := RGB(id)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// RGB returns the identity color as 8-bit channels.
func RGB(id string) (uint8, uint8, uint8) {
	return hslToRGB(float64(Hue(id)), saturation, lightness)
}

// hslToRGB converts HSL (h in degrees) to 8-bit RGB.
func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := l - c/2
	return uint8(math.Round((r + m) * 255)),
		uint8(math.Round((g + m) * 255)),
		uint8(math.Round((b + m) * 255))
}
