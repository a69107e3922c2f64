package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	backgroundColor = color.RGBA{R: 0xfa, G: 0xfa, B: 0xf7, A: 0xff}
	campusEdgeColor = color.RGBA{R: 0x44, G: 0x44, B: 0x44, A: 0xff}
	offlineColor    = color.RGBA{R: 0x9a, G: 0x9a, B: 0x9a, A: 0xff}
)

// zoneColor parses the zone's configured hex color, falling back to a
// neutral slate when it is missing or malformed.
func zoneColor(hex string) colorful.Color {
	if hex != "" {
		if c, err := colorful.Hex(hex); err == nil {
			return c
		}
	}
	return colorful.Color{R: 0.45, G: 0.5, B: 0.55}
}

// zoneFill is the pale interior of a zone polygon: the zone color
// blended most of the way toward the background.
func zoneFill(zone colorful.Color) color.Color {
	bg, _ := colorful.MakeColor(backgroundColor)
	return zone.BlendHcl(bg, 0.8).Clamped()
}

// deviceColor assigns a stable, well-separated color to the n-th device
// using golden-angle hue spacing.
func deviceColor(n int) colorful.Color {
	hue := math.Mod(float64(n)*137.5, 360)
	return colorful.Hsv(hue, 0.75, 0.85)
}

// trailColor fades a device color toward the background for older
// trail segments; t runs from 0 (oldest) to 1 (newest).
func trailColor(device colorful.Color, t float64) color.Color {
	bg, _ := colorful.MakeColor(backgroundColor)
	return bg.BlendHcl(device, 0.25+0.75*t).Clamped()
}

// markerColor dims a device color for stale records; offline records
// render gray regardless of their device color.
func markerColor(device colorful.Color, stale bool) color.Color {
	if !stale {
		return device.Clamped()
	}
	gray, _ := colorful.MakeColor(offlineColor)
	return device.BlendHcl(gray, 0.5).Clamped()
}
