package app

import (
	"image"
	"image/color"

	"github.com/lakmal-w/campustrack/internal/geo"
)

// projection maps geographic coordinates onto image pixels. North is
// up, so latitude grows toward smaller y. The aspect ratio follows the
// degree extents; at campus scale the distortion is negligible.
type projection struct {
	bounds geo.Rect
	width  int
	height int
}

func newProjection(bounds geo.Rect, widthPx int) projection {
	lonSpan := bounds.MaxLon - bounds.MinLon
	latSpan := bounds.MaxLat - bounds.MinLat

	height := widthPx
	if lonSpan > 0 && latSpan > 0 {
		height = int(float64(widthPx) * latSpan / lonSpan)
	}
	if height < 1 {
		height = 1
	}

	return projection{bounds: bounds, width: widthPx, height: height}
}

func (p projection) pixel(pt geo.Point) (int, int) {
	lonSpan := p.bounds.MaxLon - p.bounds.MinLon
	latSpan := p.bounds.MaxLat - p.bounds.MinLat
	if lonSpan <= 0 || latSpan <= 0 {
		return 0, 0
	}

	x := int((pt.Longitude - p.bounds.MinLon) / lonSpan * float64(p.width-1))
	y := int((p.bounds.MaxLat - pt.Latitude) / latSpan * float64(p.height-1))
	return x, y
}

// drawLine draws a straight segment using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)

	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawRect draws an axis-aligned rectangle outline.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	drawLine(img, r.Min.X, r.Min.Y, r.Max.X, r.Min.Y, c)
	drawLine(img, r.Max.X, r.Min.Y, r.Max.X, r.Max.Y, c)
	drawLine(img, r.Max.X, r.Max.Y, r.Min.X, r.Max.Y, c)
	drawLine(img, r.Min.X, r.Max.Y, r.Min.X, r.Min.Y, c)
}

// fillRect fills an axis-aligned rectangle.
func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// fillCircle fills a disc of the given radius around a center pixel.
func fillCircle(img *image.RGBA, cx, cy, radius int, c color.Color) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				img.Set(cx+x, cy+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
