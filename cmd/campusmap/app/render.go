package app

import (
	"fmt"
	"image"
	"image/draw"
	"slices"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/geofence"
	"github.com/lakmal-w/campustrack/internal/tracking"
)

const (
	markerRadius  = 6
	infoBarHeight = 90

	// fraction added around the content extents so markers never touch
	// the image edge
	boundsPadding = 0.1
)

// RenderConfig holds the campus map rendering options
type RenderConfig struct {
	Width         int
	FontFile      string
	NoAnnotations bool
}

// Renderer draws the campus, its zones, device trails and current
// device positions into a single image.
type Renderer struct {
	config RenderConfig
	clock  func() time.Time
}

// NewRenderer creates a renderer with the given configuration
func NewRenderer(config RenderConfig) *Renderer {
	return &Renderer{config: config, clock: time.Now}
}

// Render produces the campus map image.
func (r *Renderer) Render(campus *geofence.Campus, devices []tracking.DeviceRecord, trails map[string][]tracking.PositionSample) (*image.RGBA, error) {
	bounds := renderBounds(campus, devices, trails)
	proj := newProjection(bounds, r.config.Width)

	bottom := 0
	if !r.config.NoAnnotations {
		bottom = infoBarHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, proj.width, proj.height+bottom))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	r.drawCampus(img, proj, campus)
	colors := assignDeviceColors(devices, trails)
	r.drawTrails(img, proj, trails, colors)
	r.drawDevices(img, proj, devices, colors)

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(r.config.FontFile)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}

	if err = ann.annotate(img, proj, campus, devices, trails, r.clock()); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

func (r *Renderer) drawCampus(img *image.RGBA, proj projection, campus *geofence.Campus) {
	minX, maxY := proj.pixel(geo.Point{Latitude: campus.Bounds.MinLat, Longitude: campus.Bounds.MinLon})
	maxX, minY := proj.pixel(geo.Point{Latitude: campus.Bounds.MaxLat, Longitude: campus.Bounds.MaxLon})
	drawRect(img, image.Rect(minX, minY, maxX, maxY), campusEdgeColor)

	// zone rings are axis-aligned rectangles, so the bbox is the polygon
	for _, zone := range campus.Zones {
		zc := zoneColor(zone.Color)

		zMinX, zMaxY := proj.pixel(geo.Point{Latitude: zone.BBox.MinLat, Longitude: zone.BBox.MinLon})
		zMaxX, zMinY := proj.pixel(geo.Point{Latitude: zone.BBox.MaxLat, Longitude: zone.BBox.MaxLon})

		rect := image.Rect(zMinX, zMinY, zMaxX, zMaxY)
		fillRect(img, rect, zoneFill(zc))
		drawRect(img, rect, zc.Clamped())
	}
}

func (r *Renderer) drawTrails(img *image.RGBA, proj projection, trails map[string][]tracking.PositionSample, colors map[string]colorful.Color) {
	for deviceID, samples := range trails {
		if len(samples) < 2 {
			continue
		}

		device := colors[deviceID]
		for i := 1; i < len(samples); i++ {
			t := float64(i) / float64(len(samples)-1)

			x0, y0 := proj.pixel(samples[i-1].Point())
			x1, y1 := proj.pixel(samples[i].Point())
			drawLine(img, x0, y0, x1, y1, trailColor(device, t))
		}
	}
}

func (r *Renderer) drawDevices(img *image.RGBA, proj projection, devices []tracking.DeviceRecord, colors map[string]colorful.Color) {
	now := r.clock()

	for _, rec := range devices {
		if rec.LastLocation == nil {
			continue
		}

		x, y := proj.pixel(rec.LastLocation.Point())

		switch rec.Status(now) {
		case tracking.StatusOffline:
			fillCircle(img, x, y, markerRadius, offlineColor)
		case tracking.StatusStale:
			fillCircle(img, x, y, markerRadius, markerColor(colors[rec.DeviceID], true))
		default:
			fillCircle(img, x, y, markerRadius, markerColor(colors[rec.DeviceID], false))
		}
	}
}

// assignDeviceColors gives every device appearing in the snapshot or
// the trail history a stable color, in sorted device ID order.
func assignDeviceColors(devices []tracking.DeviceRecord, trails map[string][]tracking.PositionSample) map[string]colorful.Color {
	seen := make(map[string]struct{}, len(devices)+len(trails))
	var ids []string
	for _, rec := range devices {
		if _, ok := seen[rec.DeviceID]; !ok {
			seen[rec.DeviceID] = struct{}{}
			ids = append(ids, rec.DeviceID)
		}
	}
	for id := range trails {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	colors := make(map[string]colorful.Color, len(ids))
	for i, id := range ids {
		colors[id] = deviceColor(i)
	}
	return colors
}

// renderBounds starts from the campus footprint and grows it to cover
// every device position and trail point, plus padding.
func renderBounds(campus *geofence.Campus, devices []tracking.DeviceRecord, trails map[string][]tracking.PositionSample) geo.Rect {
	bounds := campus.Bounds

	grow := func(p geo.Point) {
		if p.Latitude < bounds.MinLat {
			bounds.MinLat = p.Latitude
		}
		if p.Latitude > bounds.MaxLat {
			bounds.MaxLat = p.Latitude
		}
		if p.Longitude < bounds.MinLon {
			bounds.MinLon = p.Longitude
		}
		if p.Longitude > bounds.MaxLon {
			bounds.MaxLon = p.Longitude
		}
	}

	for _, rec := range devices {
		if rec.LastLocation != nil {
			grow(rec.LastLocation.Point())
		}
	}
	for _, samples := range trails {
		for _, sample := range samples {
			grow(sample.Point())
		}
	}

	padLat := (bounds.MaxLat - bounds.MinLat) * boundsPadding
	padLon := (bounds.MaxLon - bounds.MinLon) * boundsPadding
	bounds.MinLat -= padLat
	bounds.MaxLat += padLat
	bounds.MinLon -= padLon
	bounds.MaxLon += padLon

	return bounds
}
