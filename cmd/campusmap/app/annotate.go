package app

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/geofence"
	"github.com/lakmal-w/campustrack/internal/tracking"
)

const (
	dpi     float64 = 72
	size    float64 = 13
	spacing float64 = 1.2
)

type annotator struct {
	context *freetype.Context
}

func newAnnotator(fontFile string) (*annotator, error) {
	fontBytes, err := os.ReadFile(fontFile)
	if err != nil {
		return nil, fmt.Errorf("reading font file: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.Black)
	context.SetHinting(font.HintingFull)

	return &annotator{context: context}, nil
}

func (a *annotator) annotate(img *image.RGBA, proj projection, campus *geofence.Campus, devices []tracking.DeviceRecord, trails map[string][]tracking.PositionSample, now time.Time) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"labeling zones", func() error { return a.labelZones(proj, campus) }},
		{"labeling devices", func() error { return a.labelDevices(proj, campus, devices, now) }},
		{"drawing info", func() error { return a.drawInfo(img, proj, campus, devices, trails, now) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) labelZones(proj projection, campus *geofence.Campus) error {
	for _, zone := range campus.Zones {
		x, y := proj.pixel(zone.BBox.Center())

		// rough centering; the zone name sits across the zone middle
		offset := len(zone.Name) * int(size) / 4
		pt := freetype.Pt(x-offset, y+int(size)/2)
		if _, err := a.context.DrawString(zone.Name, pt); err != nil {
			return fmt.Errorf("drawing zone label: %w", err)
		}
	}
	return nil
}

func (a *annotator) labelDevices(proj projection, campus *geofence.Campus, devices []tracking.DeviceRecord, now time.Time) error {
	for _, rec := range devices {
		if rec.LastLocation == nil {
			continue
		}

		label := rec.DeviceID
		if zone, class := campus.Classify(rec.LastLocation.Point()); class == geofence.InZone {
			label = fmt.Sprintf("%s @ %s", rec.DeviceID, zone.ID)
		}
		if status := rec.Status(now); status != tracking.StatusFresh {
			label = fmt.Sprintf("%s [%s]", label, status)
		}

		x, y := proj.pixel(rec.LastLocation.Point())
		pt := freetype.Pt(x+markerRadius+3, y+int(size)/2)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing device label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfo(img *image.RGBA, proj projection, campus *geofence.Campus, devices []tracking.DeviceRecord, trails map[string][]tracking.PositionSample, now time.Time) error {
	var fresh, stale, offline int
	var lastSeen time.Time
	for _, rec := range devices {
		switch rec.Status(now) {
		case tracking.StatusFresh:
			fresh++
		case tracking.StatusStale:
			stale++
		default:
			offline++
		}
		if rec.LastUpdated.After(lastSeen) {
			lastSeen = rec.LastUpdated
		}
	}

	var points int
	for _, samples := range trails {
		points += len(samples)
	}

	lines := []string{
		fmt.Sprintf("Campus origin: %.4f, %.4f; span %s x %s",
			campus.Origin.Latitude, campus.Origin.Longitude,
			formatMeters(rectWidthMeters(campus.Bounds)), formatMeters(rectHeightMeters(campus.Bounds))),
		fmt.Sprintf("Devices: %d (%d fresh, %d stale, %d offline)", len(devices), fresh, stale, offline),
		fmt.Sprintf("Trail points: %s across %d devices", humanize.Comma(int64(points)), len(trails)),
	}
	if !lastSeen.IsZero() {
		lines = append(lines, "Last update: "+humanize.Time(lastSeen))
	}

	top, left := img.Bounds().Max.Y-infoBarHeight+int(size), 5

	pt := freetype.Pt(left, top)
	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

func formatMeters(m float64) string {
	v, suffix := humanize.ComputeSI(m)
	return fmt.Sprintf("%0.0f %sm", v, suffix)
}

func rectWidthMeters(r geo.Rect) float64 {
	return geo.Distance(
		geo.Point{Latitude: r.Center().Latitude, Longitude: r.MinLon},
		geo.Point{Latitude: r.Center().Latitude, Longitude: r.MaxLon},
	)
}

func rectHeightMeters(r geo.Rect) float64 {
	return geo.Distance(
		geo.Point{Latitude: r.MinLat, Longitude: r.Center().Longitude},
		geo.Point{Latitude: r.MaxLat, Longitude: r.Center().Longitude},
	)
}
