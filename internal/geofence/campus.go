package geofence

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lakmal-w/campustrack/internal/geo"
)

// Default campus footprint, centered on the Colombo reference origin.
// Used when construction is asked for an invalid or missing origin.
var (
	DefaultOrigin = geo.Point{Latitude: 6.9271, Longitude: 79.8612}

	DefaultWidth  = 0.00018
	DefaultHeight = 0.00018
)

// Classification is the result of classifying a point against a campus.
type Classification int

const (
	OutsideCampus Classification = iota
	OnCampusUnzoned
	InZone
)

func (c Classification) String() string {
	switch c {
	case OutsideCampus:
		return "outside-campus"
	case OnCampusUnzoned:
		return "on-campus-unzoned"
	case InZone:
		return "in-zone"
	}
	return fmt.Sprintf("classification(%d)", int(c))
}

// Campus is a fixed-origin boundary with its sub-zones. Built once per
// effective origin; immutable afterwards.
type Campus struct {
	Origin geo.Point
	Bounds geo.Rect
	Zones  []*Zone
}

// WithLogger sets the logger used for advisory construction messages.
func WithLogger(logger *slog.Logger) func(*Builder) {
	return func(b *Builder) {
		b.logger = logger
	}
}

// Builder constructs Campus values from zone definitions.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder with a discard logger.
func NewBuilder(options ...func(*Builder)) *Builder {
	b := Builder{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// Build constructs the campus bounds and zone polygons. An invalid
// origin does not fail construction: the builder warns and falls back
// to DefaultOrigin, so tracking keeps working against the default
// campus. Zone overlap is checked pairwise and logged, never enforced;
// overlapping zones still render, with classification going to the
// first zone in definition order.
func (b *Builder) Build(origin geo.Point, width, height float64, defs []ZoneDef) *Campus {
	if !origin.IsValid() {
		b.logger.Warn("invalid campus origin, falling back to default",
			slog.Float64("latitude", origin.Latitude),
			slog.Float64("longitude", origin.Longitude))
		origin = DefaultOrigin
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	campus := Campus{
		Origin: origin,
		Bounds: geo.RectAround(origin, width, height),
	}

	baseUnit := width
	for _, def := range defs {
		campus.Zones = append(campus.Zones, buildZone(origin, baseUnit, def))
	}

	for i := 0; i < len(campus.Zones); i++ {
		for j := i + 1; j < len(campus.Zones); j++ {
			if zonesOverlap(campus.Zones[i], campus.Zones[j]) {
				b.logger.Warn("zone polygons overlap",
					slog.String("zoneA", campus.Zones[i].ID),
					slog.String("zoneB", campus.Zones[j].ID))
			}
		}
	}

	return &campus
}

func buildZone(origin geo.Point, baseUnit float64, def ZoneDef) *Zone {
	center := geo.Point{
		Latitude:  origin.Latitude + def.OffsetY*baseUnit,
		Longitude: origin.Longitude + def.OffsetX*baseUnit,
	}

	halfW := def.Width * baseUnit / 2
	halfH := def.Height * baseUnit / 2

	// 5-vertex closed ring, first vertex repeated last
	ring := geo.Ring{
		{Latitude: center.Latitude - halfH, Longitude: center.Longitude - halfW},
		{Latitude: center.Latitude - halfH, Longitude: center.Longitude + halfW},
		{Latitude: center.Latitude + halfH, Longitude: center.Longitude + halfW},
		{Latitude: center.Latitude + halfH, Longitude: center.Longitude - halfW},
		{Latitude: center.Latitude - halfH, Longitude: center.Longitude - halfW},
	}

	return &Zone{
		ID:    def.ID,
		Name:  def.Name,
		Type:  def.Type,
		Color: def.Color,
		Ring:  ring,
		BBox:  ring.BBox(),
	}
}

// zonesOverlap runs the advisory overlap check: a cheap bbox precheck,
// then every vertex of one ring tested against the other ring and vice
// versa.
func zonesOverlap(a, b *Zone) bool {
	if !a.BBox.Intersects(b.BBox) {
		return false
	}
	for _, v := range a.Ring {
		if b.Ring.Contains(v) {
			return true
		}
	}
	for _, v := range b.Ring {
		if a.Ring.Contains(v) {
			return true
		}
	}
	return false
}

// Contains reports whether p lies within the campus bounds.
func (c *Campus) Contains(p geo.Point) bool {
	return c.Bounds.Contains(p)
}

// Classify returns the first zone (definition order) containing p, or
// the coarse on-campus/off-campus state when no zone matches.
func (c *Campus) Classify(p geo.Point) (*Zone, Classification) {
	for _, zone := range c.Zones {
		if zone.Contains(p) {
			return zone, InZone
		}
	}
	if c.Contains(p) {
		return nil, OnCampusUnzoned
	}
	return nil, OutsideCampus
}

// Zone returns the zone with the given ID, or nil.
func (c *Campus) Zone(id string) *Zone {
	for _, zone := range c.Zones {
		if zone.ID == id {
			return zone
		}
	}
	return nil
}
