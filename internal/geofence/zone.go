package geofence

import "github.com/lakmal-w/campustrack/internal/geo"

// ZoneDef describes a zone relative to the campus center. Offsets and
// sizes are fractions of the campus base unit (its width in degrees),
// so the same definitions scale with the campus footprint.
type ZoneDef struct {
	ID      string  `yaml:"id" validate:"required"`
	Name    string  `yaml:"name" validate:"required"`
	Type    string  `yaml:"type"`
	Color   string  `yaml:"color"`
	OffsetX float64 `yaml:"offsetX"` // east-west offset, fraction of base unit
	OffsetY float64 `yaml:"offsetY"` // north-south offset, fraction of base unit
	Width   float64 `yaml:"width" validate:"gt=0"`
	Height  float64 `yaml:"height" validate:"gt=0"`
}

// Zone is one geofenced region of the campus. Immutable once built.
type Zone struct {
	ID    string
	Name  string
	Type  string
	Color string
	Ring  geo.Ring
	BBox  geo.Rect
}

// Contains reports whether p lies inside the zone polygon.
func (z *Zone) Contains(p geo.Point) bool {
	return z.BBox.Contains(p) && z.Ring.Contains(p)
}

// Distance returns the great-circle distance from p to the zone center
// in meters.
func (z *Zone) Distance(p geo.Point) float64 {
	return geo.Distance(p, z.BBox.Center())
}

// DefaultZones returns the reference campus zone layout: one zone per
// quadrant, sized so that no pair overlaps.
func DefaultZones() []ZoneDef {
	return []ZoneDef{
		{ID: "library", Name: "Library", Type: "academic", Color: "#2e86de", OffsetX: -0.25, OffsetY: 0.25, Width: 0.3, Height: 0.3},
		{ID: "labs", Name: "Engineering Labs", Type: "academic", Color: "#e67e22", OffsetX: 0.25, OffsetY: 0.25, Width: 0.3, Height: 0.3},
		{ID: "cafeteria", Name: "Cafeteria", Type: "common", Color: "#27ae60", OffsetX: -0.25, OffsetY: -0.25, Width: 0.3, Height: 0.3},
		{ID: "dormitory", Name: "Dormitory", Type: "residential", Color: "#8e44ad", OffsetX: 0.25, OffsetY: -0.25, Width: 0.3, Height: 0.3},
	}
}
