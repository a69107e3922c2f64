package geo

// Rect is an axis-aligned bounding rectangle in degree space.
type Rect struct {
	MinLat float64 `json:"minLatitude"`
	MinLon float64 `json:"minLongitude"`
	MaxLat float64 `json:"maxLatitude"`
	MaxLon float64 `json:"maxLongitude"`
}

// RectAround builds a rectangle centered at c spanning width degrees of
// longitude and height degrees of latitude.
func RectAround(c Point, width, height float64) Rect {
	return Rect{
		MinLat: c.Latitude - height/2,
		MinLon: c.Longitude - width/2,
		MaxLat: c.Latitude + height/2,
		MaxLon: c.Longitude + width/2,
	}
}

// Contains reports whether p lies within the rectangle, edges included.
func (r Rect) Contains(p Point) bool {
	return p.Latitude >= r.MinLat && p.Latitude <= r.MaxLat &&
		p.Longitude >= r.MinLon && p.Longitude <= r.MaxLon
}

// Intersects reports whether r and o share any area.
func (r Rect) Intersects(o Rect) bool {
	return r.MinLat <= o.MaxLat && r.MaxLat >= o.MinLat &&
		r.MinLon <= o.MaxLon && r.MaxLon >= o.MinLon
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{
		Latitude:  (r.MinLat + r.MaxLat) / 2,
		Longitude: (r.MinLon + r.MaxLon) / 2,
	}
}
