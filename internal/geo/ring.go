package geo

// Ring is an ordered closed ring of vertices. A well-formed ring
// repeats its first vertex as the last one.
type Ring []Point

// Closed reports whether the ring has at least four vertices and the
// first vertex is repeated at the end.
func (r Ring) Closed() bool {
	if len(r) < 4 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// BBox returns the axis-aligned bounding box of the ring.
func (r Ring) BBox() Rect {
	if len(r) == 0 {
		return Rect{}
	}

	box := Rect{
		MinLat: r[0].Latitude, MaxLat: r[0].Latitude,
		MinLon: r[0].Longitude, MaxLon: r[0].Longitude,
	}
	for _, v := range r[1:] {
		if v.Latitude < box.MinLat {
			box.MinLat = v.Latitude
		}
		if v.Latitude > box.MaxLat {
			box.MaxLat = v.Latitude
		}
		if v.Longitude < box.MinLon {
			box.MinLon = v.Longitude
		}
		if v.Longitude > box.MaxLon {
			box.MaxLon = v.Longitude
		}
	}
	return box
}

// Contains reports whether p lies inside the ring using ray casting
// with the even-odd rule. Points exactly on an edge may land on either
// side; zone geometry keeps enough margin for this not to matter.
func (r Ring) Contains(p Point) bool {
	n := len(r)
	if r.Closed() {
		n-- // skip the repeated closing vertex
	}
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := r[i], r[j]

		if (vi.Latitude > p.Latitude) == (vj.Latitude > p.Latitude) {
			continue
		}

		x := (vj.Longitude-vi.Longitude)*(p.Latitude-vi.Latitude)/
			(vj.Latitude-vi.Latitude) + vi.Longitude
		if p.Longitude < x {
			inside = !inside
		}
	}
	return inside
}
