// Package viewport computes a jitter-resistant map center and zoom
// from the reconciled device set. Tiny movements, sub-threshold
// corrections and updates during user interaction are all suppressed
// so the map neither trembles on every sample nor fights a user who is
// panning or zooming.
package viewport

import (
	"sync"
	"time"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/tracking"
)

const (
	// ZoomMax is the zoom used for a single tracked device; bracket
	// steps for larger device counts are taken from it.
	ZoomMax = 18

	// defaultSignificantMove is the movement, in degrees, below which a
	// device is considered not to have moved for recompute purposes.
	// Roughly a meter of latitude.
	defaultSignificantMove = 1e-5

	// defaultMinNoticeableMove is the committed-center change, in
	// meters, below which a recomputed viewport is dropped silently.
	defaultMinNoticeableMove = 5.0

	defaultDebounceWindow     = 2 * time.Second
	defaultTransitionDuration = 800 * time.Millisecond
)

// State is the committed viewport: map center, zoom level and whether
// a smoothed transition is still playing.
type State struct {
	Center               geo.Point `json:"center"`
	Zoom                 int       `json:"zoom"`
	TransitionInProgress bool      `json:"transitionInProgress"`
}

// WithSignificantMove overrides the per-device movement threshold in
// degrees.
func WithSignificantMove(degrees float64) func(*Stabilizer) {
	return func(s *Stabilizer) {
		s.significantMove = degrees
	}
}

// WithDebounceWindow overrides the trailing window after user
// interaction ends.
func WithDebounceWindow(d time.Duration) func(*Stabilizer) {
	return func(s *Stabilizer) {
		s.debounceWindow = d
	}
}

// WithTransitionDuration overrides the nominal duration of a smoothed
// transition.
func WithTransitionDuration(d time.Duration) func(*Stabilizer) {
	return func(s *Stabilizer) {
		s.transitionDuration = d
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) func(*Stabilizer) {
	return func(s *Stabilizer) {
		s.clock = clock
	}
}

// Stabilizer consumes the reconciled device set and maintains the
// committed viewport state.
type Stabilizer struct {
	significantMove    float64
	minNoticeableMove  float64
	debounceWindow     time.Duration
	transitionDuration time.Duration
	clock              func() time.Time

	mu               sync.Mutex
	committed        bool
	state            State
	lastSnapshot     map[string]geo.Point
	transitionEnds   time.Time
	userInteracting  bool
	interactingUntil time.Time
}

// NewStabilizer creates a Stabilizer with default thresholds.
func NewStabilizer(options ...func(*Stabilizer)) *Stabilizer {
	s := Stabilizer{
		significantMove:    defaultSignificantMove,
		minNoticeableMove:  defaultMinNoticeableMove,
		debounceWindow:     defaultDebounceWindow,
		transitionDuration: defaultTransitionDuration,
		clock:              time.Now,
		lastSnapshot:       make(map[string]geo.Point),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// SetInteracting flags the start or end of user interaction. Viewport
// recomputation is suppressed while interacting and for a trailing
// debounce window after it ends.
func (s *Stabilizer) SetInteracting(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userInteracting && !active {
		s.interactingUntil = s.clock().Add(s.debounceWindow)
	}
	s.userInteracting = active
}

// State returns the current committed viewport.
func (s *Stabilizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	state.TransitionInProgress = s.clock().Before(s.transitionEnds)
	return state
}

// Observe feeds the current device set into the stabilizer and returns
// the (possibly unchanged) committed state. Recomputation happens only
// when the device count changed, an unseen device appeared, or a
// tracked device moved beyond the significant-move threshold; and even
// then the new viewport is committed only when the change would be
// noticeable.
func (s *Stabilizer) Observe(devices []tracking.DeviceRecord) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()

	if s.userInteracting || now.Before(s.interactingUntil) {
		return s.currentLocked(now)
	}
	if now.Before(s.transitionEnds) {
		// a transition is still playing; starting another would stack
		// animations
		return s.currentLocked(now)
	}

	positions := validPositions(devices)
	if !s.shouldUpdate(positions) {
		return s.currentLocked(now)
	}
	if len(positions) == 0 {
		// nothing to center on; remember the empty set so the next
		// appearing device triggers a recompute
		s.lastSnapshot = positions
		return s.currentLocked(now)
	}

	center, zoom := compute(positions)

	if s.committed {
		if geo.Distance(s.state.Center, center) < s.minNoticeableMove && zoom == s.state.Zoom {
			// sub-threshold correction, skipped to avoid visual noise
			return s.currentLocked(now)
		}
	}

	s.committed = true
	s.state = State{Center: center, Zoom: zoom}
	s.lastSnapshot = positions
	s.transitionEnds = now.Add(s.transitionDuration)

	return s.currentLocked(now)
}

func (s *Stabilizer) currentLocked(now time.Time) State {
	state := s.state
	state.TransitionInProgress = now.Before(s.transitionEnds)
	return state
}

func (s *Stabilizer) shouldUpdate(positions map[string]geo.Point) bool {
	if len(positions) != len(s.lastSnapshot) {
		return true
	}
	for id, pos := range positions {
		prev, seen := s.lastSnapshot[id]
		if !seen {
			return true
		}
		if abs(pos.Latitude-prev.Latitude) > s.significantMove ||
			abs(pos.Longitude-prev.Longitude) > s.significantMove {
			return true
		}
	}
	return false
}

func validPositions(devices []tracking.DeviceRecord) map[string]geo.Point {
	positions := make(map[string]geo.Point, len(devices))
	for _, d := range devices {
		if d.LastLocation == nil {
			continue
		}
		p := d.LastLocation.Point()
		if !p.IsValid() {
			continue
		}
		positions[d.DeviceID] = p
	}
	return positions
}

// compute derives center and zoom for a set of valid positions. One
// device centers on it at maximum zoom; several center on the midpoint
// of the latitude/longitude extents with zoom stepping down by device
// count bracket.
func compute(positions map[string]geo.Point) (geo.Point, int) {
	var minLat, maxLat, minLon, maxLon float64
	first := true
	for _, p := range positions {
		if first {
			minLat, maxLat = p.Latitude, p.Latitude
			minLon, maxLon = p.Longitude, p.Longitude
			first = false
			continue
		}
		if p.Latitude < minLat {
			minLat = p.Latitude
		}
		if p.Latitude > maxLat {
			maxLat = p.Latitude
		}
		if p.Longitude < minLon {
			minLon = p.Longitude
		}
		if p.Longitude > maxLon {
			maxLon = p.Longitude
		}
	}

	center := geo.Point{
		Latitude:  (minLat + maxLat) / 2,
		Longitude: (minLon + maxLon) / 2,
	}

	return center, zoomForCount(len(positions))
}

func zoomForCount(n int) int {
	switch {
	case n <= 1:
		return ZoomMax
	case n == 2:
		return ZoomMax - 1
	case n <= 5:
		return ZoomMax - 2
	default:
		return ZoomMax - 3
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
