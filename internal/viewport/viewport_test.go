package viewport

import (
	"testing"
	"time"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func device(id string, lat, lon float64) tracking.DeviceRecord {
	return tracking.DeviceRecord{
		DeviceID: id,
		Kind:     tracking.KindMobile,
		LastLocation: &tracking.PositionSample{
			Latitude:  lat,
			Longitude: lon,
			Accuracy:  5,
			Source:    tracking.SourceContinuousGPS,
			Quality:   tracking.QualityExcellent,
		},
	}
}

func newStabilizer(clock *testClock) *Stabilizer {
	return NewStabilizer(WithClock(clock.Now))
}

func TestObserve_SingleDeviceCentersAtMaxZoom(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	state := s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})

	if state.Center.Latitude != 6.9271 || state.Center.Longitude != 79.8612 {
		t.Errorf("center = %+v, want the device position", state.Center)
	}
	if state.Zoom != ZoomMax {
		t.Errorf("zoom = %d, want ZoomMax %d", state.Zoom, ZoomMax)
	}
	if !state.TransitionInProgress {
		t.Error("first commit should start a transition")
	}
}

func TestObserve_SecondDeviceStepsZoomDownOneBracket(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})
	clock.Advance(time.Second) // let the first transition finish

	// second device roughly 50m north
	state := s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		device("b", 6.92755, 79.8612),
	})

	if state.Zoom != ZoomMax-1 {
		t.Errorf("zoom = %d, want %d (one bracket step down)", state.Zoom, ZoomMax-1)
	}

	wantLat := (6.9271 + 6.92755) / 2
	if state.Center.Latitude != wantLat {
		t.Errorf("center latitude = %v, want midpoint %v", state.Center.Latitude, wantLat)
	}
}

func TestZoomBrackets(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{1, ZoomMax},
		{2, ZoomMax - 1},
		{3, ZoomMax - 2},
		{5, ZoomMax - 2},
		{6, ZoomMax - 3},
		{12, ZoomMax - 3},
	}

	for _, tt := range tests {
		if got := zoomForCount(tt.count); got != tt.want {
			t.Errorf("zoomForCount(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}
}

func TestObserve_TinyMovementDoesNotRecompute(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})
	clock.Advance(time.Second)

	before := s.State()

	// sub-threshold wiggle, well under a meter
	state := s.Observe([]tracking.DeviceRecord{device("a", 6.9271001, 79.8612001)})

	if state.Center != before.Center || state.Zoom != before.Zoom {
		t.Errorf("viewport changed on tiny movement: %+v -> %+v", before, state)
	}
	if state.TransitionInProgress {
		t.Error("no new transition should start")
	}
}

func TestObserve_SubThresholdCorrectionSkippedSilently(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})
	clock.Advance(time.Second)

	// ~2m move: beyond the significant-move recompute threshold but the
	// resulting center change is under the noticeable threshold
	state := s.Observe([]tracking.DeviceRecord{device("a", 6.92712, 79.8612)})

	if state.Center.Latitude != 6.9271 {
		t.Errorf("center moved to %v on a sub-threshold correction", state.Center.Latitude)
	}
	if state.TransitionInProgress {
		t.Error("sub-threshold correction must not start a transition")
	}
}

func TestObserve_SuppressedWhileUserInteracting(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})
	clock.Advance(time.Second)

	s.SetInteracting(true)

	state := s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		device("b", 6.93, 79.87),
	})
	if state.Zoom != ZoomMax {
		t.Error("viewport recomputed while user is interacting")
	}

	// interaction ends; the trailing debounce window still suppresses
	s.SetInteracting(false)
	state = s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		device("b", 6.93, 79.87),
	})
	if state.Zoom != ZoomMax {
		t.Error("viewport recomputed inside the trailing debounce window")
	}

	// after the window, updates flow again
	clock.Advance(3 * time.Second)
	state = s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		device("b", 6.93, 79.87),
	})
	if state.Zoom != ZoomMax-1 {
		t.Errorf("zoom = %d, want %d after debounce window", state.Zoom, ZoomMax-1)
	}
}

func TestObserve_TransitionGuardBlocksRestart(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})

	// still inside the first transition's nominal duration
	clock.Advance(100 * time.Millisecond)
	state := s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		device("b", 6.93, 79.87),
	})

	if state.Zoom != ZoomMax {
		t.Error("new transition started while one was in progress")
	}
	if !state.TransitionInProgress {
		t.Error("transition flag should still be set")
	}

	clock.Advance(time.Second)
	state = s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		device("b", 6.93, 79.87),
	})
	if state.Zoom != ZoomMax-1 {
		t.Errorf("zoom = %d, want %d once the transition elapsed", state.Zoom, ZoomMax-1)
	}
}

func TestObserve_IgnoresDevicesWithoutValidPositions(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	state := s.Observe([]tracking.DeviceRecord{
		device("a", 6.9271, 79.8612),
		{DeviceID: "no-fix", Kind: tracking.KindMobile},
		device("bogus", 0, 0),
	})

	if state.Zoom != ZoomMax {
		t.Errorf("zoom = %d, want %d (only one valid position)", state.Zoom, ZoomMax)
	}
}

func TestObserve_EmptySetKeepsLastViewport(t *testing.T) {
	clock := newTestClock()
	s := newStabilizer(clock)

	committed := s.Observe([]tracking.DeviceRecord{device("a", 6.9271, 79.8612)})
	clock.Advance(time.Second)

	state := s.Observe(nil)
	if state.Center != committed.Center || state.Zoom != committed.Zoom {
		t.Error("empty device set must keep the last committed viewport")
	}
}
