package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider scripts positioning behavior for session tests.
type fakeProvider struct {
	mu         sync.Mutex
	watchCalls int
	watchErr   error
	samples    chan PositionSample
	errs       chan error

	onceErr    error
	onceSample PositionSample
	onceCalls  atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		samples: make(chan PositionSample, 8),
		errs:    make(chan error, 1),
	}
}

func (p *fakeProvider) Watch(ctx context.Context, opts WatchOptions) (<-chan PositionSample, <-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.watchCalls++
	if p.watchErr != nil {
		return nil, nil, p.watchErr
	}
	return p.samples, p.errs, nil
}

func (p *fakeProvider) Once(ctx context.Context, opts WatchOptions) (PositionSample, error) {
	p.onceCalls.Add(1)
	if p.onceErr != nil {
		return PositionSample{}, p.onceErr
	}
	return p.onceSample, nil
}

func (p *fakeProvider) watchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchCalls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func record(id string, lat, lon float64, updated time.Time) DeviceRecord {
	return DeviceRecord{
		DeviceID: id,
		Kind:     KindMobile,
		LastLocation: &PositionSample{
			Latitude:  lat,
			Longitude: lon,
			Accuracy:  10,
			Timestamp: updated,
			Source:    SourcePeriodicGPS,
			Quality:   QualityGood,
		},
		LastUpdated: updated,
	}
}

func TestReconciler_LiveNewerWinsOverSnapshot(t *testing.T) {
	r := NewReconciler(newFakeProvider())

	t0 := time.Now()
	t1 := t0.Add(10 * time.Second)

	r.ApplySnapshot([]DeviceRecord{record("x", 6.9271, 79.8612, t0)})
	r.merge(record("x", 6.9275, 79.8615, t1), true)

	// stale snapshot replay must not roll the record back
	r.ApplySnapshot([]DeviceRecord{record("x", 6.9271, 79.8612, t0)})

	got, ok := r.Device("x")
	if !ok {
		t.Fatal("device x missing")
	}
	if got.LastLocation.Latitude != 6.9275 {
		t.Errorf("latitude = %v, want live value 6.9275", got.LastLocation.Latitude)
	}
	if !got.LastUpdated.Equal(t1) {
		t.Errorf("lastUpdated = %v, want %v", got.LastUpdated, t1)
	}
}

func TestReconciler_MergeIsOrderIndependent(t *testing.T) {
	t0 := time.Now()
	t1 := t0.Add(time.Minute)

	older := record("x", 6.9271, 79.8612, t0)
	newer := record("x", 6.9275, 79.8615, t1)

	a := NewReconciler(newFakeProvider())
	a.ApplySnapshot([]DeviceRecord{older})
	a.ApplySnapshot([]DeviceRecord{newer})

	b := NewReconciler(newFakeProvider())
	b.ApplySnapshot([]DeviceRecord{newer})
	b.ApplySnapshot([]DeviceRecord{older})

	da, _ := a.Device("x")
	db, _ := b.Device("x")
	if da.LastLocation.Latitude != db.LastLocation.Latitude || !da.LastUpdated.Equal(db.LastUpdated) {
		t.Errorf("merge depends on arrival order: %+v vs %+v", da, db)
	}
}

func TestReconciler_TieFavorsLive(t *testing.T) {
	r := NewReconciler(newFakeProvider())

	ts := time.Now()
	r.ApplySnapshot([]DeviceRecord{record("x", 6.9271, 79.8612, ts)})
	r.merge(record("x", 6.9275, 79.8615, ts), true)

	got, _ := r.Device("x")
	if got.LastLocation.Latitude != 6.9275 {
		t.Errorf("tie should favor the live side, got latitude %v", got.LastLocation.Latitude)
	}
}

func TestReconciler_SnapshotOnlyDeviceInsertedVerbatim(t *testing.T) {
	r := NewReconciler(newFakeProvider())

	ts := time.Now()
	r.ApplySnapshot([]DeviceRecord{record("y", 6.9265, 79.8610, ts)})

	got, ok := r.Device("y")
	if !ok {
		t.Fatal("snapshot-only device y missing")
	}
	if got.LastLocation.Latitude != 6.9265 || !got.LastUpdated.Equal(ts) {
		t.Errorf("device y modified on insert: %+v", got)
	}
}

func TestReconciler_LocalDeviceSurvivesSnapshotsWithoutIt(t *testing.T) {
	p := newFakeProvider()
	r := NewReconciler(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSession(ctx, "local", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer r.StopSession("local")

	r.ApplySnapshot([]DeviceRecord{record("other", 6.9265, 79.8610, time.Now())})

	if _, ok := r.Device("local"); !ok {
		t.Error("optimistically created device dropped by snapshot merge")
	}
	if len(r.Devices()) != 2 {
		t.Errorf("expected 2 devices, got %d", len(r.Devices()))
	}
}

func TestReconciler_StartSessionIdempotent(t *testing.T) {
	p := newFakeProvider()
	r := NewReconciler(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	waitFor(t, "first watch", func() bool { return p.watchCount() == 1 })

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("second StartSession: %v", err)
	}

	// give a second watch a chance to (incorrectly) start
	time.Sleep(50 * time.Millisecond)
	if n := p.watchCount(); n != 1 {
		t.Errorf("watch called %d times, want 1", n)
	}

	r.StopSession("x")
}

func TestReconciler_LiveSampleFlowsThroughFilter(t *testing.T) {
	p := newFakeProvider()
	r := NewReconciler(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates atomic.Int32
	sub := r.Subscribe(func(ev Event) {
		if ev.Type == EventDeviceUpdated {
			updates.Add(1)
		}
	})
	defer sub.Stop()

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer r.StopSession("x")

	waitFor(t, "watch", func() bool { return p.watchCount() == 1 })

	p.samples <- PositionSample{Latitude: 6.9271, Longitude: 79.8612, Accuracy: 5, Timestamp: time.Now()}
	waitFor(t, "first update", func() bool { return updates.Load() == 1 })

	// identical position: filtered out, no second update
	p.samples <- PositionSample{Latitude: 6.9271, Longitude: 79.8612, Accuracy: 5, Timestamp: time.Now()}
	time.Sleep(50 * time.Millisecond)
	if n := updates.Load(); n != 1 {
		t.Errorf("updates = %d, want 1 (duplicate should be filtered)", n)
	}

	got, _ := r.Device("x")
	if got.LastLocation == nil || got.LastLocation.Source != SourceContinuousGPS {
		t.Errorf("live sample source = %+v, want continuous-gps", got.LastLocation)
	}
}

func TestReconciler_StopSessionDropsLateSamples(t *testing.T) {
	p := newFakeProvider()
	r := NewReconciler(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	waitFor(t, "watch", func() bool { return p.watchCount() == 1 })

	p.samples <- PositionSample{Latitude: 6.9271, Longitude: 79.8612, Accuracy: 5, Timestamp: time.Now()}
	waitFor(t, "tracked position", func() bool {
		d, _ := r.Device("x")
		return d.LastLocation != nil
	})

	r.StopSession("x")
	r.StopSession("x") // idempotent

	before, _ := r.Device("x")

	// a response that was in flight when the session was torn down
	p.samples <- PositionSample{Latitude: 6.93, Longitude: 79.87, Accuracy: 5, Timestamp: time.Now().Add(time.Minute)}
	time.Sleep(50 * time.Millisecond)

	after, ok := r.Device("x")
	if !ok {
		t.Fatal("stop must not remove the record")
	}
	if after.LastLocation.Latitude != before.LastLocation.Latitude {
		t.Error("late in-flight sample applied after teardown")
	}
}

// gatedProvider blocks Watch until released, exposing the context the
// watch was started with.
type gatedProvider struct {
	gate     chan struct{}
	watchCtx chan context.Context
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		gate:     make(chan struct{}),
		watchCtx: make(chan context.Context, 1),
	}
}

func (p *gatedProvider) Watch(ctx context.Context, opts WatchOptions) (<-chan PositionSample, <-chan error, error) {
	p.watchCtx <- ctx
	<-p.gate
	return make(chan PositionSample), make(chan error), nil
}

func (p *gatedProvider) Once(ctx context.Context, opts WatchOptions) (PositionSample, error) {
	return PositionSample{}, ErrProviderUnavailable
}

func TestReconciler_StopDuringWatchSetupReleasesWatch(t *testing.T) {
	p := newGatedProvider()
	r := NewReconciler(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	wctx := <-p.watchCtx // watch is now being established
	r.StopSession("x")
	close(p.gate) // watch setup completes after the session stopped

	waitFor(t, "watch cancellation", func() bool {
		select {
		case <-wctx.Done():
			return true
		default:
			return false
		}
	})
}

func TestReconciler_WatchFailureDowngradesToPeriodic(t *testing.T) {
	p := newFakeProvider()
	p.watchErr = ErrProviderUnavailable
	p.onceSample = PositionSample{Latitude: 6.9271, Longitude: 79.8612, Accuracy: 30, Timestamp: time.Now()}

	r := NewReconciler(p, WithProbeInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer r.StopSession("x")

	waitFor(t, "periodic probe", func() bool { return p.onceCalls.Load() > 0 })
	waitFor(t, "probed position", func() bool {
		d, _ := r.Device("x")
		return d.LastLocation != nil && d.LastLocation.Source == SourcePeriodicGPS
	})
}

func TestReconciler_ProbeFailuresDowngradeToNetworkFallback(t *testing.T) {
	p := newFakeProvider()
	p.watchErr = ErrProviderUnavailable
	p.onceErr = ErrProviderTimeout

	r := NewReconciler(p,
		WithProbeInterval(5*time.Millisecond),
		WithNetworkInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSession(ctx, "x", KindMobile); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer r.StopSession("x")

	// no network locator configured: the chain is exhausted immediately
	// and the hardcoded default position is used
	waitFor(t, "fallback position", func() bool {
		d, _ := r.Device("x")
		return d.LastLocation != nil && d.LastLocation.Source == SourceNetworkEstimate
	})

	d, _ := r.Device("x")
	if d.LastLocation.Latitude != 6.9271 || d.LastLocation.Longitude != 79.8612 {
		t.Errorf("fallback position = (%v, %v), want default origin",
			d.LastLocation.Latitude, d.LastLocation.Longitude)
	}
	if d.LastLocation.Quality != QualityUnknown {
		t.Errorf("fallback quality = %s, want unknown", d.LastLocation.Quality)
	}
}

func TestReconciler_StartSessionAtNetworkTier(t *testing.T) {
	p := newFakeProvider()
	located := PositionSample{Latitude: 6.9266, Longitude: 79.8608, Accuracy: 500, Timestamp: time.Now()}

	r := NewReconciler(p,
		WithNetworkInterval(5*time.Millisecond),
		WithNetworkLocator(locatorFunc(func(ctx context.Context) (PositionSample, error) {
			return located, nil
		})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartSessionAt(ctx, "remote", KindMobile, TierNetwork); err != nil {
		t.Fatalf("StartSessionAt: %v", err)
	}
	defer r.StopSession("remote")

	waitFor(t, "network estimate", func() bool {
		d, _ := r.Device("remote")
		return d.LastLocation != nil && d.LastLocation.Source == SourceNetworkEstimate
	})

	if n := p.watchCount(); n != 0 {
		t.Errorf("network-tier session must not open a watch, got %d", n)
	}
}

func TestReconciler_TeardownRemovesDevice(t *testing.T) {
	r := NewReconciler(newFakeProvider())

	var removed atomic.Int32
	sub := r.Subscribe(func(ev Event) {
		if ev.Type == EventDeviceRemoved {
			removed.Add(1)
		}
	})
	defer sub.Stop()

	r.ApplySnapshot([]DeviceRecord{record("x", 6.9271, 79.8612, time.Now())})
	r.Teardown("x")

	if _, ok := r.Device("x"); ok {
		t.Error("device still present after teardown")
	}
	if removed.Load() != 1 {
		t.Errorf("removed events = %d, want 1", removed.Load())
	}
}

func TestObservable_Unsubscribe(t *testing.T) {
	r := NewReconciler(newFakeProvider())

	var events atomic.Int32
	sub := r.Subscribe(func(Event) { events.Add(1) })

	r.ApplySnapshot([]DeviceRecord{record("a", 6.9271, 79.8612, time.Now())})
	if events.Load() != 1 {
		t.Fatalf("events = %d, want 1", events.Load())
	}

	sub.Stop()
	sub.Stop() // idempotent

	r.ApplySnapshot([]DeviceRecord{record("b", 6.9271, 79.8612, time.Now())})
	if events.Load() != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", events.Load())
	}
}

type locatorFunc func(ctx context.Context) (PositionSample, error)

func (f locatorFunc) Locate(ctx context.Context) (PositionSample, error) { return f(ctx) }

func TestDeviceRecord_DerivedStatus(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rec  DeviceRecord
		want DisplayStatus
	}{
		{"no location", DeviceRecord{DeviceID: "x"}, StatusOffline},
		{"fresh", record("x", 6.9, 79.8, now.Add(-time.Minute)), StatusFresh},
		{"stale", record("x", 6.9, 79.8, now.Add(-5*time.Minute)), StatusStale},
		{"offline", record("x", 6.9, 79.8, now.Add(-time.Hour)), StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Status(now); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}
