package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lakmal-w/campustrack/internal/geo"
)

const (
	defaultAcquireTimeout  = 15 * time.Second
	defaultProbeInterval   = 30 * time.Second
	defaultNetworkInterval = 60 * time.Second
	defaultProbeFailures   = 3

	// fallback jitter amplitude in degrees, roughly a meter
	jitterAmplitude = 1e-5
)

// WithLogger sets the logger used for session and merge events.
func WithLogger(logger *slog.Logger) func(*Reconciler) {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithFilter replaces the default sample filter.
func WithFilter(f *Filter) func(*Reconciler) {
	return func(r *Reconciler) {
		r.filter = f
	}
}

// WithNetworkLocator sets the network location fallback used by the
// lowest sampling tier.
func WithNetworkLocator(l NetworkLocator) func(*Reconciler) {
	return func(r *Reconciler) {
		r.locator = l
	}
}

// WithProbeInterval sets the periodic tier probe interval.
func WithProbeInterval(d time.Duration) func(*Reconciler) {
	return func(r *Reconciler) {
		r.probeInterval = d
	}
}

// WithNetworkInterval sets the network tier refresh interval.
func WithNetworkInterval(d time.Duration) func(*Reconciler) {
	return func(r *Reconciler) {
		r.networkInterval = d
	}
}

// WithFallbackPosition sets the hardcoded position used when every
// location source is exhausted and no last-known position exists.
func WithFallbackPosition(p geo.Point) func(*Reconciler) {
	return func(r *Reconciler) {
		r.fallback = p
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) func(*Reconciler) {
	return func(r *Reconciler) {
		r.clock = clock
	}
}

// Reconciler owns the authoritative deviceID to DeviceRecord map. It
// merges periodic snapshots, live samples from local sessions and
// push-delivered updates, in any arrival order: for each device the
// record with the newer LastUpdated timestamp wins, ties favor the
// live side. This is vulnerable to client clock skew across devices;
// no compensation is applied.
type Reconciler struct {
	provider Provider
	locator  NetworkLocator
	filter   *Filter
	logger   *slog.Logger
	clock    func() time.Time

	acquireTimeout  time.Duration
	probeInterval   time.Duration
	networkInterval time.Duration
	fallback        geo.Point

	mu           sync.Mutex
	devices      map[string]*DeviceRecord
	lastAccepted map[string]*PositionSample

	obs *observable
}

// NewReconciler creates a Reconciler sampling through the given
// positioning provider.
func NewReconciler(provider Provider, options ...func(*Reconciler)) *Reconciler {
	r := Reconciler{
		provider:        provider,
		filter:          NewFilter(),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:           time.Now,
		acquireTimeout:  defaultAcquireTimeout,
		probeInterval:   defaultProbeInterval,
		networkInterval: defaultNetworkInterval,
		fallback:        geo.Point{Latitude: 6.9271, Longitude: 79.8612},
		devices:         make(map[string]*DeviceRecord),
		lastAccepted:    make(map[string]*PositionSample),
		obs:             newObservable(),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Subscribe registers fn for device map change events. The returned
// Handle unsubscribes it.
func (r *Reconciler) Subscribe(fn func(Event)) Handle {
	return r.obs.subscribe(fn)
}

// Devices returns a read-only snapshot of the reconciled device map,
// ordered by device ID.
func (r *Reconciler) Devices() []DeviceRecord {
	r.mu.Lock()
	out := make([]DeviceRecord, 0, len(r.devices))
	for _, rec := range r.devices {
		out = append(out, rec.clone())
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b DeviceRecord) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return out
}

// Device returns a copy of one device record.
func (r *Reconciler) Device(id string) (DeviceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.devices[id]
	if !ok {
		return DeviceRecord{}, false
	}
	return rec.clone(), true
}

// ApplySnapshot merges a full snapshot fetched from the backing store.
// New IDs are inserted verbatim; existing records only change when the
// snapshot carries a strictly newer timestamp, so replaying an old
// snapshot is a no-op and locally created devices stay visible until
// the store catches up.
func (r *Reconciler) ApplySnapshot(records []DeviceRecord) {
	for _, rec := range records {
		r.merge(rec, false)
	}
}

// ApplyPush merges one push-delivered update for a device, using the
// same order-independent rule as snapshots.
func (r *Reconciler) ApplyPush(rec DeviceRecord) {
	r.merge(rec, false)
}

func (r *Reconciler) merge(in DeviceRecord, live bool) {
	var ev *Event

	r.mu.Lock()
	cur, ok := r.devices[in.DeviceID]
	switch {
	case !ok:
		rec := in.clone()
		r.devices[in.DeviceID] = &rec
		ev = &Event{Type: EventDeviceAdded, Device: rec.clone()}

	case in.LastUpdated.After(cur.LastUpdated) || (live && in.LastUpdated.Equal(cur.LastUpdated)):
		if in.LastLocation != nil {
			loc := *in.LastLocation
			cur.LastLocation = &loc
		}
		if in.Kind != "" {
			cur.Kind = in.Kind
		}
		cur.LastUpdated = in.LastUpdated
		ev = &Event{Type: EventDeviceUpdated, Device: cur.clone()}
	}
	r.mu.Unlock()

	if ev != nil {
		r.obs.publish(*ev)
	}
}

// StartSession begins continuous high-accuracy sampling for a device.
// Calling it again while a session is active is a no-op.
func (r *Reconciler) StartSession(ctx context.Context, deviceID string, kind Kind) error {
	return r.StartSessionAt(ctx, deviceID, kind, TierContinuous)
}

// StartSessionAt begins sampling for a device at the given tier.
// Devices discovered only via snapshots are typically started at the
// periodic or network tier, so many devices can be tracked
// concurrently without interfering with each other.
func (r *Reconciler) StartSessionAt(ctx context.Context, deviceID string, kind Kind, tier Tier) error {
	if tier < TierContinuous || tier > TierNetwork {
		return fmt.Errorf("starting session for %s: unknown tier %d", deviceID, int(tier))
	}

	r.mu.Lock()
	rec, ok := r.devices[deviceID]
	created := !ok
	if created {
		// optimistic local creation; visible before any snapshot has it
		rec = &DeviceRecord{DeviceID: deviceID, Kind: kind}
		r.devices[deviceID] = rec
	}
	if rec.HasSession() {
		r.mu.Unlock()
		return nil
	}

	s := newSession(deviceID)
	s.tier = tier
	rec.session = s
	snapshot := rec.clone()
	r.mu.Unlock()

	if created {
		r.obs.publish(Event{Type: EventDeviceAdded, Device: snapshot})
	}

	switch tier {
	case TierContinuous:
		go r.runContinuous(ctx, s)
	case TierPeriodic:
		s.setState(SessionDegraded)
		r.runPeriodic(ctx, s)
	case TierNetwork:
		s.setState(SessionDegraded)
		r.runNetwork(ctx, s)
	}

	return nil
}

// StopSession releases every watch and timer the device session owns.
// Idempotent; in-flight results arriving after teardown are dropped.
func (r *Reconciler) StopSession(deviceID string) {
	r.mu.Lock()
	rec, ok := r.devices[deviceID]
	var s *Session
	if ok {
		s = rec.session
		rec.session = nil
	}
	r.mu.Unlock()

	if s != nil {
		s.stop()
		r.logger.Info("session stopped", slog.String("deviceID", deviceID))
	}
}

// Teardown stops the device session and removes the record from the
// map. This is the only way a record is ever removed; staleness alone
// never deletes.
func (r *Reconciler) Teardown(deviceID string) {
	r.StopSession(deviceID)

	r.mu.Lock()
	rec, ok := r.devices[deviceID]
	if ok {
		delete(r.devices, deviceID)
		delete(r.lastAccepted, deviceID)
	}
	r.mu.Unlock()

	if ok {
		r.obs.publish(Event{Type: EventDeviceRemoved, Device: rec.clone()})
	}
}

// Stop stops every active session. Records remain in the map.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	var sessions []*Session
	for _, rec := range r.devices {
		if rec.session != nil {
			sessions = append(sessions, rec.session)
			rec.session = nil
		}
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
}

// runContinuous drives tier 1: a push subscription from the positioning
// provider. Any failure downgrades to the periodic tier.
func (r *Reconciler) runContinuous(ctx context.Context, s *Session) {
	s.setState(SessionAcquiring)

	wctx, cancel := context.WithCancel(ctx)
	samples, errs, err := r.provider.Watch(wctx, WatchOptions{
		HighAccuracy:    true,
		Timeout:         r.acquireTimeout,
		MinMoveDistance: r.filter.distanceThreshold,
	})
	if err != nil {
		cancel()
		r.downgrade(ctx, s, TierPeriodic, err)
		return
	}

	s.addHandle(subscription(cancel))
	if s.stopped() {
		return // torn down while the watch was being established
	}
	s.setState(SessionTracking)
	r.logger.Info("continuous tracking started", slog.String("deviceID", s.deviceID))

	for {
		select {
		case sample, ok := <-samples:
			if !ok {
				r.downgrade(ctx, s, TierPeriodic, ErrProviderUnavailable)
				return
			}
			sample.Source = SourceContinuousGPS
			r.applyLive(s, TierContinuous, sample)

		case err, ok := <-errs:
			if ok && err != nil {
				r.downgrade(ctx, s, TierPeriodic, err)
				return
			}

		case <-wctx.Done():
			return
		}
	}
}

// runPeriodic drives tier 2: single-shot probes on a repeating timer.
// Repeated probe failures downgrade to the network tier.
func (r *Reconciler) runPeriodic(ctx context.Context, s *Session) {
	var failures int
	var mu sync.Mutex

	handle := repeatEvery(r.probeInterval, func() {
		octx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
		defer cancel()

		sample, err := r.provider.Once(octx, WatchOptions{
			Timeout: r.acquireTimeout,
			MaxAge:  r.probeInterval,
		})
		if err != nil {
			mu.Lock()
			failures++
			exhausted := failures >= defaultProbeFailures
			mu.Unlock()

			r.logger.Warn("periodic probe failed",
				slog.String("deviceID", s.deviceID),
				slog.String("error", err.Error()))

			if exhausted {
				r.downgrade(ctx, s, TierNetwork, err)
			}
			return
		}

		mu.Lock()
		failures = 0
		mu.Unlock()

		sample.Source = SourcePeriodicGPS
		r.applyLive(s, TierPeriodic, sample)
	})

	s.addHandle(handle)
}

// runNetwork drives tier 3: the ordered network-locator chain on a
// repeating timer. When the chain is exhausted the device falls back
// to its last-known position plus a small jitter, or the hardcoded
// default position.
func (r *Reconciler) runNetwork(ctx context.Context, s *Session) {
	handle := repeatEvery(r.networkInterval, func() {
		sample, err := r.locate(ctx, s)
		if err != nil {
			r.logger.Warn("network location exhausted, using fallback",
				slog.String("deviceID", s.deviceID),
				slog.String("error", err.Error()))
			sample = r.fallbackSample(s.deviceID)
		}

		sample.Source = SourceNetworkEstimate
		r.applyLive(s, TierNetwork, sample)
	})

	s.addHandle(handle)
}

func (r *Reconciler) locate(ctx context.Context, s *Session) (PositionSample, error) {
	if r.locator == nil {
		return PositionSample{}, ErrProviderUnavailable
	}

	octx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()

	return r.locator.Locate(octx)
}

func (r *Reconciler) fallbackSample(deviceID string) PositionSample {
	now := r.clock()

	r.mu.Lock()
	prev := r.lastAccepted[deviceID]
	r.mu.Unlock()

	if prev != nil {
		return PositionSample{
			Latitude:  prev.Latitude + (rand.Float64()-0.5)*jitterAmplitude,
			Longitude: prev.Longitude + (rand.Float64()-0.5)*jitterAmplitude,
			Accuracy:  prev.Accuracy,
			Timestamp: now,
			Quality:   QualityPoor,
		}
	}

	return PositionSample{
		Latitude:  r.fallback.Latitude,
		Longitude: r.fallback.Longitude,
		Timestamp: now,
		Quality:   QualityUnknown,
	}
}

// applyLive runs one locally sampled position through the filter and
// merges it. Samples belonging to a torn-down session or a tier the
// session has already left are dropped.
func (r *Reconciler) applyLive(s *Session, tier Tier, sample PositionSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = r.clock()
	}
	if sample.Quality == "" {
		sample.Quality = QualityForAccuracy(sample.Accuracy)
	}

	r.mu.Lock()
	rec, ok := r.devices[s.deviceID]
	if !ok || rec.session != s || s.stopped() || s.Tier() != tier {
		r.mu.Unlock()
		return // late in-flight result, session gone or downgraded
	}

	accept, err := r.filter.Accept(r.lastAccepted[s.deviceID], sample)
	if err != nil {
		r.mu.Unlock()

		var invalid *InvalidSampleError
		if errors.As(err, &invalid) {
			r.logger.Warn("rejecting invalid sample",
				slog.String("deviceID", s.deviceID),
				slog.Float64("latitude", invalid.Latitude),
				slog.Float64("longitude", invalid.Longitude))
		}
		return
	}
	if !accept {
		r.mu.Unlock()
		return
	}

	cp := sample
	r.lastAccepted[s.deviceID] = &cp
	r.mu.Unlock()

	r.merge(DeviceRecord{
		DeviceID:     s.deviceID,
		LastLocation: &cp,
		LastUpdated:  sample.Timestamp,
	}, true)
}

// downgrade moves a session to a lower tier and starts that tier's
// sampling loop.
func (r *Reconciler) downgrade(ctx context.Context, s *Session, to Tier, cause error) {
	if !s.downgrade(to) {
		return
	}

	r.logger.Warn("session downgraded",
		slog.String("deviceID", s.deviceID),
		slog.String("tier", to.String()),
		slog.String("cause", cause.Error()))

	switch to {
	case TierPeriodic:
		r.runPeriodic(ctx, s)
	case TierNetwork:
		r.runNetwork(ctx, s)
	}
}
