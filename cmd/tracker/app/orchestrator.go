package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/geofence"
	"github.com/lakmal-w/campustrack/internal/push"
	"github.com/lakmal-w/campustrack/internal/storage"
	"github.com/lakmal-w/campustrack/internal/tracking"
	"github.com/lakmal-w/campustrack/internal/viewport"
)

const maxBatchSize = 100

// Orchestrator ties the reconciler to its surroundings: it restores and
// polls store snapshots, persists reconciled changes and position
// history, propagates changes over the push channel, classifies devices
// against the campus geofences and feeds the viewport stabilizer.
type Orchestrator struct {
	config  *Config
	logger  *slog.Logger
	store   *storage.SqliteStore
	rec     *tracking.Reconciler
	campus  *geofence.Campus
	view    *viewport.Stabilizer
	channel push.Channel

	maxBatchSize int

	mu       sync.Mutex
	zones    map[string]string
	pending  map[string][]tracking.PositionSample
	pendingN int
}

// WithMaxBatchSize sets the maximum batch size of buffered position
// samples to store within a single database transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, store *storage.SqliteStore, rec *tracking.Reconciler, campus *geofence.Campus, channel push.Channel, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		config:       config,
		logger:       logger,
		store:        store,
		rec:          rec,
		campus:       campus,
		view:         viewport.NewStabilizer(),
		channel:      channel,
		maxBatchSize: maxBatchSize,
		zones:        make(map[string]string),
		pending:      make(map[string][]tracking.PositionSample),
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run restores persisted state, starts the configured device sessions
// and blocks polling store snapshots until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if records, err := o.store.Snapshot(ctx); err != nil {
		o.logger.Warn("restoring snapshot failed, starting empty", slog.String("error", err.Error()))
	} else if len(records) > 0 {
		o.rec.ApplySnapshot(records)
		o.logger.Info("snapshot restored", slog.Int("devices", len(records)))
	}

	sub := o.rec.Subscribe(func(ev tracking.Event) {
		o.handleEvent(ctx, ev)
	})
	defer sub.Stop()

	if err := o.channel.Subscribe(ctx, o.handleRemote); err != nil {
		return fmt.Errorf("subscribing to push channel: %w", err)
	}

	if err := o.startSessions(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(o.config.Settings.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.pollSnapshot(ctx)
			o.flush(ctx)

		case <-ctx.Done():
			o.rec.Stop()

			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			o.flush(fctx)
			cancel()
			return nil
		}
	}
}

func (o *Orchestrator) startSessions(ctx context.Context) error {
	var started int
	for _, device := range o.config.Devices {
		if !device.Enabled {
			continue
		}

		kind := tracking.KindMobile
		if device.Kind == DeviceKindStationary {
			kind = tracking.KindStationary
		}

		tier := tracking.TierContinuous
		switch device.Tier {
		case TierNamePeriodic:
			tier = tracking.TierPeriodic
		case TierNameNetwork:
			tier = tracking.TierNetwork
		}

		if err := o.rec.StartSessionAt(ctx, device.ID, kind, tier); err != nil {
			return fmt.Errorf("starting session for %s: %w", device.ID, err)
		}

		o.logger.Info("session started",
			slog.String("deviceID", device.ID),
			slog.String("tier", tier.String()))
		started++
	}

	if started == 0 {
		return fmt.Errorf("no devices enabled in configuration")
	}
	return nil
}

// pollSnapshot merges the latest persisted snapshot. A failed poll
// keeps the current reconciled state untouched.
func (o *Orchestrator) pollSnapshot(ctx context.Context) {
	records, err := o.store.Snapshot(ctx)
	if err != nil {
		o.logger.Warn("snapshot poll failed, keeping current state", slog.String("error", err.Error()))
		return
	}
	o.rec.ApplySnapshot(records)
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev tracking.Event) {
	switch ev.Type {
	case tracking.EventDeviceRemoved:
		if err := o.store.RemoveDevice(ctx, ev.Device.DeviceID); err != nil {
			o.logger.Warn("removing device from store failed",
				slog.String("deviceID", ev.Device.DeviceID),
				slog.String("error", err.Error()))
		}

		o.mu.Lock()
		delete(o.zones, ev.Device.DeviceID)
		o.pendingN -= len(o.pending[ev.Device.DeviceID])
		delete(o.pending, ev.Device.DeviceID)
		o.mu.Unlock()

	default:
		if err := o.store.UpsertDevice(ctx, ev.Device); err != nil {
			o.logger.Warn("persisting device failed",
				slog.String("deviceID", ev.Device.DeviceID),
				slog.String("error", err.Error()))
		}

		o.buffer(ctx, ev.Device)
		o.classify(ev.Device)
	}

	if err := o.channel.Publish(ctx, ev); err != nil {
		o.logger.Warn("publishing device event failed",
			slog.String("deviceID", ev.Device.DeviceID),
			slog.String("error", err.Error()))
	}

	state := o.view.Observe(o.rec.Devices())
	o.logger.Debug("viewport",
		slog.Float64("latitude", state.Center.Latitude),
		slog.Float64("longitude", state.Center.Longitude),
		slog.Int("zoom", state.Zoom))
}

// handleRemote applies one push-delivered change from another tracker.
func (o *Orchestrator) handleRemote(ev tracking.Event) {
	switch ev.Type {
	case tracking.EventDeviceRemoved:
		o.rec.Teardown(ev.Device.DeviceID)
	default:
		o.rec.ApplyPush(ev.Device)
	}
}

// classify logs zone transitions. A device outside every zone also gets
// the distance to the nearest zone center, so the log shows how far off
// it wandered.
func (o *Orchestrator) classify(rec tracking.DeviceRecord) {
	if rec.LastLocation == nil {
		return
	}
	p := rec.LastLocation.Point()

	zone, class := o.campus.Classify(p)
	label := class.String()
	if zone != nil {
		label = zone.ID
	}

	o.mu.Lock()
	prev, seen := o.zones[rec.DeviceID]
	o.zones[rec.DeviceID] = label
	o.mu.Unlock()

	if seen && prev == label {
		return
	}

	attrs := []any{
		slog.String("deviceID", rec.DeviceID),
		slog.String("to", label),
	}
	if seen {
		attrs = append(attrs, slog.String("from", prev))
	}
	if class != geofence.InZone {
		if id, distance := o.nearestZone(p); id != "" {
			attrs = append(attrs,
				slog.String("nearestZone", id),
				slog.Float64("distanceMeters", math.Round(distance)))
		}
	}

	o.logger.Info("zone transition", attrs...)
}

func (o *Orchestrator) nearestZone(p geo.Point) (string, float64) {
	var id string
	nearest := math.MaxFloat64
	for _, zone := range o.campus.Zones {
		if d := zone.Distance(p); d < nearest {
			id = zone.ID
			nearest = d
		}
	}
	return id, nearest
}

func (o *Orchestrator) buffer(ctx context.Context, rec tracking.DeviceRecord) {
	if rec.LastLocation == nil {
		return
	}

	o.mu.Lock()
	o.pending[rec.DeviceID] = append(o.pending[rec.DeviceID], *rec.LastLocation)
	o.pendingN++
	full := o.pendingN >= o.maxBatchSize
	o.mu.Unlock()

	if full {
		o.flush(ctx)
	}
}

// flush writes all buffered position history in per-device batches.
func (o *Orchestrator) flush(ctx context.Context) {
	o.mu.Lock()
	pending := o.pending
	o.pending = make(map[string][]tracking.PositionSample)
	o.pendingN = 0
	o.mu.Unlock()

	for deviceID, samples := range pending {
		for chunk := range slices.Chunk(samples, o.maxBatchSize) {
			if err := o.store.AppendPositions(ctx, deviceID, chunk); err != nil {
				o.logger.Warn("storing position history failed",
					slog.String("deviceID", deviceID),
					slog.String("error", err.Error()))
			}
		}
	}
}
