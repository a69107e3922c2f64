package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/geofence"
	"github.com/lakmal-w/campustrack/internal/storage"
	"github.com/lakmal-w/campustrack/internal/tracking"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
		}
		return fmt.Errorf("inspecting database file '%s': %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderMap(ctx, store, config, logger)
}

func renderMap(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	// a zero origin fails geo validation and the builder falls back to
	// the default campus
	campus := geofence.NewBuilder(geofence.WithLogger(logger)).Build(
		geo.Point{Latitude: config.Latitude, Longitude: config.Longitude},
		0, 0,
		geofence.DefaultZones(),
	)

	devices, err := store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading device snapshot: %w", err)
	}
	if config.DeviceID != "" {
		devices = filterDevices(devices, config.DeviceID)
	}

	trails, err := readTrails(ctx, store, config, logger)
	if err != nil {
		return err
	}

	logger.Info("rendering campus map",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
		),
		slog.Int("devices", len(devices)),
		slog.Int("trails", len(trails)))

	renderer := NewRenderer(RenderConfig{
		Width:         config.Width,
		FontFile:      config.FontFile,
		NoAnnotations: config.NoAnnotations,
	})

	img, err := renderer.Render(campus, devices, trails)
	if err != nil {
		return fmt.Errorf("rendering campus map: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}

func readTrails(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (map[string][]tracking.PositionSample, error) {
	var opts []storage.ReaderOption
	var filters []any

	if config.DeviceID != "" {
		opts = append(opts, storage.WithDevice(config.DeviceID))
		filters = append(filters, slog.String("device", config.DeviceID))
	}

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	if config.Verbose {
		logger.Info("track reader configuration", filters...)
	}

	iter, err := store.ReadTrack(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("reading track: %w", err)
	}
	defer iter.Close()

	trails := make(map[string][]tracking.PositionSample)
	for iter.Next(ctx) {
		point := iter.Current()
		trails[point.DeviceID] = append(trails[point.DeviceID], point.Sample)
	}
	if err = iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating track: %w", err)
	}

	return trails, nil
}

func filterDevices(devices []tracking.DeviceRecord, deviceID string) []tracking.DeviceRecord {
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return []tracking.DeviceRecord{d}
		}
	}
	return nil
}
