package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/geofence"
	"github.com/lakmal-w/campustrack/internal/locate"
	"github.com/lakmal-w/campustrack/internal/positioning"
	"github.com/lakmal-w/campustrack/internal/push"
	"github.com/lakmal-w/campustrack/internal/storage"
	"github.com/lakmal-w/campustrack/internal/tracking"
)

const (
	storageDir  = "data"
	storageFile = "campustrack.sqlite"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	campus := geofence.NewBuilder(geofence.WithLogger(logger)).Build(
		geo.Point{Latitude: config.Campus.Latitude, Longitude: config.Campus.Longitude},
		config.Campus.Width,
		config.Campus.Height,
		config.Campus.Zones,
	)

	provider, err := positioning.New(config.Positioning, positioning.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create positioning provider: %w", err)
	}

	channel, err := createChannel(ctx, &config.Push, logger)
	if err != nil {
		return fmt.Errorf("failed to create push channel: %w", err)
	}
	defer channel.Close()

	options := []func(*tracking.Reconciler){
		tracking.WithLogger(logger),
		tracking.WithFallbackPosition(campus.Origin),
	}
	if len(config.Locate.Endpoints) > 0 {
		chainOptions := []func(*locate.Chain){locate.WithLogger(logger)}
		if config.Locate.Timeout > 0 {
			chainOptions = append(chainOptions, locate.WithTimeout(config.Locate.Timeout))
		}
		options = append(options, tracking.WithNetworkLocator(locate.NewChain(config.Locate.Endpoints, chainOptions...)))
	}
	if config.Settings.ProbeInterval > 0 {
		options = append(options, tracking.WithProbeInterval(config.Settings.ProbeInterval))
	}
	if config.Settings.NetworkInterval > 0 {
		options = append(options, tracking.WithNetworkInterval(config.Settings.NetworkInterval))
	}

	reconciler := tracking.NewReconciler(provider, options...)

	orchestrator := NewOrchestrator(config, store, reconciler, campus, channel, logger)
	return orchestrator.Run(ctx)
}

func createChannel(ctx context.Context, config *PushConfig, logger *slog.Logger) (push.Channel, error) {
	if !config.Enabled {
		return push.Nop{}, nil
	}

	options := []push.RedisOption{
		push.WithRedisLogger(logger),
		push.WithPassword(config.Password),
		push.WithDB(config.DB),
	}
	if config.Channel != "" {
		options = append(options, push.WithChannelName(config.Channel))
	}

	channel, err := push.NewRedisChannel(ctx, config.Address, options...)
	if err != nil {
		return nil, fmt.Errorf("connecting push channel: %w", err)
	}
	return channel, nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	} else {
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("inspecting storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	return storage.NewSqliteStore(filepath.Join(dbPath, storageFile)), nil
}
