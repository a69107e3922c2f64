package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
  snapshotInterval: 10s
campus:
  latitude: 6.9271
  longitude: 79.8612
  width: 0.00018
  height: 0.00018
devices:
  - id: phone-1
    kind: mobile
    tier: continuous
    enabled: true
  - id: beacon-3
    kind: stationary
    tier: network
    enabled: false
positioning:
  command: gpspipe
  args: ["-w"]
locate:
  endpoints:
    - https://location.example.com/v1/locate
push:
  enabled: false
storage:
  dataDirectory: data
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", config.Settings.LogLevel)
	}
	if config.Settings.SnapshotInterval != 10*time.Second {
		t.Errorf("SnapshotInterval = %s, want 10s", config.Settings.SnapshotInterval)
	}
	if len(config.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(config.Devices))
	}
	if config.Devices[0].ID != "phone-1" || !config.Devices[0].Enabled {
		t.Errorf("Devices[0] = %+v, want enabled phone-1", config.Devices[0])
	}
	if config.Positioning.Command != "gpspipe" {
		t.Errorf("Positioning.Command = %s, want gpspipe", config.Positioning.Command)
	}
	if len(config.Campus.Zones) == 0 {
		t.Error("Campus.Zones is empty, want default zones applied")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
devices:
  - id: phone-1
    enabled: true
positioning:
  command: gpspipe
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Settings.SnapshotInterval != 30*time.Second {
		t.Errorf("SnapshotInterval = %s, want default 30s", config.Settings.SnapshotInterval)
	}
	if len(config.Campus.Zones) != 4 {
		t.Errorf("len(Campus.Zones) = %d, want 4 default zones", len(config.Campus.Zones))
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing device id",
			content: `
devices:
  - kind: mobile
    enabled: true
positioning:
  command: gpspipe
`,
		},
		{
			name: "unknown device kind",
			content: `
devices:
  - id: phone-1
    kind: drone
positioning:
  command: gpspipe
`,
		},
		{
			name: "unknown tier",
			content: `
devices:
  - id: phone-1
    tier: turbo
positioning:
  command: gpspipe
`,
		},
		{
			name: "bad locate endpoint",
			content: `
devices:
  - id: phone-1
positioning:
  command: gpspipe
locate:
  endpoints:
    - not a url
`,
		},
		{
			name: "unknown log level",
			content: `
settings:
  logLevel: loud
devices:
  - id: phone-1
positioning:
  command: gpspipe
`,
		},
		{
			name:    "not yaml",
			content: "{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("LoadConfig() succeeded, want error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("LoadConfig() succeeded for a missing file, want error")
	}
}

func TestSettingsSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := (Settings{LogLevel: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %s, want %s", tt.level, got, tt.want)
		}
	}
}
