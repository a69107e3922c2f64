package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_MissingDatabase(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "nope.sqlite")

	err := Run(context.Background(), config, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error = %v, want missing-database error", err)
	}
}

func TestRun_UnstatableDatabasePath(t *testing.T) {
	// a path routed through a regular file fails stat with ENOTDIR,
	// which must surface instead of being treated as present
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	config := NewConfig()
	config.DBPath = filepath.Join(file, "campus.sqlite")

	err := Run(context.Background(), config, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "inspecting database file") {
		t.Errorf("error = %v, want stat failure error", err)
	}
}
