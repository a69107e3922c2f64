package geofence

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/lakmal-w/campustrack/internal/geo"
)

func referenceCampus() *Campus {
	return NewBuilder().Build(DefaultOrigin, DefaultWidth, DefaultHeight, DefaultZones())
}

func TestBuild_ReferenceLayout(t *testing.T) {
	campus := referenceCampus()

	if len(campus.Zones) != 4 {
		t.Fatalf("expected 4 zones, got %d", len(campus.Zones))
	}

	for _, zone := range campus.Zones {
		if !zone.Ring.Closed() {
			t.Errorf("zone %s ring is not closed", zone.ID)
		}
		if len(zone.Ring) != 5 {
			t.Errorf("zone %s ring has %d vertices, want 5", zone.ID, len(zone.Ring))
		}
	}

	if height := campus.Bounds.MaxLat - campus.Bounds.MinLat; math.Abs(height-DefaultHeight) > 1e-12 {
		t.Errorf("bounds height = %g, want %g", height, DefaultHeight)
	}
}

func TestBuild_NoReferenceZonePairOverlaps(t *testing.T) {
	campus := referenceCampus()

	pairs := 0
	for i := 0; i < len(campus.Zones); i++ {
		for j := i + 1; j < len(campus.Zones); j++ {
			pairs++
			if zonesOverlap(campus.Zones[i], campus.Zones[j]) {
				t.Errorf("zones %s and %s overlap", campus.Zones[i].ID, campus.Zones[j].ID)
			}
		}
	}
	if pairs != 6 {
		t.Fatalf("expected 6 zone pairs, got %d", pairs)
	}
}

func TestBuild_OverlapIsAdvisoryOnly(t *testing.T) {
	var buf bytes.Buffer
	builder := NewBuilder(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	// Two zones on top of each other
	defs := []ZoneDef{
		{ID: "a", Name: "A", OffsetX: 0, OffsetY: 0, Width: 0.4, Height: 0.4},
		{ID: "b", Name: "B", OffsetX: 0.05, OffsetY: 0.05, Width: 0.4, Height: 0.4},
	}

	campus := builder.Build(DefaultOrigin, DefaultWidth, DefaultHeight, defs)

	if len(campus.Zones) != 2 {
		t.Fatalf("overlapping zones must still be built, got %d", len(campus.Zones))
	}
	if !strings.Contains(buf.String(), "zone polygons overlap") {
		t.Error("expected an overlap warning in the log")
	}
}

func TestBuild_InvalidOriginFallsBack(t *testing.T) {
	var buf bytes.Buffer
	builder := NewBuilder(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	campus := builder.Build(geo.Point{}, DefaultWidth, DefaultHeight, nil)

	if campus.Origin != DefaultOrigin {
		t.Errorf("origin = %+v, want default %+v", campus.Origin, DefaultOrigin)
	}
	if !strings.Contains(buf.String(), "invalid campus origin") {
		t.Error("expected a fallback warning in the log")
	}
}

func TestClassify(t *testing.T) {
	campus := referenceCampus()

	library := campus.Zone("library")
	if library == nil {
		t.Fatal("library zone missing")
	}

	tests := []struct {
		name     string
		point    geo.Point
		wantZone string
		want     Classification
	}{
		{"library centroid", library.BBox.Center(), "library", InZone},
		{"campus center unzoned", DefaultOrigin, "", OnCampusUnzoned},
		{"outside campus", geo.Point{Latitude: 6.9280, Longitude: 79.8612}, "", OutsideCampus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, class := campus.Classify(tt.point)
			if class != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.point, class, tt.want)
			}
			if tt.wantZone == "" && zone != nil {
				t.Errorf("Classify(%v) returned zone %s, want none", tt.point, zone.ID)
			}
			if tt.wantZone != "" && (zone == nil || zone.ID != tt.wantZone) {
				t.Errorf("Classify(%v) zone = %v, want %s", tt.point, zone, tt.wantZone)
			}
		})
	}
}

func TestClassify_EveryZoneCentroid(t *testing.T) {
	campus := referenceCampus()

	for _, zone := range campus.Zones {
		got, class := campus.Classify(zone.BBox.Center())
		if class != InZone || got == nil || got.ID != zone.ID {
			t.Errorf("centroid of %s classified as %v (%v)", zone.ID, class, got)
		}
	}
}
