package tracking

import (
	"fmt"
	"time"

	"github.com/lakmal-w/campustrack/internal/geo"
)

// Source identifies which kind of collector produced a position sample.
type Source string

const (
	SourceContinuousGPS   Source = "continuous-gps"
	SourcePeriodicGPS     Source = "periodic-gps"
	SourceNetworkEstimate Source = "network-estimate"
	SourceManual          Source = "manual"
)

// Quality is a coarse confidence grade derived from the reported
// accuracy of a sample.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityModerate  Quality = "moderate"
	QualityPoor      Quality = "poor"
	QualityUnknown   Quality = "unknown"
)

// QualityForAccuracy grades a reported horizontal accuracy in meters.
func QualityForAccuracy(accuracy float64) Quality {
	switch {
	case accuracy <= 0:
		return QualityUnknown
	case accuracy <= 10:
		return QualityExcellent
	case accuracy <= 50:
		return QualityGood
	case accuracy <= 200:
		return QualityModerate
	default:
		return QualityPoor
	}
}

// PositionSample is a single position fix from any source.
type PositionSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`           // meters
	Heading   *float64  `json:"heading,omitempty"`  // degrees, if the source reports it
	Speed     *float64  `json:"speed,omitempty"`    // m/s, if the source reports it
	Altitude  *float64  `json:"altitude,omitempty"` // meters, if the source reports it
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Quality   Quality   `json:"quality"`
}

// Point returns the sample coordinates as a geo.Point.
func (s *PositionSample) Point() geo.Point {
	return geo.Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Validate checks the coordinate invariants: in-range, not NaN and not
// the zero-zero sentinel.
func (s *PositionSample) Validate() error {
	if !s.Point().IsValid() {
		return &InvalidSampleError{Latitude: s.Latitude, Longitude: s.Longitude}
	}
	return nil
}

// InvalidSampleError reports a sample whose coordinates fail the basic
// invariants. The previously accepted sample stays in effect.
type InvalidSampleError struct {
	Latitude  float64
	Longitude float64
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("invalid position sample (%g, %g)", e.Latitude, e.Longitude)
}
