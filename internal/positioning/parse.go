package positioning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

// ParseFix parses one fix line of the form
//
//	timestamp,latitude,longitude,accuracy[,heading,speed,altitude]
//
// where timestamp is RFC3339, accuracy is meters and the trailing
// fields may be empty or absent when the source does not report them.
func ParseFix(line string) (tracking.PositionSample, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return tracking.PositionSample{}, fmt.Errorf("fix line has %d fields, want at least 4", len(fields))
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[0]))
	if err != nil {
		return tracking.PositionSample{}, fmt.Errorf("parsing timestamp: %w", err)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return tracking.PositionSample{}, fmt.Errorf("parsing latitude: %w", err)
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return tracking.PositionSample{}, fmt.Errorf("parsing longitude: %w", err)
	}

	accuracy, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return tracking.PositionSample{}, fmt.Errorf("parsing accuracy: %w", err)
	}

	sample := tracking.PositionSample{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  accuracy,
		Timestamp: ts,
		Quality:   tracking.QualityForAccuracy(accuracy),
	}

	if sample.Heading, err = optionalField(fields, 4, "heading"); err != nil {
		return tracking.PositionSample{}, err
	}
	if sample.Speed, err = optionalField(fields, 5, "speed"); err != nil {
		return tracking.PositionSample{}, err
	}
	if sample.Altitude, err = optionalField(fields, 6, "altitude"); err != nil {
		return tracking.PositionSample{}, err
	}

	if err = sample.Validate(); err != nil {
		return tracking.PositionSample{}, err
	}

	return sample, nil
}

func optionalField(fields []string, idx int, name string) (*float64, error) {
	if idx >= len(fields) {
		return nil, nil
	}

	raw := strings.TrimSpace(fields[idx])
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return &v, nil
}
