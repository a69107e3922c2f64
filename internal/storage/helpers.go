package storage

import (
	"database/sql"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toDeviceRow(rec tracking.DeviceRecord) *deviceRow {
	row := deviceRow{
		DeviceID: rec.DeviceID,
		Kind:     string(rec.Kind),
	}
	if !rec.LastUpdated.IsZero() {
		row.LastUpdated.Valid = true
		row.LastUpdated.Time = rec.LastUpdated.UTC()
	}
	if loc := rec.LastLocation; loc != nil {
		row.Latitude = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
		row.Longitude = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		row.Accuracy = sql.NullFloat64{Float64: loc.Accuracy, Valid: true}
		row.Heading = toNullFloat64(loc.Heading)
		row.Speed = toNullFloat64(loc.Speed)
		row.Altitude = toNullFloat64(loc.Altitude)
		row.Source = sql.NullString{String: string(loc.Source), Valid: true}
		row.Quality = sql.NullString{String: string(loc.Quality), Valid: true}
	}
	return &row
}

func fromDeviceRow(row deviceRow) tracking.DeviceRecord {
	rec := tracking.DeviceRecord{
		DeviceID: row.DeviceID,
		Kind:     tracking.Kind(row.Kind),
	}
	if row.LastUpdated.Valid {
		rec.LastUpdated = row.LastUpdated.Time
	}
	if row.Latitude.Valid && row.Longitude.Valid {
		sample := tracking.PositionSample{
			Latitude:  row.Latitude.Float64,
			Longitude: row.Longitude.Float64,
			Accuracy:  row.Accuracy.Float64,
			Heading:   fromNullFloat64(row.Heading),
			Speed:     fromNullFloat64(row.Speed),
			Altitude:  fromNullFloat64(row.Altitude),
			Timestamp: rec.LastUpdated,
			Source:    tracking.Source(row.Source.String),
			Quality:   tracking.Quality(row.Quality.String),
		}
		rec.LastLocation = &sample
	}
	return rec
}

func toPositionRow(deviceID string, sample tracking.PositionSample) *positionRow {
	return &positionRow{
		DeviceID:  deviceID,
		Timestamp: sample.Timestamp.UTC(),
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
		Heading:   toNullFloat64(sample.Heading),
		Speed:     toNullFloat64(sample.Speed),
		Altitude:  toNullFloat64(sample.Altitude),
		Source:    string(sample.Source),
		Quality:   string(sample.Quality),
	}
}

func fromPositionRow(row positionRow) (string, tracking.PositionSample) {
	return row.DeviceID, tracking.PositionSample{
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Accuracy:  row.Accuracy,
		Heading:   fromNullFloat64(row.Heading),
		Speed:     fromNullFloat64(row.Speed),
		Altitude:  fromNullFloat64(row.Altitude),
		Timestamp: row.Timestamp,
		Source:    tracking.Source(row.Source),
		Quality:   tracking.Quality(row.Quality),
	}
}

func toNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat64(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
