package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

// TrackPoint is one entry of a device's position history.
type TrackPoint struct {
	DeviceID string
	Sample   tracking.PositionSample
}

// ReaderOption configures a TrackReader with filtering criteria.
type ReaderOption func(*TrackReader)

// WithDevice restricts the reader to a single device's history.
func WithDevice(deviceID string) ReaderOption {
	return func(r *TrackReader) {
		r.deviceID = &deviceID
	}
}

// WithStartTime excludes points recorded before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *TrackReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes points recorded after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *TrackReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters. This is a
// convenience function equivalent to applying both WithStartTime and
// WithEndTime.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *TrackReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// TrackReader provides an iterator-based interface for reading position
// history in timestamp order. It should only be used from a single
// goroutine and must be closed after use.
type TrackReader struct {
	deviceID  *string
	startTime *time.Time
	endTime   *time.Time

	current TrackPoint
	rows    *sql.Rows
	err     error
}

func newTrackReader(ctx context.Context, db *sql.DB, opts ...ReaderOption) (*TrackReader, error) {
	tr := &TrackReader{}
	for _, opt := range opts {
		opt(tr)
	}
	if err := tr.init(ctx, db); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return tr, nil
}

func (tr *TrackReader) init(ctx context.Context, db *sql.DB) (err error) {
	if tr.startTime != nil && tr.endTime != nil && tr.startTime.After(*tr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", tr.startTime, tr.endTime)
	}

	var conds []string
	var args []any

	if tr.deviceID != nil {
		conds = append(conds, "device_id = ?")
		args = append(args, *tr.deviceID)
	}
	if tr.startTime != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, tr.startTime.UTC())
	}
	if tr.endTime != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, tr.endTime.UTC())
	}

	var sb strings.Builder

	sb.WriteString(selectPositionsSQL)
	if len(conds) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString("\nORDER BY timestamp, id")

	stmt, err := db.PrepareContext(ctx, sb.String())
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if tr.rows, err = stmt.QueryContext(ctx, args...); err != nil {
		return fmt.Errorf("querying positions: %w", err)
	}
	return nil
}

// Next advances the iterator and returns true if there is another track
// point to read, false when the iteration is complete or an error
// occurred.
func (tr *TrackReader) Next(ctx context.Context) bool {
	if tr.err != nil || tr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		tr.err = ctx.Err()
		return false
	default:
	}

	if !tr.rows.Next() {
		return false
	}

	var row positionRow
	if err := tr.rows.Scan(
		&row.DeviceID,
		&row.Timestamp,
		&row.Latitude,
		&row.Longitude,
		&row.Accuracy,
		&row.Heading,
		&row.Speed,
		&row.Altitude,
		&row.Source,
		&row.Quality,
	); err != nil {
		tr.err = fmt.Errorf("scanning position: %w", err)
		return false
	}

	tr.current.DeviceID, tr.current.Sample = fromPositionRow(row)
	return true
}

// Current returns the current track point in the iteration. If called
// after Next() returns false, the behavior is undefined.
func (tr *TrackReader) Current() TrackPoint {
	return tr.current
}

// Error returns any error that occurred during iteration.
func (tr *TrackReader) Error() error {
	if tr.err != nil {
		return tr.err
	}
	if tr.rows != nil {
		return tr.rows.Err()
	}
	return nil
}

// Close releases database resources associated with the reader. After
// Close is called, the reader should not be used.
func (tr *TrackReader) Close() error {
	if tr.rows != nil {
		err := tr.rows.Close()
		tr.rows = nil
		return err
	}
	return nil
}
