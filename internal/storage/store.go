package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

// SqliteStore persists reconciled device state and accepted position
// history. A single store owns two lazily opened connections: a WAL
// write connection used by the tracker and a read-only connection used
// by snapshot restore and track readers.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// The schema is initialized on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// UpsertDevice writes the record, replacing an existing row only when
// the incoming last_updated timestamp is strictly newer. Stale writes
// are silently ignored, which keeps replayed snapshots harmless.
func (s *SqliteStore) UpsertDevice(ctx context.Context, rec tracking.DeviceRecord) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertDeviceSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	row := toDeviceRow(rec)
	if _, err = stmt.ExecContext(
		ctx,
		row.DeviceID,
		row.Kind,
		row.Latitude,
		row.Longitude,
		row.Accuracy,
		row.Heading,
		row.Speed,
		row.Altitude,
		row.Source,
		row.Quality,
		row.LastUpdated,
	); err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// Snapshot loads every persisted device record, ordered by device ID.
func (s *SqliteStore) Snapshot(ctx context.Context) (records []tracking.DeviceRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row deviceRow
		if err = rows.Scan(
			&row.DeviceID,
			&row.Kind,
			&row.Latitude,
			&row.Longitude,
			&row.Accuracy,
			&row.Heading,
			&row.Speed,
			&row.Altitude,
			&row.Source,
			&row.Quality,
			&row.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		records = append(records, fromDeviceRow(row))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// RemoveDevice deletes the persisted record for the device, if any.
func (s *SqliteStore) RemoveDevice(ctx context.Context, deviceID string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, deleteDeviceSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, deviceID); err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// AppendPositions inserts accepted samples into the position history in
// a single batch transaction.
func (s *SqliteStore) AppendPositions(ctx context.Context, deviceID string, samples []tracking.PositionSample) (err error) {
	if len(samples) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(samples)*10)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder

	sb.WriteString(insertPositionsSQL)

	for i, sample := range samples {
		row := toPositionRow(deviceID, sample)
		values = append(values,
			row.DeviceID,
			row.Timestamp,
			row.Latitude,
			row.Longitude,
			row.Accuracy,
			row.Heading,
			row.Speed,
			row.Altitude,
			row.Source,
			row.Quality,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting positions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ReadTrack creates a TrackReader over the position history, applying
// optional device and time range filters. The reader must be closed
// after use.
func (s *SqliteStore) ReadTrack(ctx context.Context, opts ...ReaderOption) (*TrackReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newTrackReader(ctx, db, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
