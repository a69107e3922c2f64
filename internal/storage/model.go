package storage

import (
	"database/sql"
	"time"
)

type deviceRow struct {
	DeviceID    string
	Kind        string
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	Accuracy    sql.NullFloat64
	Heading     sql.NullFloat64
	Speed       sql.NullFloat64
	Altitude    sql.NullFloat64
	Source      sql.NullString
	Quality     sql.NullString
	LastUpdated sql.NullTime
}

type positionRow struct {
	DeviceID  string
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Heading   sql.NullFloat64
	Speed     sql.NullFloat64
	Altitude  sql.NullFloat64
	Source    string
	Quality   string
}
