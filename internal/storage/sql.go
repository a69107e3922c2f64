package storage

import (
	_ "embed"
)

const (
	upsertDeviceSQL = `
INSERT INTO devices (device_id,
                     kind,
                     latitude,
                     longitude,
                     accuracy,
                     heading,
                     speed,
                     altitude,
                     source,
                     quality,
                     last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (device_id) DO UPDATE SET kind         = excluded.kind,
                                      latitude     = excluded.latitude,
                                      longitude    = excluded.longitude,
                                      accuracy     = excluded.accuracy,
                                      heading      = excluded.heading,
                                      speed        = excluded.speed,
                                      altitude     = excluded.altitude,
                                      source       = excluded.source,
                                      quality      = excluded.quality,
                                      last_updated = excluded.last_updated
WHERE devices.last_updated IS NULL
   OR excluded.last_updated > devices.last_updated`

	selectDevicesSQL = `
SELECT device_id,
       kind,
       latitude,
       longitude,
       accuracy,
       heading,
       speed,
       altitude,
       source,
       quality,
       last_updated
FROM devices
ORDER BY device_id`

	deleteDeviceSQL = `
DELETE
FROM devices
WHERE device_id = ?`

	insertPositionsSQL = `
INSERT INTO positions (device_id,
                       timestamp,
                       latitude,
                       longitude,
                       accuracy,
                       heading,
                       speed,
                       altitude,
                       source,
                       quality)
VALUES `

	selectPositionsSQL = `
SELECT device_id,
       timestamp,
       latitude,
       longitude,
       accuracy,
       heading,
       speed,
       altitude,
       source,
       quality
FROM positions`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_positions_device_time ON positions (device_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_positions_time ON positions (timestamp);`
)

//go:embed schema.sql
var schemaSQL string
