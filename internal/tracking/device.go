package tracking

import "time"

// Kind distinguishes devices that move from fixed installations.
type Kind string

const (
	KindMobile     Kind = "mobile"
	KindStationary Kind = "stationary"
)

// DisplayStatus is a derived freshness grade for rendering. Staleness
// never removes a device from the reconciled map; removal happens only
// through explicit teardown.
type DisplayStatus string

const (
	StatusFresh   DisplayStatus = "fresh"
	StatusStale   DisplayStatus = "stale"
	StatusOffline DisplayStatus = "offline"
)

const (
	staleAfter   = 2 * time.Minute
	offlineAfter = 15 * time.Minute
)

// DeviceRecord is the authoritative state of one tracked device.
// DeviceID is unique and stable for the session lifetime. Records are
// mutated only by the Reconciler.
type DeviceRecord struct {
	DeviceID     string          `json:"deviceID"`
	Kind         Kind            `json:"kind"`
	LastLocation *PositionSample `json:"lastLocation,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated"`

	session *Session
}

// Status derives the display freshness of the record at the given time.
func (d *DeviceRecord) Status(now time.Time) DisplayStatus {
	if d.LastLocation == nil || d.LastUpdated.IsZero() {
		return StatusOffline
	}
	age := now.Sub(d.LastUpdated)
	switch {
	case age <= staleAfter:
		return StatusFresh
	case age <= offlineAfter:
		return StatusStale
	default:
		return StatusOffline
	}
}

// HasSession reports whether the record owns an active sampling session.
func (d *DeviceRecord) HasSession() bool {
	return d.session != nil && d.session.State() != SessionStopped
}

func (d *DeviceRecord) clone() DeviceRecord {
	out := DeviceRecord{
		DeviceID:    d.DeviceID,
		Kind:        d.Kind,
		LastUpdated: d.LastUpdated,
	}
	if d.LastLocation != nil {
		loc := *d.LastLocation
		out.LastLocation = &loc
	}
	return out
}
