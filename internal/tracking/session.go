package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sampling tiers, in degradation order. A session starts on the
// continuous high-accuracy tier and only ever moves down; there is no
// automatic promotion back up.
type Tier int

const (
	TierContinuous Tier = iota + 1
	TierPeriodic
	TierNetwork
)

func (t Tier) String() string {
	switch t {
	case TierContinuous:
		return "continuous"
	case TierPeriodic:
		return "periodic"
	case TierNetwork:
		return "network"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// SessionState is the lifecycle state of one device sampling session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionAcquiring
	SessionTracking
	SessionDegraded
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionAcquiring:
		return "acquiring"
	case SessionTracking:
		return "tracking"
	case SessionDegraded:
		return "degraded"
	case SessionStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Provider errors a session treats as a signal to downgrade to the
// next tier. Neither is fatal to the session or the process.
var (
	ErrProviderTimeout     = errors.New("positioning provider timed out")
	ErrProviderUnavailable = errors.New("positioning provider unavailable")
)

// WatchOptions configures a positioning subscription or one-shot fix.
type WatchOptions struct {
	HighAccuracy    bool
	Timeout         time.Duration
	MaxAge          time.Duration
	MinMoveDistance float64 // meters
}

// Provider delivers position samples: a push subscription for
// continuous tracking and a one-shot request for periodic probes.
type Provider interface {
	Watch(ctx context.Context, opts WatchOptions) (<-chan PositionSample, <-chan error, error)
	Once(ctx context.Context, opts WatchOptions) (PositionSample, error)
}

// NetworkLocator resolves a coarse position from network information.
// Implementations try an ordered provider list until one succeeds.
type NetworkLocator interface {
	Locate(ctx context.Context) (PositionSample, error)
}

// Session is the lifecycle of a single device's active sampling, from
// start to stop. All timers and subscriptions it owns are collected in
// a handle set so teardown is one StopAll; results arriving after
// teardown are detected by session identity and dropped.
type Session struct {
	deviceID string

	mu    sync.Mutex
	state SessionState
	tier  Tier

	handles handleSet
}

func newSession(deviceID string) *Session {
	return &Session{
		deviceID: deviceID,
		state:    SessionIdle,
		tier:     TierContinuous,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tier returns the current sampling tier.
func (s *Session) Tier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// DeviceID returns the device this session samples.
func (s *Session) DeviceID() string {
	return s.deviceID
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionStopped {
		return // stop is terminal
	}
	s.state = state
}

// downgrade moves the session to the given tier, clearing the handles
// of the tier it is leaving. Returns false if the session is stopped
// or already at or below the requested tier.
func (s *Session) downgrade(to Tier) bool {
	s.mu.Lock()
	if s.state == SessionStopped || s.tier >= to {
		s.mu.Unlock()
		return false
	}
	s.tier = to
	s.state = SessionDegraded
	s.mu.Unlock()

	s.handles.stopAll()
	return true
}

// addHandle registers a watch or timer handle with the session. A
// handle arriving after the session stopped is stopped immediately, so
// a stop racing a slow watch setup cannot leak the subscription.
func (s *Session) addHandle(h Handle) {
	s.mu.Lock()
	if s.state == SessionStopped {
		s.mu.Unlock()
		h.Stop()
		return
	}
	s.handles.add(h)
	s.mu.Unlock()
}

// stop releases every watch and timer the session owns. Idempotent.
func (s *Session) stop() {
	s.mu.Lock()
	if s.state == SessionStopped {
		s.mu.Unlock()
		return
	}
	s.state = SessionStopped
	s.mu.Unlock()

	s.handles.stopAll()
}

func (s *Session) stopped() bool {
	return s.State() == SessionStopped
}
