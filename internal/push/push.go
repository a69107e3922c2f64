// Package push propagates device state changes to interested peers.
// The tracker publishes every reconciled change; remote trackers apply
// received messages through Reconciler.ApplyPush.
package push

import (
	"context"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

// Channel delivers device state changes to remote subscribers and
// receives theirs in return.
type Channel interface {
	// Publish sends a single device event. Publish must not block on
	// slow subscribers.
	Publish(ctx context.Context, event tracking.Event) error

	// Subscribe starts delivering remote events to fn until ctx is
	// cancelled. Events published by this channel instance are not
	// delivered back.
	Subscribe(ctx context.Context, fn func(tracking.Event)) error

	// Close releases the underlying connection.
	Close() error
}

// Nop is a Channel that discards everything. It is used when push
// propagation is disabled in configuration.
type Nop struct{}

func (Nop) Publish(context.Context, tracking.Event) error         { return nil }
func (Nop) Subscribe(context.Context, func(tracking.Event)) error { return nil }
func (Nop) Close() error                                          { return nil }
