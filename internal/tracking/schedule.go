package tracking

import (
	"context"
	"sync"
	"time"
)

// Handle is a cancellable unit of scheduled work: a repeating timer or
// an event subscription. Stop is idempotent.
type Handle interface {
	Stop()
}

// repeatEvery runs fn on a fixed interval until the handle is stopped.
func repeatEvery(interval time.Duration, fn func()) Handle {
	h := &timerHandle{done: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-h.done:
				return
			}
		}
	}()

	return h
}

type timerHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *timerHandle) Stop() {
	h.once.Do(func() { close(h.done) })
}

// subscription wraps a context cancel so that an event subscription can
// be stopped alongside timers.
func subscription(cancel context.CancelFunc) Handle {
	return &subscriptionHandle{cancel: cancel}
}

type subscriptionHandle struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (h *subscriptionHandle) Stop() {
	h.once.Do(h.cancel)
}

// handleSet collects every timer and subscription a session owns so
// teardown is a single StopAll.
type handleSet struct {
	mu      sync.Mutex
	handles []Handle
}

func (s *handleSet) add(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, h)
}

func (s *handleSet) stopAll() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}
