package tracking

import "sync"

// EventType identifies what changed in the reconciled device map.
type EventType string

const (
	EventDeviceAdded   EventType = "device-added"
	EventDeviceUpdated EventType = "device-updated"
	EventDeviceRemoved EventType = "device-removed"
)

// Event carries one change to the reconciled device map.
type Event struct {
	Type   EventType
	Device DeviceRecord
}

// observable is an explicit subscribe/unsubscribe/publish store,
// injected into consumers instead of living as an ambient singleton.
type observable struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

func newObservable() *observable {
	return &observable{subs: make(map[int]func(Event))}
}

// subscribe registers fn and returns a Handle that unsubscribes it.
func (o *observable) subscribe(fn func(Event)) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.subs[id] = fn

	return &unsubscribeHandle{o: o, id: id}
}

func (o *observable) unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.subs, id)
}

func (o *observable) publish(ev Event) {
	o.mu.Lock()
	fns := make([]func(Event), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type unsubscribeHandle struct {
	once sync.Once
	o    *observable
	id   int
}

func (h *unsubscribeHandle) Stop() {
	h.once.Do(func() { h.o.unsubscribe(h.id) })
}
