package taskwire

import (
	"sync"

	"github.com/rs/zerolog"
)

// Callback handles one dispatched event. Callbacks run synchronously with
// event receipt and must not block on further I/O.
type Callback func(*Event)

// Subscription identifies one registered callback so it can be removed when
// the view that registered it is torn down.
type Subscription struct {
	kind EventKind
	id   uint64
	fn   Callback
}

// Bus is a per-connection event dispatcher. It keeps a transient listener
// registry keyed by event kind and re-delivers each inbound event to all
// currently registered listeners in registration order. It never mutates
// application state itself. Events with no registered listeners are dropped.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[EventKind][]*Subscription
	log       *zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{
		listeners: make(map[EventKind][]*Subscription),
		log:       logger,
	}
}

// On registers a callback for an event kind and returns its subscription.
func (b *Bus) On(kind EventKind, fn Callback) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{kind: kind, id: b.nextID, fn: fn}
	b.listeners[kind] = append(b.listeners[kind], sub)
	return sub
}

// Off removes a previously registered subscription. Removing an unknown or
// already removed subscription is a no-op.
func (b *Bus) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			b.listeners[sub.kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every callback registered for the event's kind, in
// registration order. A panicking callback is recovered and logged and does
// not prevent remaining callbacks from running.
func (b *Bus) Dispatch(event *Event) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.listeners[event.Kind]))
	copy(subs, b.listeners[event.Kind])
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub *Subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("kind", string(event.Kind)).
				Msg("event listener panicked")
		}
	}()
	sub.fn(event)
}
