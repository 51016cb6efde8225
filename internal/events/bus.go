package events

import (
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives events for the actions it was subscribed to.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events synchronously: every handler registered for an
// action when Emit is called runs before Emit returns, in registration order.
//
// There is no package-level bus. The server builds one at startup and passes
// it to the components that need it; tests build their own.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Action][]subscription
	nextID  uint64
	journal *Journal
	now     func() time.Time
}

type Option func(*Bus)

// WithJournal records every emitted event in j.
func WithJournal(j *Journal) Option {
	return func(b *Bus) { b.journal = j }
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[Action][]subscription),
		now:  time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers h for every future emit of action. The returned func
// removes exactly this registration; calling it more than once is harmless.
// A subscriber that never calls it keeps receiving events.
func (b *Bus) Subscribe(action Action, h Handler) (func(), error) {
	if !action.Valid() {
		return nil, fmt.Errorf("subscribe %q: %w", action, ErrUnknownAction)
	}
	if h == nil {
		return nil, fmt.Errorf("subscribe %s: %w", action, ErrNilHandler)
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[action] = append(b.subs[action], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(action, id) })
	}, nil
}

// SubscribeMany registers h for each of the given actions, or for every
// action when none are given. On error nothing stays registered.
func (b *Bus) SubscribeMany(list []Action, h Handler) (func(), error) {
	if len(list) == 0 {
		list = actions
	}
	unsubs := make([]func(), 0, len(list))
	release := func() {
		for _, u := range unsubs {
			u()
		}
	}
	for _, a := range list {
		u, err := b.Subscribe(a, h)
		if err != nil {
			release()
			return nil, err
		}
		unsubs = append(unsubs, u)
	}
	return release, nil
}

// On subscribes fn to the action owned by payload type T. fn receives the
// payload already asserted to T; an event emitted without a payload yields
// the zero T.
func On[T Payload](b *Bus, fn func(Event, T)) (func(), error) {
	if reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Pointer {
		return nil, fmt.Errorf("subscribe %s: %w", reflect.TypeOf((*T)(nil)).Elem(), ErrPointerPayload)
	}
	var zero T
	return b.Subscribe(zero.Action(), func(evt Event) {
		p, _ := evt.Payload.(T)
		fn(evt, p)
	})
}

func (b *Bus) remove(action Action, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[action]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Build a fresh slice; dispatch loops hold their own copy anyway.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, action)
		} else {
			b.subs[action] = next
		}
		return
	}
}

// Emit stamps a new Event and hands it to the handlers registered for action
// at the time of the call. With no handlers it does nothing. A panicking
// handler is logged and skipped; the remaining handlers still run.
func (b *Bus) Emit(action Action, payload Payload, source string) error {
	if !action.Valid() {
		return fmt.Errorf("emit %q: %w", action, ErrUnknownAction)
	}
	if payload != nil && reflect.ValueOf(payload).Kind() == reflect.Pointer {
		return fmt.Errorf("emit %s with %T: %w", action, payload, ErrPointerPayload)
	}
	if payload != nil && payload.Action() != action {
		return fmt.Errorf("emit %s with %s payload: %w", action, payload.Action(), ErrPayloadMismatch)
	}
	evt := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Payload:   payload,
		Timestamp: b.now().UTC(),
		Source:    source,
	}

	b.mu.RLock()
	subs := b.subs[action]
	snapshot := make([]Handler, len(subs))
	for i, s := range subs {
		snapshot[i] = s.handler
	}
	b.mu.RUnlock()

	metricEmitted.WithLabelValues(string(action)).Inc()
	if b.journal != nil {
		b.journal.Append(evt)
	}
	for _, h := range snapshot {
		b.dispatch(evt, h)
	}
	return nil
}

func (b *Bus) dispatch(evt Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			metricHandlerPanics.WithLabelValues(string(evt.Action)).Inc()
			log.Printf("[events] handler for %s (source=%q) panicked: %v", evt.Action, evt.Source, r)
		}
	}()
	h(evt)
	metricDelivered.WithLabelValues(string(evt.Action)).Inc()
}

// RemoveAllListeners drops the registrations for the given actions, or for
// all actions when none are given. Meant for teardown and tests.
func (b *Bus) RemoveAllListeners(list ...Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(list) == 0 {
		b.subs = make(map[Action][]subscription)
		return
	}
	for _, a := range list {
		delete(b.subs, a)
	}
}

func (b *Bus) ListenerCount(action Action) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[action])
}
