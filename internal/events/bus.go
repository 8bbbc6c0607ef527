// Package events broadcasts reload notifications to any number of
// subscribers without letting a slow subscriber hold up the publisher.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// DefaultBacklog is the per-subscriber queue length.
const DefaultBacklog = 500

// ErrClosed is returned by Recv once the subscription has been closed.
var ErrClosed = errors.New("subscription closed")

// UpdateEvent is a notification published on the bus. The set of
// implementations is closed to this package.
type UpdateEvent interface {
	Kind() string
	isUpdateEvent()
}

// Reload tells subscribers to re-fetch whatever they are showing.
type Reload struct{}

// Kind implements UpdateEvent.
func (Reload) Kind() string { return "reload" }

func (Reload) isUpdateEvent() {}

// Delivery is one item received by a subscriber. When Lagged is set the
// subscriber missed Missed events and Event is a synthetic Reload.
type Delivery struct {
	Event  UpdateEvent
	Lagged bool
	Missed int
}

// Bus is a broadcast channel with a bounded backlog per subscriber.
type Bus struct {
	backlog int

	mutex sync.RWMutex
	subs  map[uuid.UUID]*Subscription
}

// NewBus creates a bus. backlog below 1 selects DefaultBacklog.
func NewBus(backlog int) *Bus {
	if backlog < 1 {
		backlog = DefaultBacklog
	}
	return &Bus{
		backlog: backlog,
		subs:    make(map[uuid.UUID]*Subscription),
	}
}

// Publish delivers ev to every current subscriber. It never blocks; a
// subscriber whose backlog is full loses its oldest event and is marked as
// lagged. With no subscribers Publish does nothing.
func (b *Bus) Publish(ev UpdateEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, sub := range b.subs {
		sub.push(ev)
	}
}

// Subscribe registers a new subscriber. Only events published after this
// call are delivered.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		bus:    b,
		queue:  make([]UpdateEvent, b.backlog),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mutex.Lock()
	b.subs[sub.id] = sub
	b.mutex.Unlock()

	return sub
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.subs)
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mutex.Lock()
	delete(b.subs, id)
	b.mutex.Unlock()
}

// Subscription is one subscriber's view of the bus. Its queue is a ring
// buffer of fixed capacity.
type Subscription struct {
	id  uuid.UUID
	bus *Bus

	mutex  sync.Mutex
	queue  []UpdateEvent
	head   int
	size   int
	missed int
	closed bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// ID identifies the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

func (s *Subscription) push(ev UpdateEvent) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}

	if s.size == len(s.queue) {
		// drop the oldest
		s.queue[s.head] = nil
		s.head = (s.head + 1) % len(s.queue)
		s.size--
		s.missed++
	}
	s.queue[(s.head+s.size)%len(s.queue)] = ev
	s.size++
	s.mutex.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever deliveries may be pending. Drain with Next
// after each signal.
func (s *Subscription) Ready() <-chan struct{} {
	return s.notify
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Next pops the next delivery without blocking. A pending lag is reported
// before any queued event.
func (s *Subscription) Next() (Delivery, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.missed > 0 {
		d := Delivery{Event: Reload{}, Lagged: true, Missed: s.missed}
		s.missed = 0
		return d, true
	}
	if s.size == 0 {
		return Delivery{}, false
	}

	ev := s.queue[s.head]
	s.queue[s.head] = nil
	s.head = (s.head + 1) % len(s.queue)
	s.size--

	return Delivery{Event: ev}, true
}

// Recv blocks until a delivery is available, ctx is done, or the
// subscription is closed.
func (s *Subscription) Recv(ctx context.Context) (Delivery, error) {
	for {
		if d, ok := s.Next(); ok {
			return d, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			return Delivery{}, ErrClosed
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
}

// Close unregisters the subscription. Pending deliveries are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s.id)

		s.mutex.Lock()
		s.closed = true
		s.size = 0
		s.missed = 0
		s.mutex.Unlock()

		close(s.done)
	})
}
