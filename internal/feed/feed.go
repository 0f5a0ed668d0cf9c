// Package feed is the change-notification bus: every committed store
// mutation is published as an Event, and any number of subscribers (the
// session cache, websocket clients, an optional Redis bridge) react to it.
// Delivery is at-most-once and unordered across subscribers; consumers must
// treat a notification as "something changed, re-fetch", never as the new
// state itself.
package feed

import (
	"sync"
	"time"
)

type Table string

const (
	TableTickets       Table = "tickets"
	TableAdminMessages Table = "admin_messages"
	TableChatMessages  Table = "chat_messages"
)

type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// Event describes one committed mutation. TicketNumber is set for ticket
// and chat events so chat subscribers can filter to a single conversation.
type Event struct {
	Table        Table     `json:"table"`
	Kind         Kind      `json:"kind"`
	TicketNumber string    `json:"ticket_number,omitempty"`
	At           time.Time `json:"at"`
}

// Filter selects which events a subscription receives. Empty Kinds means
// all kinds; empty TicketNumber means all tickets.
type Filter struct {
	Table        Table
	Kinds        []Kind
	TicketNumber string
}

func (f Filter) matches(ev Event) bool {
	if ev.Table != f.Table {
		return false
	}
	if f.TicketNumber != "" && ev.TicketNumber != f.TicketNumber {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == ev.Kind {
			return true
		}
	}
	return false
}

type Handler func(Event)

// Subscription is a live registration on the bus. Close releases it;
// closing twice is safe. A subscription that is never closed leaks a
// goroutine, so every subscriber path must pair Subscribe with Close.
type Subscription struct {
	filter  Filter
	ch      chan Event
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	bus     *Bus
}

// Close unregisters the subscription and stops its delivery goroutine.
func (s *Subscription) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.remove(s)
	close(s.done)
}

// Bus fans events out to subscriptions. Publish never blocks: each
// subscription has a small buffer and drops events when the buffer is
// full. Dropping is safe because consumers re-fetch full state on any
// event, so one surviving notification is as good as ten.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers fn for events matching filter. fn runs on a
// dedicated goroutine per subscription, so handlers may call back into
// the bus or the store without deadlocking a publisher.
func (b *Bus) Subscribe(filter Filter, fn Handler) *Subscription {
	s := &Subscription{
		filter: filter,
		ch:     make(chan Event, 16),
		done:   make(chan struct{}),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-s.ch:
				fn(ev)
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// Publish delivers ev to every matching subscription.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.filter.matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// Subscriber is behind; it will re-fetch on the next event.
		}
	}
}

// SubscriberCount reports live subscriptions, used by tests and the
// websocket hub's teardown checks.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}
