// Package session keeps a process-local snapshot of ticket state and the
// current admin broadcast, synchronized with the store through the change
// feed. Consumers read the snapshot; they never query the store directly
// on render paths.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/feed"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"github.com/ceejayvjose/ict-repair-system/internal/store"
	"github.com/ceejayvjose/ict-repair-system/internal/ticketno"
)

const refreshTimeout = 10 * time.Second

// Cache is the session-scoped view of tickets and the admin broadcast.
//
// Refreshes are wholesale: any matching feed event, and every local
// write, re-fetches the full collection and swaps the snapshot in one
// step. A reader sees either the old snapshot or the new one, never a
// partial interleaving, and a refresh that arrives twice (once from the
// write path, once from the feed) lands on the same state both times.
type Cache struct {
	tickets    store.TicketStore
	broadcasts store.BroadcastStore
	bus        *feed.Bus

	mu        sync.RWMutex
	snapshot  []model.Ticket
	broadcast string

	// Refresh sequencing: each refresh takes a sequence number before
	// its fetch, and only swaps if no later-started refresh has already
	// landed. Keeps a slow in-flight fetch from clobbering a newer
	// snapshot.
	ticketSeq        uint64
	ticketApplied    uint64
	broadcastSeq     uint64
	broadcastApplied uint64

	subs    []*feed.Subscription
	closeMu sync.Mutex
	closed  bool
}

func New(tickets store.TicketStore, broadcasts store.BroadcastStore, bus *feed.Bus) *Cache {
	return &Cache{tickets: tickets, broadcasts: broadcasts, bus: bus}
}

// Start loads the initial snapshot and subscribes to the feed: all event
// kinds on tickets, inserts on admin_messages. Callers must Close the
// cache when the session ends or the subscriptions leak.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.RefreshTickets(ctx); err != nil {
		return err
	}
	if err := c.RefreshBroadcast(ctx); err != nil {
		return err
	}
	c.subs = append(c.subs,
		c.bus.Subscribe(feed.Filter{Table: feed.TableTickets}, func(feed.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			_ = c.RefreshTickets(ctx)
		}),
		c.bus.Subscribe(feed.Filter{Table: feed.TableAdminMessages, Kinds: []feed.Kind{feed.KindInsert}}, func(feed.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			_ = c.RefreshBroadcast(ctx)
		}),
	)
	return nil
}

// RefreshTickets re-fetches the full ticket collection (created_at desc)
// and atomically replaces the snapshot. On fetch failure the previous
// snapshot stays intact and the error is returned to the caller. A
// refresh that started before an already-applied one is discarded so a
// slow fetch never rolls the snapshot back.
func (c *Cache) RefreshTickets(ctx context.Context) error {
	c.mu.Lock()
	c.ticketSeq++
	seq := c.ticketSeq
	c.mu.Unlock()

	items, err := c.tickets.ListTickets(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.ticketApplied {
		return nil
	}
	c.ticketApplied = seq
	c.snapshot = items
	return nil
}

// RefreshBroadcast re-fetches the current admin message, with the same
// stale-fetch discard as RefreshTickets.
func (c *Cache) RefreshBroadcast(ctx context.Context) error {
	c.mu.Lock()
	c.broadcastSeq++
	seq := c.broadcastSeq
	c.mu.Unlock()

	msg, err := c.broadcasts.CurrentBroadcast(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.broadcastApplied {
		return nil
	}
	c.broadcastApplied = seq
	c.broadcast = msg
	return nil
}

// Tickets returns a copy of the snapshot, newest first.
func (c *Cache) Tickets() []model.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Ticket, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

// Broadcast returns the cached admin message, "" when none.
func (c *Cache) Broadcast() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broadcast
}

// Track looks a ticket number up in the snapshot. A miss is
// errs.ErrTicketNotFound, distinct from a store failure: the cache is
// already loaded, the number just is not in it.
func (c *Cache) Track(number string) (*model.Ticket, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, errs.ErrTicketNotFound
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.snapshot {
		if c.snapshot[i].TicketNumber == number {
			t := c.snapshot[i]
			return &t, nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

// NextTicketNumber previews the next number for day from the cached
// collection. The preview can be stale relative to concurrent
// submissions; the store's unique constraint plus the create retry loop
// are what make the final allocation collision-free.
func (c *Cache) NextTicketNumber(day time.Time) (string, error) {
	c.mu.RLock()
	numbers := make([]string, len(c.snapshot))
	for i := range c.snapshot {
		numbers[i] = c.snapshot[i].TicketNumber
	}
	c.mu.RUnlock()
	return ticketno.Next(numbers, day)
}

// Close releases the feed subscriptions. Safe to call more than once.
func (c *Cache) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, s := range c.subs {
		s.Close()
	}
	c.subs = nil
}
