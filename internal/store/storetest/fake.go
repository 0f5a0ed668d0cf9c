// Package storetest provides an in-memory store used by cache and
// handler tests. It enforces the same contracts the Postgres
// implementation does: unique ticket numbers, newest-first ticket
// listing, oldest-first chat replay, single current broadcast.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
)

type Fake struct {
	mu        sync.Mutex
	tickets   []model.Ticket
	chats     []model.ChatMessage
	broadcast *model.AdminMessage
	nextID    uint64

	// Error injection: when set, the corresponding reads/writes fail.
	ListErr   error
	CreateErr error

	// Clock feeds created_at; advances one second per use so ordering
	// by timestamp is deterministic.
	clock time.Time
}

func New() *Fake {
	return &Fake{clock: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (f *Fake) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *Fake) ListTickets(ctx context.Context) ([]model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]model.Ticket, len(f.tickets))
	copy(out, f.tickets)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) GetTicketByNumber(ctx context.Context, number string) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tickets {
		if f.tickets[i].TicketNumber == number {
			t := f.tickets[i]
			return &t, nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

func (f *Fake) CreateTicket(ctx context.Context, t *model.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	for i := range f.tickets {
		if f.tickets[i].TicketNumber == t.TicketNumber {
			return errs.ErrDuplicateNumber
		}
	}
	f.nextID++
	t.ID = f.nextID
	t.CreatedAt = f.tick()
	t.UpdatedAt = t.CreatedAt
	if t.Status == "" {
		t.Status = model.TicketStatusEvaluation
	}
	if t.Priority == "" {
		t.Priority = model.PriorityNormal
	}
	f.tickets = append(f.tickets, *t)
	return nil
}

func (f *Fake) UpdateTicket(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tickets {
		if f.tickets[i].ID != id {
			continue
		}
		t := &f.tickets[i]
		for k, v := range changes {
			switch k {
			case "status":
				t.Status = model.TicketStatus(asString(v))
			case "technician":
				t.Technician = asString(v)
			case "priority":
				t.Priority = model.Priority(asString(v))
			case "office":
				t.Office = asString(v)
			case "equipment":
				t.Equipment = asString(v)
			case "problem":
				t.Problem = asString(v)
			case "requestee":
				t.Requestee = asString(v)
			case "scheduled_date":
				if d, ok := v.(*time.Time); ok {
					t.ScheduledDate = d
				}
			}
		}
		t.UpdatedAt = f.tick()
		out := *t
		return &out, nil
	}
	return nil, errs.ErrTicketNotFound
}

func (f *Fake) DeleteTicket(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tickets {
		if f.tickets[i].ID == id {
			f.tickets = append(f.tickets[:i], f.tickets[i+1:]...)
			return nil
		}
	}
	return errs.ErrTicketNotFound
}

// ListFiltered mirrors the admin list filters ("status = ?" and
// friends) the gorm service supports.
func (f *Fake) ListFiltered(ctx context.Context, filter map[string]interface{}) ([]model.Ticket, error) {
	all, err := f.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Ticket
	for _, t := range all {
		match := true
		for k, v := range filter {
			want := asString(v)
			switch k {
			case "status = ?":
				match = match && string(t.Status) == want
			case "repair_type = ?":
				match = match && string(t.RepairType) == want
			case "priority = ?":
				match = match && string(t.Priority) == want
			}
		}
		if match {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *Fake) CurrentBroadcast(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return "", f.ListErr
	}
	if f.broadcast == nil {
		return "", nil
	}
	return f.broadcast.Message, nil
}

func (f *Fake) ReplaceBroadcast(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.broadcast = &model.AdminMessage{ID: f.nextID, Message: message, CreatedAt: f.tick()}
	return nil
}

func (f *Fake) ListChatMessages(ctx context.Context, ticketNumber string) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range f.chats {
		if m.TicketNumber == ticketNumber {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) AppendChatMessage(ctx context.Context, m *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	m.CreatedAt = f.tick()
	f.chats = append(f.chats, *m)
	return nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
