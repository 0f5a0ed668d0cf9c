package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/feed"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"github.com/ceejayvjose/ict-repair-system/internal/ticketno"
	"gorm.io/gorm"
)

// createAttempts bounds the recompute-and-retry loop on ticket_number
// collisions. Each retry re-reads the day's numbers, so two attempts
// suffice unless submissions keep racing; three keeps the worst case
// bounded without ever surfacing a spurious failure under normal load.
const createAttempts = 3

type TicketService struct {
	db  *gorm.DB
	bus *feed.Bus
	brd *feed.Bridge
	now func() time.Time
}

func NewTicketService(db *gorm.DB, bus *feed.Bus, bridge *feed.Bridge) *TicketService {
	return &TicketService{db: db, bus: bus, brd: bridge, now: time.Now}
}

func (s *TicketService) publish(ctx context.Context, kind feed.Kind, number string) {
	ev := feed.Event{Table: feed.TableTickets, Kind: kind, TicketNumber: number, At: s.now()}
	s.bus.Publish(ev)
	s.brd.Publish(ctx, ev)
}

// numbersForDay reads the ticket numbers already allocated under prefix.
// This is a fresh store read, not a cache scan: allocation from a stale
// client cache is exactly the race the unique index has to catch, so the
// server narrows the window by computing from current state.
func (s *TicketService) numbersForDay(ctx context.Context, prefix string) ([]string, error) {
	var numbers []string
	err := s.db.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("ticket_number LIKE ?", prefix+"%").
		Pluck("ticket_number", &numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

// Allocate drives the recompute-and-retry loop for ticket numbers: read
// the day's numbers through list, pick the next free suffix, hand it to
// insert. When insert reports errs.ErrDuplicateNumber (a concurrent
// writer won the same sequence) the loop recomputes from fresh state and
// tries again, up to createAttempts times. Any other insert error aborts
// the loop unchanged.
func Allocate(ctx context.Context, day time.Time, list func(context.Context, string) ([]string, error), insert func(context.Context, string) error) (string, error) {
	prefix := ticketno.DatePrefix(day)
	for attempt := 0; attempt < createAttempts; attempt++ {
		numbers, err := list(ctx, prefix)
		if err != nil {
			return "", err
		}
		number, err := ticketno.Next(numbers, day)
		if err != nil {
			return "", err
		}
		err = insert(ctx, number)
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, errs.ErrDuplicateNumber) {
			return "", err
		}
	}
	return "", fmt.Errorf("allocate ticket number: %d attempts exhausted: %w", createAttempts, errs.ErrDuplicateNumber)
}

// CreateTicket allocates the next date-scoped ticket number and inserts
// t. On a unique-constraint collision (a concurrent submission won the
// same sequence) it recomputes from fresh state and retries.
func (s *TicketService) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if t.Status == "" {
		t.Status = model.TicketStatusEvaluation
	}
	if t.Priority == "" {
		t.Priority = model.PriorityNormal
	}
	number, err := Allocate(ctx, s.now(), s.numbersForDay, func(ctx context.Context, number string) error {
		t.ID = 0
		t.TicketNumber = number
		if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrDuplicateNumber
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, feed.KindInsert, number)
	return nil
}

// ListTickets returns every ticket, newest first.
func (s *TicketService) ListTickets(ctx context.Context) ([]model.Ticket, error) {
	var items []model.Ticket
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListFiltered narrows the collection the way the admin dashboard filters
// it. Keys are column predicates ("status = ?"), values their arguments.
func (s *TicketService) ListFiltered(ctx context.Context, filter map[string]interface{}) ([]model.Ticket, error) {
	var items []model.Ticket
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	for k, v := range filter {
		tx = tx.Where(k, v)
	}
	if err := tx.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *TicketService) GetTicketByNumber(ctx context.Context, number string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).Where("ticket_number = ?", number).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTicket applies a partial field update and returns the refreshed
// row. ticket_number and created_at are never part of changes; the
// handler whitelists columns.
func (s *TicketService) UpdateTicket(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&t).Updates(changes).Error; err != nil {
		return nil, err
	}
	// Re-fetch so the caller sees store-assigned values, not just the
	// fields it sent (gorm Updates does not refresh everything).
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, feed.KindUpdate, t.TicketNumber)
	return &t, nil
}

func (s *TicketService) DeleteTicket(ctx context.Context, id uint64) error {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrTicketNotFound
		}
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.Ticket{}, id).Error; err != nil {
		return err
	}
	s.publish(ctx, feed.KindDelete, t.TicketNumber)
	return nil
}
