// Package store declares the persistence capabilities the rest of the
// service consumes. The gorm-backed implementation lives in
// internal/service; tests substitute in-memory fakes.
package store

import (
	"context"

	"github.com/ceejayvjose/ict-repair-system/internal/model"
)

// TicketStore is the ticket table capability. ListTickets returns the
// full collection ordered by created_at descending. CreateTicket owns
// ticket-number allocation: the implementation computes the next
// date-scoped number and, when the unique constraint rejects it because
// a concurrent submission won the same sequence, recomputes and retries;
// errs.ErrDuplicateNumber surfaces only when retries are exhausted.
// Lookups that miss return errs.ErrTicketNotFound.
type TicketStore interface {
	ListTickets(ctx context.Context) ([]model.Ticket, error)
	GetTicketByNumber(ctx context.Context, number string) (*model.Ticket, error)
	CreateTicket(ctx context.Context, t *model.Ticket) error
	UpdateTicket(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error)
	DeleteTicket(ctx context.Context, id uint64) error
}

// BroadcastStore holds the single current admin broadcast. Replace
// discards whatever was there before; Current returns the empty string
// when nothing has been posted yet.
type BroadcastStore interface {
	CurrentBroadcast(ctx context.Context) (string, error)
	ReplaceBroadcast(ctx context.Context, message string) error
}

// ChatStore is the per-ticket conversation log, keyed by ticket_number.
// Messages are append-only and listed in created_at ascending order.
type ChatStore interface {
	ListChatMessages(ctx context.Context, ticketNumber string) ([]model.ChatMessage, error)
	AppendChatMessage(ctx context.Context, m *model.ChatMessage) error
}
