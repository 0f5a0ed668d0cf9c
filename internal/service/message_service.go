package service

import (
	"context"
	"time"

	"github.com/ceejayvjose/ict-repair-system/internal/feed"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"gorm.io/gorm"
)

// MessageService persists the admin broadcast and per-ticket chat logs.
type MessageService struct {
	db  *gorm.DB
	bus *feed.Bus
	brd *feed.Bridge
	now func() time.Time
}

func NewMessageService(db *gorm.DB, bus *feed.Bus, bridge *feed.Bridge) *MessageService {
	return &MessageService{db: db, bus: bus, brd: bridge, now: time.Now}
}

func (s *MessageService) publish(ctx context.Context, table feed.Table, kind feed.Kind, number string) {
	ev := feed.Event{Table: table, Kind: kind, TicketNumber: number, At: s.now()}
	s.bus.Publish(ev)
	s.brd.Publish(ctx, ev)
}

// CurrentBroadcast returns the latest admin message, or "" when none has
// been posted.
func (s *MessageService) CurrentBroadcast(ctx context.Context) (string, error) {
	var rows []model.AdminMessage
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(1).Find(&rows).Error
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Message, nil
}

// ReplaceBroadcast discards any previous broadcast and stores message as
// the single current one. Delete-all-then-insert runs in one transaction
// so readers never observe an empty table between the two steps.
func (s *MessageService) ReplaceBroadcast(ctx context.Context, message string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.AdminMessage{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.AdminMessage{Message: message}).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, feed.TableAdminMessages, feed.KindInsert, "")
	return nil
}

// ListChatMessages replays one ticket's conversation, oldest first.
func (s *MessageService) ListChatMessages(ctx context.Context, ticketNumber string) ([]model.ChatMessage, error) {
	var items []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("ticket_number = ?", ticketNumber).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// AppendChatMessage adds one message to a ticket's log. Messages are
// never updated or deleted afterwards.
func (s *MessageService) AppendChatMessage(ctx context.Context, m *model.ChatMessage) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	s.publish(ctx, feed.TableChatMessages, feed.KindInsert, m.TicketNumber)
	return nil
}
