package model

import "time"

type TicketStatus string

const (
	TicketStatusEvaluation TicketStatus = "Evaluation"
	TicketStatusPending    TicketStatus = "Pending"
	TicketStatusScheduled  TicketStatus = "Scheduled"
	TicketStatusRepaired   TicketStatus = "Repaired"
)

// statusOrder is the triage sequence used when sorting tickets for the
// admin dashboard. Unknown statuses sort last.
var statusOrder = map[TicketStatus]int{
	TicketStatusEvaluation: 0,
	TicketStatusPending:    1,
	TicketStatusScheduled:  2,
	TicketStatusRepaired:   3,
}

// TriageRank returns the position of s in the status lifecycle.
func (s TicketStatus) TriageRank() int {
	if r, ok := statusOrder[s]; ok {
		return r
	}
	return len(statusOrder)
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s TicketStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

type RepairType string

const (
	RepairTypeDesktop  RepairType = "Desktop"
	RepairTypeLaptop   RepairType = "Laptop"
	RepairTypePrinter  RepairType = "Printer"
	RepairTypeInternet RepairType = "Internet"
)

func (r RepairType) Valid() bool {
	switch r {
	case RepairTypeDesktop, RepairTypeLaptop, RepairTypePrinter, RepairTypeInternet:
		return true
	}
	return false
}

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityRush   Priority = "RUSH"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityRush
}

type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderAdmin SenderType = "admin"
)

// Ticket is a repair request. TicketNumber is the human-facing identifier
// (YYYYMMDD date prefix + 5-digit zero-padded sequence) and is immutable
// once assigned; the unique index on it is what arbitrates concurrent
// submissions that computed the same next sequence.
type Ticket struct {
	ID            uint64       `gorm:"primaryKey" json:"id"`
	TicketNumber  string       `gorm:"type:varchar(13);uniqueIndex;not null" json:"ticket_number"`
	Office        string       `gorm:"type:text" json:"office"`
	Equipment     string       `gorm:"type:text" json:"equipment"`
	Problem       string       `gorm:"type:text" json:"problem"`
	Requestee     string       `gorm:"type:text" json:"requestee"`
	RepairType    RepairType   `gorm:"type:varchar(32);not null" json:"repair_type"`
	Priority      Priority     `gorm:"type:varchar(16);not null;default:NORMAL" json:"priority"`
	Status        TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Technician    string       `gorm:"type:text" json:"technician,omitempty"`
	ScheduledDate *time.Time   `gorm:"type:date" json:"scheduled_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminMessage is the single current broadcast shown to all users.
// Posting a new one replaces the previous one wholesale.
type AdminMessage struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage belongs to one ticket via TicketNumber (not the ticket row id,
// so a thread can be replayed from the tracking page without exposing row
// ids). Append-only, ordered by CreatedAt ascending.
type ChatMessage struct {
	ID           uint64     `gorm:"primaryKey" json:"id"`
	TicketNumber string     `gorm:"type:varchar(13);index:idx_chat_ticket_created;not null" json:"ticket_number"`
	SenderType   SenderType `gorm:"type:varchar(8);not null" json:"sender_type"`
	Message      string     `gorm:"type:text;not null" json:"message"`
	CreatedAt    time.Time  `gorm:"index:idx_chat_ticket_created" json:"created_at"`
}

// AdminAccount backs the admin login. Any authenticated account is an
// administrator; there is no finer-grained role model.
type AdminAccount struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
