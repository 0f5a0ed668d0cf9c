package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"github.com/ceejayvjose/ict-repair-system/internal/session"
	"github.com/ceejayvjose/ict-repair-system/internal/store"
	"github.com/ceejayvjose/ict-repair-system/internal/verify"
)

// TicketUpdater is the admin-side mutation surface; the gorm
// TicketService satisfies it alongside store.TicketStore.
type TicketUpdater interface {
	UpdateTicket(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error)
	DeleteTicket(ctx context.Context, id uint64) error
	ListFiltered(ctx context.Context, filter map[string]interface{}) ([]model.Ticket, error)
}

type TicketHandler struct {
	tickets store.TicketStore
	updater TicketUpdater
	cache   *session.Cache
	gate    *verify.Gate
}

func NewTicketHandler(tickets store.TicketStore, updater TicketUpdater, cache *session.Cache, gate *verify.Gate) *TicketHandler {
	return &TicketHandler{tickets: tickets, updater: updater, cache: cache, gate: gate}
}

type submitTicketRequest struct {
	Office           string `json:"office" binding:"required"`
	RepairType       string `json:"repair_type" binding:"required"`
	Equipment        string `json:"equipment" binding:"required"`
	Problem          string `json:"problem" binding:"required"`
	Requestee        string `json:"requestee" binding:"required"`
	Priority         string `json:"priority"`
	VerificationID   string `json:"verification_id" binding:"required"`
	VerificationCode string `json:"verification_code"`
}

// Submit creates a ticket from a public submission. The verification
// check runs before anything touches the store; a wrong code blocks the
// submission with no state change.
func (h *TicketHandler) Submit(c *gin.Context) {
	var req submitTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field"})
		return
	}
	if err := h.gate.Check(req.VerificationID, req.VerificationCode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter the correct 4-digit verification code."})
		return
	}
	if !model.RepairType(req.RepairType).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown repair type"})
		return
	}
	priority := model.Priority(req.Priority)
	if req.Priority == "" {
		priority = model.PriorityNormal
	} else if !priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority"})
		return
	}

	ticket := &model.Ticket{
		Office:     req.Office,
		Equipment:  req.Equipment,
		Problem:    req.Problem,
		Requestee:  req.Requestee,
		RepairType: model.RepairType(req.RepairType),
		Priority:   priority,
		Status:     model.TicketStatusEvaluation,
	}
	if err := h.tickets.CreateTicket(c.Request.Context(), ticket); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Post-write refresh; the feed notification will trigger the same
	// refresh again, which is harmless.
	_ = h.cache.RefreshTickets(c.Request.Context())
	c.JSON(http.StatusCreated, ticket)
}

// Track resolves a ticket number from the session cache. A miss is a
// 404 with a "not found" shape, distinct from a store failure.
func (h *TicketHandler) Track(c *gin.Context) {
	t, err := h.cache.Track(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found. Please check the ticket number."})
		return
	}
	c.JSON(http.StatusOK, t)
}

// List serves the admin dashboard: newest first, optional status /
// repair_type / priority filters. Unfiltered requests come from the
// cache snapshot; filtered ones go to the store. sort=triage reorders
// by the status lifecycle (Evaluation first, Repaired last), newest
// first within a status.
func (h *TicketHandler) List(c *gin.Context) {
	filter := make(map[string]interface{})
	if v := c.Query("status"); v != "" {
		filter["status = ?"] = v
	}
	if v := c.Query("repair_type"); v != "" {
		filter["repair_type = ?"] = v
	}
	if v := c.Query("priority"); v != "" {
		filter["priority = ?"] = v
	}

	var items []model.Ticket
	if len(filter) == 0 {
		items = h.cache.Tickets()
	} else {
		var err error
		items, err = h.updater.ListFiltered(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if c.Query("sort") == "triage" {
		sort.SliceStable(items, func(i, j int) bool {
			if a, b := items[i].Status.TriageRank(), items[j].Status.TriageRank(); a != b {
				return a < b
			}
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
	}
	c.JSON(http.StatusOK, gin.H{"tickets": items})
}

type updateTicketRequest struct {
	Status        *string `json:"status,omitempty"`
	Technician    *string `json:"technician,omitempty"`
	ScheduledDate *string `json:"scheduled_date,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	Office        *string `json:"office,omitempty"`
	Equipment     *string `json:"equipment,omitempty"`
	Problem       *string `json:"problem,omitempty"`
	Requestee     *string `json:"requestee,omitempty"`
}

// Update applies an admin's partial edit. ticket_number is immutable and
// not in the whitelist.
func (h *TicketHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	changes := make(map[string]interface{})
	if req.Status != nil {
		if !model.TicketStatus(*req.Status).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		changes["status"] = *req.Status
	}
	if req.Priority != nil {
		if !model.Priority(*req.Priority).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority"})
			return
		}
		changes["priority"] = *req.Priority
	}
	if req.Technician != nil {
		changes["technician"] = *req.Technician
	}
	if req.ScheduledDate != nil {
		if *req.ScheduledDate == "" {
			changes["scheduled_date"] = (*time.Time)(nil)
		} else {
			d, err := time.Parse("2006-01-02", *req.ScheduledDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_date must be YYYY-MM-DD"})
				return
			}
			changes["scheduled_date"] = &d
		}
	}
	if req.Office != nil {
		changes["office"] = *req.Office
	}
	if req.Equipment != nil {
		changes["equipment"] = *req.Equipment
	}
	if req.Problem != nil {
		changes["problem"] = *req.Problem
	}
	if req.Requestee != nil {
		changes["requestee"] = *req.Requestee
	}
	if len(changes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no changes"})
		return
	}
	t, err := h.updater.UpdateTicket(c.Request.Context(), id, changes)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = h.cache.RefreshTickets(c.Request.Context())
	c.JSON(http.StatusOK, t)
}

// Delete removes a ticket; explicit administrator action only.
func (h *TicketHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.updater.DeleteTicket(c.Request.Context(), id); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = h.cache.RefreshTickets(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
