package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"github.com/ceejayvjose/ict-repair-system/internal/session"
	"github.com/ceejayvjose/ict-repair-system/internal/store"
)

type MessageHandler struct {
	broadcasts store.BroadcastStore
	chats      store.ChatStore
	tickets    store.TicketStore
	cache      *session.Cache
}

func NewMessageHandler(broadcasts store.BroadcastStore, chats store.ChatStore, tickets store.TicketStore, cache *session.Cache) *MessageHandler {
	return &MessageHandler{broadcasts: broadcasts, chats: chats, tickets: tickets, cache: cache}
}

// Broadcast returns the current admin message from the session cache.
func (h *MessageHandler) Broadcast(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.cache.Broadcast()})
}

type postBroadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

// PostBroadcast replaces the current admin message wholesale.
func (h *MessageHandler) PostBroadcast(c *gin.Context) {
	var req postBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if err := h.broadcasts.ReplaceBroadcast(c.Request.Context(), req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = h.cache.RefreshBroadcast(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": req.Message})
}

// ListChat replays one ticket's conversation, oldest first. The ticket
// must exist; chat threads are not open-ended mailboxes.
func (h *MessageHandler) ListChat(c *gin.Context) {
	number := c.Param("number")
	if _, err := h.tickets.GetTicketByNumber(c.Request.Context(), number); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	items, err := h.chats.ListChatMessages(c.Request.Context(), number)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []model.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": items})
}

type sendChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// SendChat appends a message to the ticket's log. The sender role comes
// from authentication: a valid admin token makes it an admin message,
// anything else is a user message.
func (h *MessageHandler) SendChat(c *gin.Context) {
	number := c.Param("number")
	if _, err := h.tickets.GetTicketByNumber(c.Request.Context(), number); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	var req sendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	sender := model.SenderUser
	if IsAdmin(c) {
		sender = model.SenderAdmin
	}
	msg := &model.ChatMessage{
		TicketNumber: number,
		SenderType:   sender,
		Message:      req.Message,
	}
	if err := h.chats.AppendChatMessage(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, msg)
}
