package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ceejayvjose/ict-repair-system/internal/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API is same-origin behind the reverse proxy; cross-origin
		// websocket upgrades carry no credentials worth protecting here.
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WSHandler upgrades clients onto the change feed. Every connection is
// subscribed to ticket events (all kinds) and admin-message inserts;
// the client can additionally open one chat scope at a time with
// {"action":"chat.open","ticket_number":"..."}; opening another tears
// the previous one down first. All subscriptions are released when the
// connection closes, whichever side closes it.
type WSHandler struct {
	bus *feed.Bus
}

func NewWSHandler(bus *feed.Bus) *WSHandler {
	return &WSHandler{bus: bus}
}

type wsCommand struct {
	Action       string `json:"action"`
	TicketNumber string `json:"ticket_number"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan feed.Event
	done chan struct{}

	mu      sync.Mutex
	subs    []*feed.Subscription
	chatSub *feed.Subscription
}

func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}
	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan feed.Event, 32),
		done: make(chan struct{}),
	}
	client.subs = append(client.subs,
		h.bus.Subscribe(feed.Filter{Table: feed.TableTickets}, client.enqueue),
		h.bus.Subscribe(feed.Filter{Table: feed.TableAdminMessages, Kinds: []feed.Kind{feed.KindInsert}}, client.enqueue),
	)
	log.Printf("ws: client %s connected", client.id)

	go client.writePump()
	client.readPump(h.bus)
}

func (cl *wsClient) enqueue(ev feed.Event) {
	select {
	case cl.send <- ev:
	default:
		// Behind; the client re-fetches on the next event anyway.
	}
}

// readPump handles chat.open / chat.close commands until the connection
// drops, then releases every subscription.
func (cl *wsClient) readPump(bus *feed.Bus) {
	defer cl.teardown()
	cl.conn.SetReadLimit(1024)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "chat.open":
			if cmd.TicketNumber == "" {
				continue
			}
			cl.closeChat()
			sub := bus.Subscribe(feed.Filter{
				Table:        feed.TableChatMessages,
				Kinds:        []feed.Kind{feed.KindInsert},
				TicketNumber: cmd.TicketNumber,
			}, cl.enqueue)
			cl.mu.Lock()
			cl.chatSub = sub
			cl.mu.Unlock()
		case "chat.close":
			cl.closeChat()
		}
	}
}

// writePump forwards events as JSON frames and keeps the connection
// alive with pings.
func (cl *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case ev := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-cl.done:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (cl *wsClient) closeChat() {
	cl.mu.Lock()
	sub := cl.chatSub
	cl.chatSub = nil
	cl.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func (cl *wsClient) teardown() {
	cl.closeChat()
	cl.mu.Lock()
	subs := cl.subs
	cl.subs = nil
	cl.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	close(cl.done)
	log.Printf("ws: client %s disconnected", cl.id)
}
