// Package ws pushes appointment status changes to browser and mobile
// clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"carelink/backend/internal/domain"
)

const TypeStatusChanged = "appointment.status_changed"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
	sendBuffer = 64
)

type Message struct {
	Type    string              `json:"type"`
	Payload domain.StatusChange `json:"payload"`
}

// client receives the changes matching its filter. An empty filter field
// matches every value.
type client struct {
	send        chan []byte
	userID      string
	caregiverID string
}

func (c *client) wants(change domain.StatusChange) bool {
	if c.userID != "" && c.userID != change.UserID {
		return false
	}
	if c.caregiverID != "" && c.caregiverID != change.CaregiverID {
		return false
	}
	return true
}

type outbound struct {
	change domain.StatusChange
	data   []byte
}

// Hub tracks connected clients. All client bookkeeping happens on the Run
// goroutine.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        *slog.Logger

	mu    sync.RWMutex
	count int

	upgrader websocket.Upgrader
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log.With(slog.String("component", "ws_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run serves register, unregister and broadcast requests until ctx is
// done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			h.log.Debug("client connected", slog.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug("client disconnected", slog.Int("clients", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.change) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.log.Warn("slow client dropped")
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// HandleStatusChange queues change for delivery. It never blocks.
func (h *Hub) HandleStatusChange(change domain.StatusChange) {
	data, err := json.Marshal(Message{Type: TypeStatusChanged, Payload: change})
	if err != nil {
		h.log.Error("encode status change failed", slog.Any("err", err))
		return
	}
	select {
	case h.broadcast <- outbound{change: change, data: data}:
	default:
		h.log.Warn("broadcast queue full, dropping status change", slog.String("appointment_id", change.AppointmentID))
	}
}

// ServeHTTP upgrades the request. The optional user_id and caregiver_id
// query parameters narrow which changes the connection receives.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	c := &client{
		send:        make(chan []byte, sendBuffer),
		userID:      r.URL.Query().Get("user_id"),
		caregiverID: r.URL.Query().Get("caregiver_id"),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go h.writePump(conn, c)
	go h.readPump(conn, c)
}

func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; it exists to process control frames
// and notice disconnects.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read failed", slog.Any("err", err))
			}
			return
		}
	}
}
