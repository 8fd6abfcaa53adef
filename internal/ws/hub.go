package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livesh/api/internal/rbac"
	"livesh/api/internal/registry"
	"livesh/api/internal/util"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 32
)

// Hub owns every live websocket connection and fans events out to
// rooms. Delivery is best effort: a connection whose send buffer is
// full is dropped rather than allowed to stall the others, and nothing
// is replayed after a reconnect.
type Hub struct {
	reg      *registry.Registry
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func NewHub(reg *registry.Registry, allowedOrigin string) *Hub {
	return &Hub{
		reg:   reg,
		conns: make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf(`{"level":"warn","msg":"ws upgrade failed","error":%q}`, err.Error())
		return
	}

	c := &conn{
		id:   util.NewID("conn"),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) drop(c *conn) {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	h.reg.Drop(c.id)
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *conn) {
	defer h.drop(c)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf(`{"level":"warn","msg":"ws bad frame","conn":%q}`, c.id)
			continue
		}
		h.handle(c, env)
	}
}

func (h *Hub) handle(c *conn, env Envelope) {
	switch env.Event {
	case EventIdentify:
		var p IdentifyPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		role := rbac.Normalize(p.Role)
		h.reg.Identify(c.id, p.UserID, p.UserName, string(role), p.ShareID)
		if role == rbac.RoleOwner {
			h.reg.Join(c.id, OwnerRoom)
		}
		if p.ShareID != "" {
			h.reg.Join(c.id, ShareRoom(p.ShareID))
		}
	case EventJoinRoom:
		var p RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Room == "" {
			return
		}
		h.reg.Join(c.id, p.Room)
	case EventLeaveRoom:
		var p RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Room == "" {
			return
		}
		h.reg.Leave(c.id, p.Room)
	case EventPing:
		h.SendToConn(c.id, EventPong, map[string]any{"time": time.Now().UTC()})
	default:
		log.Printf(`{"level":"warn","msg":"ws unknown event","event":%q}`, env.Event)
	}
}

// Broadcast delivers an event to every connection in a room.
func (h *Hub) Broadcast(room, event string, payload any) {
	h.deliver(h.reg.MembersOf(room), event, payload)
}

// BroadcastRole delivers an event only to room members whose identified
// role matches. Used to reach owners watching through a share link.
func (h *Hub) BroadcastRole(room, role, event string, payload any) {
	var targets []string
	for _, connID := range h.reg.MembersOf(room) {
		if s, ok := h.reg.Lookup(connID); ok && s.Role == role {
			targets = append(targets, connID)
		}
	}
	h.deliver(targets, event, payload)
}

// SendToConn delivers an event to a single connection, local-echo style.
func (h *Hub) SendToConn(connID, event string, payload any) {
	h.deliver([]string{connID}, event, payload)
}

// ConnFor returns the connection id of a named requester, if connected.
func (h *Hub) ConnFor(userID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.conns {
		if s, ok := h.reg.Lookup(id); ok && s.UserID == userID {
			return id, true
		}
	}
	return "", false
}

func (h *Hub) deliver(connIDs []string, event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		log.Printf(`{"level":"error","msg":"ws encode failed","event":%q,"error":%q}`, event, err.Error())
		return
	}
	message, err := json.Marshal(env)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, connID := range connIDs {
		c, ok := h.conns[connID]
		if !ok {
			continue
		}
		select {
		case c.send <- message:
		default:
			// slow consumer, cut it loose so others keep receiving
			log.Printf(`{"level":"warn","msg":"ws dropping slow conn","conn":%q}`, connID)
			go h.drop(c)
		}
	}
}

// Close tears down every live connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.drop(c)
	}
}
