package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientState reflects connectivity as seen by a client. While
// reconnecting or offline, callers should stop submitting new change
// requests; delivery during a gap is lost, never replayed.
type ClientState int

const (
	StateConnected ClientState = iota
	StateReconnecting
	StateOffline
)

func (s ClientState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

type ClientOptions struct {
	URL         string
	Identity    IdentifyPayload
	MaxAttempts int           // consecutive failed dials before going offline
	BaseBackoff time.Duration // doubled per failed attempt, capped at 8x
	DialTimeout time.Duration
}

func (o *ClientOptions) withDefaults() {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 8
	}
	if o.BaseBackoff == 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 5 * time.Second
	}
}

// Client is a reconnecting websocket client. Each successful dial
// re-announces the identity and rejoins every tracked room, then pumps
// decoded events to Events until the connection breaks.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   ClientOptions

	events chan Envelope
	states chan ClientState

	mu       sync.Mutex
	identity IdentifyPayload
	rooms    map[string]bool
	outbox   chan Envelope
}

func DialClient(ctx context.Context, opts ClientOptions) *Client {
	opts.withDefaults()
	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		ctx:      cancelCtx,
		cancel:   cancel,
		opts:     opts,
		events:   make(chan Envelope, 64),
		states:   make(chan ClientState, 8),
		identity: opts.Identity,
		rooms:    map[string]bool{},
		outbox:   make(chan Envelope, 16),
	}
	c.trackRooms(opts.Identity)
	go c.run()
	return c
}

// Events yields every decoded server event. The channel closes when the
// client goes offline for good or is closed.
func (c *Client) Events() <-chan Envelope { return c.events }

// States yields connectivity transitions. Best effort: stale states are
// dropped if the reader lags.
func (c *Client) States() <-chan ClientState { return c.states }

// SetIdentity replaces the announced identity, recomputes target rooms
// and re-identifies on the live connection. Use when the share context
// changes, e.g. navigating into or out of a shared view.
func (c *Client) SetIdentity(id IdentifyPayload) {
	c.mu.Lock()
	previous := c.roomList()
	c.identity = id
	c.rooms = map[string]bool{}
	c.mu.Unlock()
	c.trackRooms(id)

	c.mu.Lock()
	rooms := c.roomList()
	keep := make(map[string]bool, len(rooms))
	for _, room := range rooms {
		keep[room] = true
	}
	c.mu.Unlock()

	for _, room := range previous {
		if !keep[room] {
			c.enqueue(EventLeaveRoom, RoomPayload{Room: room})
		}
	}
	c.enqueue(EventIdentify, id)
	for _, room := range rooms {
		c.enqueue(EventJoinRoom, RoomPayload{Room: room})
	}
}

func (c *Client) Join(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
	c.enqueue(EventJoinRoom, RoomPayload{Room: room})
}

func (c *Client) Leave(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	c.enqueue(EventLeaveRoom, RoomPayload{Room: room})
}

func (c *Client) Ping() {
	c.enqueue(EventPing, nil)
}

func (c *Client) Close() {
	c.cancel()
}

func (c *Client) trackRooms(id IdentifyPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id.Role == "owner" {
		c.rooms[OwnerRoom] = true
	}
	if id.ShareID != "" {
		c.rooms[ShareRoom(id.ShareID)] = true
	}
}

func (c *Client) roomList() []string {
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// enqueue waits for outbox space rather than dropping the frame; a
// lost identify or join-room would leave the session in rooms it never
// announced itself for. The writer drains the outbox whenever a
// connection is up, and Close unblocks any waiter.
func (c *Client) enqueue(event string, payload any) {
	c.send(c.ctx, event, payload)
}

func (c *Client) send(ctx context.Context, event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return
	}
	select {
	case c.outbox <- env:
	case <-ctx.Done():
	}
}

func (c *Client) setState(s ClientState) {
	select {
	case c.states <- s:
	default:
	}
}

func (c *Client) run() {
	defer close(c.events)
	defer close(c.states)

	attempts := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
		ws, _, err := dialer.DialContext(c.ctx, c.opts.URL, nil)
		if err != nil {
			attempts++
			if attempts >= c.opts.MaxAttempts {
				log.Printf(`{"level":"error","msg":"ws client offline","attempts":%d}`, attempts)
				c.setState(StateOffline)
				return
			}
			c.setState(StateReconnecting)
			backoff := c.opts.BaseBackoff << uint(min(attempts-1, 3))
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		attempts = 0
		c.setState(StateConnected)
		c.serve(ws)

		select {
		case <-c.ctx.Done():
			return
		default:
			c.setState(StateReconnecting)
		}
	}
}

// announce queues identify plus join-room for every tracked room. Runs
// on every successful dial so a reconnect lands in the same rooms, and
// only once the writer pump is draining the outbox, since queueing
// blocks on a full one. Scoped to the connection's context so a writer
// that dies mid-announce cannot wedge the dial loop.
func (c *Client) announce(ctx context.Context) {
	c.mu.Lock()
	id := c.identity
	rooms := c.roomList()
	c.mu.Unlock()

	c.send(ctx, EventIdentify, id)
	for _, room := range rooms {
		c.send(ctx, EventJoinRoom, RoomPayload{Room: room})
	}
}

func (c *Client) serve(ws *websocket.Conn) {
	defer ws.Close()

	connCtx, connCancel := context.WithCancel(c.ctx)
	defer connCancel()

	go func() {
		defer connCancel()
		for {
			select {
			case <-connCtx.Done():
				return
			case env := <-c.outbox:
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteJSON(env); err != nil {
					return
				}
			case <-time.After(pingPeriod):
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	c.announce(connCtx)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}
		select {
		case c.events <- env:
		case <-connCtx.Done():
			return
		}
	}
}
