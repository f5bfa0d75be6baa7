package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/gorilla/websocket"
)

// Frame types pushed to dashboard sockets.
const (
	SnapshotType = "SNAPSHOT"
	ToastType    = "TOAST"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the JSON frame written to a socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outbound struct {
	userID string
	data   []byte
}

// Hub tracks open dashboard sockets per user and fans frames out to them.
// It also implements Toaster.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}
	stopOnce   sync.Once

	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

// Client is one open dashboard socket.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	closed chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboard origin is enforced by the auth token, not the Origin header
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, room := range h.rooms {
				for c := range room {
					close(c.send)
				}
			}
			h.rooms = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.userID] == nil {
				h.rooms[c.userID] = make(map[*Client]bool)
			}
			h.rooms[c.userID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.rooms[msg.userID]))
			for c := range h.rooms[msg.userID] {
				targets = append(targets, c)
			}
			h.mu.RUnlock()

			for _, c := range targets {
				select {
				case c.send <- msg.data:
				default:
					// lagging client: drop it rather than block the hub
					logger.Warnf("socket send buffer full for user %s, disconnecting", c.userID)
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.userID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
	}
}

// Stop closes every socket and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Connected reports how many sockets userID has open.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Publish queues a frame for every socket of userID. Frames for users with no
// open socket are discarded.
func (h *Hub) Publish(userID, typ string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("marshal %s frame: %v", typ, err)
		return
	}
	data, err := json.Marshal(Message{Type: typ, Payload: raw})
	if err != nil {
		logger.Errorf("marshal frame: %v", err)
		return
	}
	select {
	case h.broadcast <- outbound{userID: userID, data: data}:
	case <-h.done:
	default:
		logger.Warnf("hub broadcast queue full, dropping %s frame for %s", typ, userID)
	}
}

// Toast implements Toaster. Users without an open socket get the toast logged.
func (h *Hub) Toast(userID string, t Toast) {
	if h.Connected(userID) == 0 {
		LogToaster{}.Toast(userID, t)
		return
	}
	h.Publish(userID, ToastType, t)
}

// Serve upgrades the request and registers the socket for userID. The
// returned client's Done channel closes when the peer disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{hub: h, conn: conn, userID: userID, send: make(chan []byte, 64), closed: make(chan struct{})}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		close(c.closed)
		return c, nil
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Done is closed once the socket has been torn down.
func (c *Client) Done() <-chan struct{} { return c.closed }

// readPump only watches for the peer going away; clients never send frames
// the server acts on.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		close(c.closed)
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("socket read error for %s: %v", c.userID, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
