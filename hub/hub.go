// Package hub pushes telemetry to browser dashboards over websockets and
// accepts target address changes from them.
package hub

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	EventNewData = "new_data"
	EventSetIP   = "set_ip"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// Event is the envelope for every message in both directions.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessagePayload carries operator input such as the address for set_ip.
type MessagePayload struct {
	Message string `json:"message"`
}

// Hub is a SnapshotSink that broadcasts every record to all connected
// websocket clients. A client that cannot keep up is disconnected.
type Hub struct {
	onSetIP  func(string)
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New returns a hub. onSetIP is called with the trimmed address for every
// set_ip event and may be nil.
func New(onSetIP func(string)) *Hub {
	return &Hub{
		onSetIP: onSetIP,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Name() string {
	return "hub"
}

func (h *Hub) Push(rec seanboard.TelemetryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to encode record")
	}
	msg, err := json.Marshal(Event{Event: EventNewData, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "unable to encode event")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Wrap(seanboard.ErrDisconnected, "hub closed")
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.WithField("client", c.id).Warn("client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("err", err).Warn("unable to upgrade websocket connection")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.New().String(),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.WithField("client", c.id).
		WithField("remote", r.RemoteAddr).
		WithField("clients", count).
		Info("websocket client connected")

	go c.writePump()
	go c.readPump()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Later pushes report ErrDisconnected.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	log.WithField("client", c.id).Info("websocket client disconnected")
}

func (h *Hub) handle(c *client, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.WithField("client", c.id).WithField("err", err).Warn("invalid event")
		return
	}

	switch ev.Event {
	case EventSetIP:
		var p MessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			log.WithField("client", c.id).WithField("err", err).Warn("invalid set_ip payload")
			return
		}
		addr := strings.TrimSpace(p.Message)
		log.WithField("client", c.id).WithField("address", addr).Info("target address changed")
		if h.onSetIP != nil {
			h.onSetIP(addr)
		}
	default:
		log.WithField("client", c.id).WithField("event", ev.Event).Debug("ignoring event")
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithField("client", c.id).WithField("err", err).Debug("websocket read failed")
			}
			return
		}
		c.hub.handle(c, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
