package sockets

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("hub closed")

// Connection is one subscriber of the hub.
type Connection interface {
	Send(msg []byte) error
	Close() error
}

// Hub upgrades HTTP requests to websockets and broadcasts messages to every
// connected client. Clients are only written to, anything they send is dropped.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	queueSize    int
	onConnected  func(Connection)
	onError      func(error)

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

func New(opts ...func(*Hub)) *Hub {
	h := &Hub{
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		queueSize:    16,
		conns:        make(map[*conn]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.reportErr(err)
		return
	}

	c := &conn{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	if h.onConnected != nil {
		h.onConnected(c)
	}
	c.readLoop()
}

// Broadcast queues msg for every client. A client whose queue is full is dropped.
func (h *Hub) Broadcast(msg []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for c := range h.conns {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(c)
		}
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.conns {
		h.removeLocked(c)
	}
	return nil
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.done)
}

func (h *Hub) reportErr(err error) {
	if h.onError != nil && err != nil {
		h.onError(err)
	}
}

type conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (c *conn) Send(msg []byte) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *conn) Close() error {
	c.hub.remove(c)
	return nil
}

func (c *conn) readLoop() {
	defer c.Close()
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.reportErr(err)
			}
			return
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.reportErr(err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeTimeout)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}
