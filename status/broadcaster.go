package status

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait caps how long a single websocket write may block.
	writeWait = 5 * time.Second

	// clientBuffer is the per-client outbound queue. A client that falls
	// this far behind starts losing snapshots rather than stalling the
	// broadcaster.
	clientBuffer = 8
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans engine state snapshots out to websocket clients on a
// fixed interval.
type Broadcaster struct {
	mu       sync.Mutex
	closed   bool
	clients  map[string]*client
	snapshot func() StateSnapshot
	interval time.Duration
	logger   *slog.Logger
	cancel   chan struct{}
	stopOnce sync.Once
}

// NewBroadcaster starts a broadcaster pushing snapshot() to clients
// every interval.
func NewBroadcaster(snapshot func() StateSnapshot, interval time.Duration, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		clients:  make(map[string]*client),
		snapshot: snapshot,
		interval: interval,
		logger:   logger,
		cancel:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broadcaster) loop() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.push()
		case <-b.cancel:
			return
		}
	}
}

func (b *Broadcaster) push() {
	b.mu.Lock()
	n := len(b.clients)
	b.mu.Unlock()
	if n == 0 {
		return
	}

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		b.logger.Warn("snapshot encode failed", "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow; this snapshot is superseded by the next
			// one anyway.
		}
	}
}

// Add registers a websocket connection and immediately sends it the
// current snapshot. Returns the client id, or "" when the broadcaster
// is already closed, in which case the connection is torn down.
func (b *Broadcaster) Add(conn *websocket.Conn) string {
	c := newClient(conn)

	if data, err := json.Marshal(b.snapshot()); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		c.close()
		return ""
	}
	b.clients[c.id] = c
	b.mu.Unlock()
	return c.id
}

// Remove unregisters a client and closes its connection.
func (b *Broadcaster) Remove(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()
	if ok {
		c.close()
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close stops the push loop and disconnects every client.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() { close(b.cancel) })
	b.mu.Lock()
	b.closed = true
	clients := b.clients
	b.clients = make(map[string]*client)
	b.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
