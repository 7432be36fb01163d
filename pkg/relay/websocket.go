package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/backkem/rf24relay/pkg/reading"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// Hub defaults.
const (
	DefaultSendBuffer   = 16
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// HubConfig configures a WebSocket hub.
type HubConfig struct {
	// Encoding of streamed batches. JSON is sent as text messages, CBOR as
	// binary messages.
	Encoding Encoding

	// SendBuffer is the number of batches queued per client before the
	// client is disconnected as too slow.
	// Default: DefaultSendBuffer
	SendBuffer int

	// WriteTimeout bounds each write to a client.
	// Default: DefaultWriteTimeout
	WriteTimeout time.Duration

	// PingInterval is the keepalive period.
	// Default: DefaultPingInterval
	PingInterval time.Duration

	// CheckOrigin is passed to the upgrader. If nil, any origin is accepted.
	CheckOrigin func(r *http.Request) bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *HubConfig) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// Hub streams batches to connected WebSocket clients. It is an
// http.Handler and a Sink.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	msgType  int
	log      logging.LeveledLogger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates a hub.
func NewHub(config HubConfig) (*Hub, error) {
	if config.Encoding != EncodingJSON && config.Encoding != EncodingCBOR {
		return nil, ErrUnknownEncoding
	}
	config.applyDefaults()

	h := &Hub{
		config:   config,
		upgrader: websocket.Upgrader{CheckOrigin: config.CheckOrigin},
		msgType:  websocket.TextMessage,
		clients:  make(map[*client]struct{}),
	}
	if config.Encoding == EncodingCBOR {
		h.msgType = websocket.BinaryMessage
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("relay-ws")
	}
	return h, nil
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "relay closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Debugf("upgrade from %s failed: %v", r.RemoteAddr, err)
		}
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	if h.log != nil {
		h.log.Infof("client %s connected", r.RemoteAddr)
	}

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish implements Sink. Clients whose buffer is full are disconnected.
func (h *Hub) Publish(ctx context.Context, b *reading.Batch) error {
	msg, err := h.config.Encoding.Marshal(b)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			if h.log != nil {
				h.log.Warnf("client %s too slow, disconnecting", c.conn.RemoteAddr())
			}
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(h.msgType, msg); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ Sink = (*Hub)(nil)
