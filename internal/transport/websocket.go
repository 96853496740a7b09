package transport

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const outboundBuffer = 16

// wsConn is one open subscription connection: requestFocus needs exactly
// one handle that carries both the synchronous initial reply and every
// later asynchronous push, which is what makes a duplex WebSocket the
// right fit here instead of a one-way push channel.
type wsConn struct {
	conn   *websocket.Conn
	handle focus.Handle
	out    chan any
	once   sync.Once
}

func (c *wsConn) send(payload any) bool {
	select {
	case c.out <- payload:
		return true
	default:
		return false // outbound buffer full; peer is not keeping up or is dead
	}
}

func (c *wsConn) writeLoop() {
	defer c.conn.Close()
	for payload := range c.out {
		if err := c.conn.WriteJSON(payload); err != nil {
			return
		}
	}
}

// close stops accepting payloads; writeLoop still sends whatever is already
// queued and then closes the socket.
func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.out)
	})
}

// Hub tracks every open subscription connection and implements
// focus.Deliverer so the engine can push notifications without knowing
// anything about WebSockets.
type Hub struct {
	mu       sync.Mutex
	conns    map[focus.Handle]*wsConn
	nextID   atomic.Uint64
	log      zerolog.Logger
	onCancel func(bucket focus.Bucket, displayID focus.DisplayID, appID string)
}

// NewHub builds a Hub. onCancel is invoked when a connection closes, so the
// caller can route the cancellation into Engine.HandleCancellation.
func NewHub(log zerolog.Logger, onCancel func(bucket focus.Bucket, displayID focus.DisplayID, appID string)) *Hub {
	return &Hub{conns: make(map[focus.Handle]*wsConn), log: log, onCancel: onCancel}
}

// Deliver implements focus.Deliverer.
func (h *Hub) Deliver(handle focus.Handle, payload any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[handle]
	if !ok {
		h.log.Debug().Uint64("handle", uint64(handle)).Msg("deliver: connection already closed, dropping payload")
		return false
	}
	if !c.send(payload) {
		h.log.Warn().Uint64("handle", uint64(handle)).Msg("deliver: outbound buffer full, dropping payload")
		return false
	}
	return true
}

// Upgrade accepts a WebSocket upgrade, registers the connection under a
// freshly minted handle, and returns that handle. A background goroutine
// reads only to detect close; when the peer disconnects it calls onCancel
// for the given bucket/display/app and tears the connection down. The
// caller is responsible for computing and delivering the initial
// synchronous reply via Deliver once it has decided the outcome.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, bucket focus.Bucket, displayID focus.DisplayID, appID string) (focus.Handle, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return 0, err
	}

	handle := focus.Handle(h.nextID.Add(1))
	c := &wsConn{conn: conn, handle: handle, out: make(chan any, outboundBuffer)}

	h.mu.Lock()
	h.conns[handle] = c
	h.mu.Unlock()

	go c.writeLoop()

	go func() {
		defer h.teardown(handle, bucket, displayID, appID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return handle, nil
}

func (h *Hub) teardown(handle focus.Handle, bucket focus.Bucket, displayID focus.DisplayID, appID string) {
	h.mu.Lock()
	c, ok := h.conns[handle]
	delete(h.conns, handle)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.log.Info().Str("app", appID).Int("display", int(displayID)).Msg("subscription connection closed")
	if h.onCancel != nil {
		h.onCancel(bucket, displayID, appID)
	}
}

// CloseUnsubscribed closes a connection that was never registered with the
// focus engine (a GRANTED_ALREADY or CANNOT_BE_GRANTED reply on
// requestFocus): it drops the
// connection from the hub without invoking onCancel, since the engine
// never considered this handle a live subscription.
func (h *Hub) CloseUnsubscribed(handle focus.Handle) {
	h.mu.Lock()
	c, ok := h.conns[handle]
	delete(h.conns, handle)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// CloseAll shuts down every open connection, used during graceful
// shutdown after Engine.Shutdown has already broadcast LOST.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[focus.Handle]*wsConn)
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
