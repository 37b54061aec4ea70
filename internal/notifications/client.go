package notifications

import (
	"context"
	"sync/atomic"
	"time"

	"trashtalk/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers fit comfortably.
	maxMessageSize = 65536

	sendBuffer = 256
)

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Client is one live socket connection. A user may own several.
type Client struct {
	ID string

	// The websocket connection. Nil for in-process clients in tests.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// UserID is set once the connection is authenticated.
	UserID uint

	// IncomingHandler is called sequentially for each inbound frame.
	IncomingHandler func(*Client, []byte)

	state    atomic.Int32
	done     chan struct{}
	registry *Registry
	signals  *rate.Limiter

	// rooms is guarded by registry.mu
	rooms map[string]struct{}
}

func newClient(r *Registry, conn *websocket.Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		registry: r,
		signals:  rate.NewLimiter(rate.Limit(r.cfg.SignalRatePerSecond), r.cfg.SignalBurst),
		rooms:    make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// AllowSignal consumes one token from the connection's signaling budget.
func (c *Client) AllowSignal() bool {
	return c.signals.Allow()
}

// ReadPump pumps messages from the websocket connection to IncomingHandler.
// When it returns the client has been unregistered and all close hooks have run.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.State() == StateAuthenticated {
			c.registry.presence.Touch(context.Background(), c.UserID)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.registry.log.LogError(context.Background(), c.UserID, "read", err)
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

// Done is closed once WritePump has returned and no longer touches Conn.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump pumps messages from Send to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. Messages to a full or closed
// connection are dropped; delivery is fire-and-forget.
func (c *Client) TrySend(message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
		return false
	}
}
