// Package notifications is the session registry: it owns every live socket,
// the rooms each socket belongs to, and user presence.
package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"trashtalk/internal/observability"
	"trashtalk/internal/realtime"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

var (
	ErrServerFull       = errors.New("server connection limit reached")
	ErrUserLimit        = errors.New("user connection limit reached")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	ErrShutdown         = errors.New("registry is shut down")
)

// CloseHook runs synchronously when an authenticated connection closes, with
// the rooms it belonged to at that moment.
type CloseHook func(ctx context.Context, c *Client, rooms []string) error

// Config bounds the registry.
type Config struct {
	MaxConnsPerUser     int
	MaxTotalConns       int
	SignalRatePerSecond float64
	SignalBurst         int
	PresenceGrace       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConnsPerUser <= 0 {
		c.MaxConnsPerUser = 12
	}
	if c.MaxTotalConns <= 0 {
		c.MaxTotalConns = 10000
	}
	if c.SignalRatePerSecond <= 0 {
		c.SignalRatePerSecond = 20
	}
	if c.SignalBurst <= 0 {
		c.SignalBurst = 40
	}
	return c
}

// Registry maps users to connections and rooms to connections.
type Registry struct {
	cfg Config

	mu         sync.RWMutex
	users      map[uint]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	totalConns int
	closed     bool

	hooksMu sync.RWMutex
	hooks   []CloseHook

	presence *Presence
	log      *observability.WSLogger
}

// NewRegistry creates a registry. rdb may be nil, in which case presence is process-local.
func NewRegistry(cfg Config, rdb *redis.Client) *Registry {
	cfg = cfg.withDefaults()
	return &Registry{
		cfg:      cfg,
		users:    make(map[uint]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: NewPresence(rdb, PresenceConfig{OfflineGrace: cfg.PresenceGrace}),
		log:      observability.NewWSLogger("realtime"),
	}
}

// Presence exposes the presence tracker.
func (r *Registry) Presence() *Presence { return r.presence }

// OnClose registers a hook run for every authenticated connection that closes.
func (r *Registry) OnClose(hook CloseHook) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, hook)
	r.hooksMu.Unlock()
}

// Connect admits a new connection in the Connecting state.
func (r *Registry) Connect(conn *websocket.Conn) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrShutdown
	}
	if r.totalConns >= r.cfg.MaxTotalConns {
		return nil, ErrServerFull
	}
	r.totalConns++
	return newClient(r, conn), nil
}

// Authenticate binds the connection to userID and joins it to the user's personal room.
func (r *Registry) Authenticate(c *Client, userID uint) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShutdown
	}
	if c.State() != StateConnecting {
		r.mu.Unlock()
		return ErrNotAuthenticated
	}

	conns := r.users[userID]
	if len(conns) >= r.cfg.MaxConnsPerUser {
		r.mu.Unlock()
		return ErrUserLimit
	}
	if conns == nil {
		conns = make(map[*Client]struct{})
		r.users[userID] = conns
	}
	conns[c] = struct{}{}

	c.UserID = userID
	c.state.Store(int32(StateAuthenticated))
	r.joinLocked(c, realtime.UserRoom(userID))
	r.mu.Unlock()

	observability.WebSocketConnections.Inc()
	r.presence.Register(context.Background(), userID)
	r.log.LogConnect(context.Background(), userID, c.ID)
	return nil
}

// Unregister closes the connection's bookkeeping. It is idempotent. For an
// authenticated connection every close hook has returned before Unregister does.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	prev := c.State()
	if prev == StateClosed {
		r.mu.Unlock()
		return
	}
	c.state.Store(int32(StateClosed))

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		r.leaveLocked(c, room)
	}
	sort.Strings(rooms)

	if prev == StateAuthenticated {
		if conns, ok := r.users[c.UserID]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(r.users, c.UserID)
			}
		}
	}
	r.totalConns--
	close(c.Send)
	r.mu.Unlock()

	if prev != StateAuthenticated {
		return
	}

	observability.WebSocketConnections.Dec()
	ctx := context.Background()
	r.presence.Unregister(ctx, c.UserID)

	r.hooksMu.RLock()
	hooks := append([]CloseHook(nil), r.hooks...)
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx, c, rooms); err != nil {
			// cleanup failures never block teardown
			r.log.LogError(ctx, c.UserID, "close_hook", err)
		}
	}

	r.log.LogDisconnect(ctx, c.UserID, c.ID, len(rooms))
}

// Join adds the connection to room. Joining twice is a no-op.
func (r *Registry) Join(c *Client, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	r.joinLocked(c, room)
	return nil
}

func (r *Registry) joinLocked(c *Client, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes the connection from room. Leaving a room it is not in is a no-op.
func (r *Registry) Leave(c *Client, room string) {
	r.mu.Lock()
	r.leaveLocked(c, room)
	r.mu.Unlock()
}

func (r *Registry) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// LeaveUser removes every connection of userID from room.
func (r *Registry) LeaveUser(userID uint, room string) {
	r.mu.Lock()
	for c := range r.users[userID] {
		r.leaveLocked(c, room)
	}
	r.mu.Unlock()
}

// CloseRoom removes every connection from room.
func (r *Registry) CloseRoom(room string) {
	r.mu.Lock()
	for c := range r.rooms[room] {
		delete(c.rooms, room)
	}
	delete(r.rooms, room)
	r.mu.Unlock()
}

// UserInRoom reports whether any connection of userID is in room.
func (r *Registry) UserInRoom(userID uint, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[room] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// EmitToRoom sends ev to every connection in room and returns how many accepted it.
func (r *Registry) EmitToRoom(room string, ev realtime.Event) int {
	data, err := ev.Encode()
	if err != nil {
		r.log.LogError(context.Background(), 0, ev.Type, err)
		return 0
	}
	observability.WebSocketEventsTotal.WithLabelValues("out", ev.Type).Inc()

	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for c := range r.rooms[room] {
		if c.TrySend(data) {
			sent++
		}
	}
	return sent
}

// EmitToUser sends ev to every connection userID has open.
func (r *Registry) EmitToUser(userID uint, ev realtime.Event) int {
	return r.EmitToRoom(realtime.UserRoom(userID), ev)
}

// EmitAll sends ev to every authenticated connection.
func (r *Registry) EmitAll(ev realtime.Event) int {
	data, err := ev.Encode()
	if err != nil {
		r.log.LogError(context.Background(), 0, ev.Type, err)
		return 0
	}
	observability.WebSocketEventsTotal.WithLabelValues("out", ev.Type).Inc()

	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for _, conns := range r.users {
		for c := range conns {
			if c.TrySend(data) {
				sent++
			}
		}
	}
	return sent
}

// SendTo sends ev to a single connection.
func (r *Registry) SendTo(c *Client, ev realtime.Event) bool {
	data, err := ev.Encode()
	if err != nil {
		return false
	}
	observability.WebSocketEventsTotal.WithLabelValues("out", ev.Type).Inc()
	return c.TrySend(data)
}

// IsOnline reports presence, including other processes when Redis is configured.
func (r *Registry) IsOnline(ctx context.Context, userID uint) bool {
	return r.presence.IsOnline(ctx, userID)
}

// ConnectionCount returns the number of admitted connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalConns
}

// Shutdown refuses new connections and closes every open one. Connections
// backed by a socket are unregistered by their read pump.
func (r *Registry) Shutdown(_ context.Context) error {
	r.mu.Lock()
	r.closed = true
	var detached []*Client
	for _, conns := range r.users {
		for c := range conns {
			if c.Conn == nil {
				detached = append(detached, c)
				continue
			}
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"),
				time.Now().Add(writeWait))
			_ = c.Conn.Close()
		}
	}
	r.mu.Unlock()

	for _, c := range detached {
		r.Unregister(c)
	}

	r.presence.Stop()
	r.log.LogLifecycle(context.Background(), "shutdown")
	return nil
}
