package notifications

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"trashtalk/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	presenceSetKey       = "presence:online"
	presenceSeenPrefix   = "presence:seen:"
	presenceTTL          = 90 * time.Second
	presenceGrace        = 5 * time.Second
	presenceReapInterval = time.Minute
)

// PresenceConfig tunes presence tracking. Zero values pick the defaults.
type PresenceConfig struct {
	TTL          time.Duration
	OfflineGrace time.Duration
	ReapInterval time.Duration
}

// Presence counts live connections per user on this process and mirrors
// online users into Redis so other processes can answer IsOnline. A user
// stays online for a short grace window after their last socket closes.
type Presence struct {
	rdb *redis.Client
	cfg PresenceConfig

	mu      sync.Mutex
	local   map[uint]int
	pending map[uint]*time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPresence creates a tracker. With a nil client it only knows about local sockets.
func NewPresence(rdb *redis.Client, cfg PresenceConfig) *Presence {
	if cfg.TTL <= 0 {
		cfg.TTL = presenceTTL
	}
	if cfg.OfflineGrace <= 0 {
		cfg.OfflineGrace = presenceGrace
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = presenceReapInterval
	}
	p := &Presence{
		rdb:     rdb,
		cfg:     cfg,
		local:   make(map[uint]int),
		pending: make(map[uint]*time.Timer),
		stop:    make(chan struct{}),
	}
	if rdb != nil {
		go p.reapLoop()
	}
	return p
}

// Register records a new socket for userID.
func (p *Presence) Register(ctx context.Context, userID uint) {
	p.mu.Lock()
	if t, ok := p.pending[userID]; ok {
		t.Stop()
		delete(p.pending, userID)
	}
	p.local[userID]++
	p.mu.Unlock()

	p.Touch(ctx, userID)
}

// Unregister records a closed socket. The user goes offline once the grace
// window passes with no new socket.
func (p *Presence) Unregister(_ context.Context, userID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.local[userID] > 1 {
		p.local[userID]--
		return
	}
	delete(p.local, userID)

	if t, ok := p.pending[userID]; ok {
		t.Stop()
	}
	p.pending[userID] = time.AfterFunc(p.cfg.OfflineGrace, func() {
		p.expire(context.Background(), userID)
	})
}

// Touch refreshes the user's last-seen marker.
func (p *Presence) Touch(ctx context.Context, userID uint) {
	if p.rdb == nil {
		return
	}
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, presenceSetKey, userKey(userID))
		pipe.Set(ctx, seenKey(userID), time.Now().Unix(), p.cfg.TTL)
		return nil
	})
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "presence refresh failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}

// IsOnline reports whether the user has a socket here, is inside the grace
// window, or has a fresh marker from any process.
func (p *Presence) IsOnline(ctx context.Context, userID uint) bool {
	p.mu.Lock()
	_, grace := p.pending[userID]
	live := p.local[userID] > 0
	p.mu.Unlock()
	if live || grace {
		return true
	}
	if p.rdb == nil {
		return false
	}
	n, err := p.rdb.Exists(ctx, seenKey(userID)).Result()
	return err == nil && n > 0
}

// OnlineUsers lists users known to be online, sorted.
func (p *Presence) OnlineUsers(ctx context.Context) []uint {
	seen := make(map[uint]struct{})
	p.mu.Lock()
	for id := range p.local {
		seen[id] = struct{}{}
	}
	p.mu.Unlock()

	if p.rdb != nil {
		members, err := p.rdb.SMembers(ctx, presenceSetKey).Result()
		if err == nil {
			for _, raw := range members {
				id, ok := parseUserKey(raw)
				if !ok {
					continue
				}
				if n, err := p.rdb.Exists(ctx, seenKey(id)).Result(); err == nil && n > 0 {
					seen[id] = struct{}{}
				}
			}
		}
	}

	out := make([]uint, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stop halts the reaper and pending offline timers.
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		for id, t := range p.pending {
			t.Stop()
			delete(p.pending, id)
		}
		p.mu.Unlock()
	})
}

func (p *Presence) expire(ctx context.Context, userID uint) {
	p.mu.Lock()
	delete(p.pending, userID)
	reconnected := p.local[userID] > 0
	p.mu.Unlock()
	if reconnected || p.rdb == nil {
		return
	}

	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, seenKey(userID))
		pipe.SRem(ctx, presenceSetKey, userKey(userID))
		return nil
	})
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "presence expire failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}

// reap drops set members whose last-seen marker has expired.
func (p *Presence) reap(ctx context.Context) int {
	members, err := p.rdb.SMembers(ctx, presenceSetKey).Result()
	if err != nil {
		return 0
	}
	removed := 0
	for _, raw := range members {
		id, ok := parseUserKey(raw)
		if !ok {
			_ = p.rdb.SRem(ctx, presenceSetKey, raw).Err()
			continue
		}
		n, err := p.rdb.Exists(ctx, seenKey(id)).Result()
		if err != nil || n > 0 {
			continue
		}
		if p.rdb.SRem(ctx, presenceSetKey, raw).Err() == nil {
			removed++
		}
	}
	return removed
}

func (p *Presence) reapLoop() {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reap(context.Background())
		}
	}
}

func userKey(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func seenKey(id uint) string { return presenceSeenPrefix + userKey(id) }

func parseUserKey(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
