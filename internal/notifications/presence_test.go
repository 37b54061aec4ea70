package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestPresence_GraceWindowSurvivesReconnect(t *testing.T) {
	p := NewPresence(nil, PresenceConfig{OfflineGrace: 40 * time.Millisecond})
	defer p.Stop()
	ctx := context.Background()

	p.Register(ctx, 10)
	p.Unregister(ctx, 10)
	assert.True(t, p.IsOnline(ctx, 10))

	p.Register(ctx, 10)
	assert.Never(t, func() bool { return !p.IsOnline(ctx, 10) }, 10*testPollInterval, testPollInterval)
}

func TestPresence_LastSocketGoesOfflineAfterGrace(t *testing.T) {
	mr, rdb := newRedis(t)
	p := NewPresence(rdb, PresenceConfig{OfflineGrace: 20 * time.Millisecond})
	defer p.Stop()
	ctx := context.Background()

	p.Register(ctx, 15)
	p.Register(ctx, 15)
	assert.True(t, mr.Exists(seenKey(15)))

	p.Unregister(ctx, 15)
	assert.True(t, p.IsOnline(ctx, 15))

	p.Unregister(ctx, 15)
	assert.Eventually(t, func() bool { return !p.IsOnline(ctx, 15) }, testEventuallyTimeout, testPollInterval)

	member, err := rdb.SIsMember(ctx, presenceSetKey, "15").Result()
	require.NoError(t, err)
	assert.False(t, member)
}

func TestPresence_SeesOtherProcesses(t *testing.T) {
	_, rdb := newRedis(t)
	here := NewPresence(rdb, PresenceConfig{})
	there := NewPresence(rdb, PresenceConfig{})
	defer here.Stop()
	defer there.Stop()
	ctx := context.Background()

	there.Register(ctx, 21)
	assert.True(t, here.IsOnline(ctx, 21))
	assert.Equal(t, []uint{21}, here.OnlineUsers(ctx))
}

func TestPresence_ReapDropsStaleMembers(t *testing.T) {
	mr, rdb := newRedis(t)
	p := NewPresence(rdb, PresenceConfig{TTL: time.Second})
	defer p.Stop()
	ctx := context.Background()

	p.Touch(ctx, 44)
	require.NoError(t, rdb.SAdd(ctx, presenceSetKey, "garbage").Err())
	mr.FastForward(2 * time.Second)

	assert.Equal(t, 1, p.reap(ctx))
	members, err := rdb.SMembers(ctx, presenceSetKey).Result()
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.False(t, p.IsOnline(ctx, 44))
}
