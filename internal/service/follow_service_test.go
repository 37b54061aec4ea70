package service

import (
	"context"
	"testing"

	"trashtalk/internal/models"
	"trashtalk/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowService_PublicTargetAcceptedImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	follower := env.user(t, 1, models.VisibilityPublic)
	env.user(t, 2, models.VisibilityPublic)
	target := env.connect(t, 2)

	edge, err := env.follows.RequestFollow(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusAccepted, edge.Status)

	got := ofType(drain(t, target), realtime.EventNewFollower)
	require.Len(t, got, 1)
	p := decode[realtime.FollowerPayload](t, got[0])
	assert.Equal(t, follower.Username+" has subscribed to you.", p.Message)
	assert.Equal(t, "accepted", p.Status)
	assert.NotZero(t, p.NotificationID)
}

func TestFollowService_PrivateTargetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	follower := env.user(t, 1, models.VisibilityPublic)
	owner := env.user(t, 2, models.VisibilityPrivate)
	followerConn := env.connect(t, 1)
	ownerConn := env.connect(t, 2)

	edge, err := env.follows.RequestFollow(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, edge.Status)

	req := ofType(drain(t, ownerConn), realtime.EventNewFollower)
	require.Len(t, req, 1)
	assert.Equal(t, follower.Username+" sent you a follow request", decode[realtime.FollowerPayload](t, req[0]).Message)

	pending, err := env.follows.ListPending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	accepted, err := env.follows.RespondToRequest(ctx, 2, 1, true)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusAccepted, accepted.Status)

	ack := ofType(drain(t, followerConn), realtime.EventNewFollower)
	require.Len(t, ack, 1)
	assert.Equal(t, owner.Username+" accepted your follow request", decode[realtime.FollowerPayload](t, ack[0]).Message)

	_, err = env.follows.RespondToRequest(ctx, 2, 1, true)
	assert.True(t, models.IsCode(err, models.CodeInvalidState))
}

func TestFollowService_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, 1, models.VisibilityPublic)
	env.user(t, 2, models.VisibilityPrivate)

	_, err := env.follows.RequestFollow(ctx, 1, 1)
	assert.True(t, models.IsCode(err, models.CodeInvalidArgument))

	_, err = env.follows.RequestFollow(ctx, 1, 99)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	_, err = env.follows.RequestFollow(ctx, 1, 2)
	require.NoError(t, err)
	_, err = env.follows.RequestFollow(ctx, 1, 2)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	// a pending edge is not an accepted follow
	assert.True(t, models.IsCode(env.follows.Unfollow(ctx, 1, 2), models.CodeNotFound))

	_, err = env.follows.RespondToRequest(ctx, 2, 1, false)
	require.NoError(t, err)
	_, err = env.follows.RespondToRequest(ctx, 2, 1, false)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestFollowService_UnfollowAndRemoveFollower(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, 1, models.VisibilityPublic)
	env.user(t, 2, models.VisibilityPublic)
	env.user(t, 3, models.VisibilityPublic)
	env.acceptedEdge(t, 1, 2)
	env.acceptedEdge(t, 3, 2)

	require.NoError(t, env.follows.Unfollow(ctx, 1, 2))
	require.NoError(t, env.follows.RemoveFollower(ctx, 2, 3))

	followers, err := env.follows.ListAccepted(ctx, 2, models.Followers)
	require.NoError(t, err)
	assert.Empty(t, followers)

	assert.True(t, models.IsCode(env.follows.Unfollow(ctx, 1, 2), models.CodeNotFound))
}

func TestFollowService_ListForAppliesVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, 1, models.VisibilityPrivate)
	env.user(t, 2, models.VisibilityPublic)
	env.user(t, 3, models.VisibilityPublic)
	env.acceptedEdge(t, 2, 1)

	_, err := env.follows.ListFor(ctx, 3, 1, models.Followers)
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	list, err := env.follows.ListFor(ctx, 2, 1, models.Followers)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = env.follows.ListFor(ctx, 1, 1, models.Followers)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
