package service

import (
	"context"
	"log/slog"
	"sync"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"
	"trashtalk/internal/policy"
	"trashtalk/internal/repository"
)

// FollowEventKind identifies a follow graph transition.
type FollowEventKind int

const (
	FollowRequested FollowEventKind = iota
	FollowAccepted
	FollowRemoved
)

func (k FollowEventKind) String() string {
	switch k {
	case FollowRequested:
		return "requested"
	case FollowAccepted:
		return "accepted"
	default:
		return "removed"
	}
}

// FollowEvent is published after a follow graph change has committed.
// Edge holds the edge as it was at the time of the change.
type FollowEvent struct {
	Kind FollowEventKind
	Edge models.Follow
}

// FollowSink consumes follow events. Sinks must not block.
type FollowSink interface {
	HandleFollowEvent(ctx context.Context, ev FollowEvent)
}

// FollowService owns follow graph transitions. It never pushes anything
// itself; subscribed sinks decide what a transition means to them.
type FollowService struct {
	follows repository.FollowRepository
	users   repository.UserRepository
	policy  *policy.Engine

	mu    sync.RWMutex
	sinks []FollowSink
}

// NewFollowService returns a new FollowService.
func NewFollowService(follows repository.FollowRepository, users repository.UserRepository, engine *policy.Engine) *FollowService {
	return &FollowService{follows: follows, users: users, policy: engine}
}

// Subscribe adds a sink for follow events.
func (s *FollowService) Subscribe(sink FollowSink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *FollowService) publish(ctx context.Context, kind FollowEventKind, edge *models.Follow) {
	s.mu.RLock()
	sinks := append([]FollowSink(nil), s.sinks...)
	s.mu.RUnlock()

	ev := FollowEvent{Kind: kind, Edge: *edge}
	observability.GlobalLogger.DebugContext(ctx, "follow event",
		slog.String("kind", kind.String()),
		slog.Uint64("follower_id", uint64(edge.FollowerID)),
		slog.Uint64("following_id", uint64(edge.FollowingID)),
	)
	for _, sink := range sinks {
		sink.HandleFollowEvent(ctx, ev)
	}
}

// RequestFollow creates an edge from followerID to followingID. Public
// targets are followed immediately; private targets get a pending request.
func (s *FollowService) RequestFollow(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	if followerID == followingID {
		return nil, models.NewInvalidArgumentError("You cannot follow yourself")
	}

	target, err := s.users.GetByID(ctx, followingID)
	if err != nil {
		return nil, err
	}

	status := models.FollowStatusAccepted
	if target.IsPrivate() {
		status = models.FollowStatusPending
	}

	edge := &models.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
		Status:      status,
	}
	if err := s.follows.Create(ctx, edge); err != nil {
		return nil, err
	}

	s.publish(ctx, FollowRequested, edge)
	return edge, nil
}

// RespondToRequest accepts or rejects the pending request followerID sent to ownerID.
// Rejecting deletes the edge.
func (s *FollowService) RespondToRequest(ctx context.Context, ownerID, followerID uint, accept bool) (*models.Follow, error) {
	if accept {
		edge, err := s.follows.Accept(ctx, followerID, ownerID)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, FollowAccepted, edge)
		return edge, nil
	}

	edge, err := s.follows.DeletePending(ctx, followerID, ownerID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, FollowRemoved, edge)
	return edge, nil
}

// Unfollow removes followerID's accepted edge to followingID.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followingID uint) error {
	edge, err := s.follows.DeleteAccepted(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	s.publish(ctx, FollowRemoved, edge)
	return nil
}

// RemoveFollower lets ownerID drop followerID.
func (s *FollowService) RemoveFollower(ctx context.Context, ownerID, followerID uint) error {
	return s.Unfollow(ctx, followerID, ownerID)
}

// ListAccepted returns ownerID's accepted edges in the given direction.
func (s *FollowService) ListAccepted(ctx context.Context, ownerID uint, direction models.FollowDirection) ([]models.Follow, error) {
	return s.follows.ListAccepted(ctx, ownerID, direction)
}

// ListPending returns requests waiting for ownerID's answer.
func (s *FollowService) ListPending(ctx context.Context, ownerID uint) ([]models.Follow, error) {
	return s.follows.ListPending(ctx, ownerID)
}

// ListFor returns ownerID's followers or followings as seen by actorID.
func (s *FollowService) ListFor(ctx context.Context, actorID, ownerID uint, direction models.FollowDirection) ([]models.Follow, error) {
	if err := s.policy.Authorize(ctx, actorID, ownerID); err != nil {
		return nil, err
	}
	return s.follows.ListAccepted(ctx, ownerID, direction)
}
