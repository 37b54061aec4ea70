// Package policy decides who may see a user's content, streams and follow lists.
// Every read-access check in the service goes through this package.
package policy

import (
	"context"

	"trashtalk/internal/models"
)

// CanView reports whether actorID may view content owned by ownerID.
// edge must be the current actorID->ownerID edge (or nil), looked up fresh by the caller.
func CanView(actorID, ownerID uint, visibility models.Visibility, edge *models.Follow) bool {
	if actorID == ownerID {
		return true
	}
	if visibility == models.VisibilityPublic {
		return true
	}
	return edge != nil &&
		edge.Status == models.FollowStatusAccepted &&
		edge.FollowerID == actorID &&
		edge.FollowingID == ownerID
}

// UserLookup resolves a user's profile.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// EdgeLookup fetches the follow edge between two users, or nil if none exists.
type EdgeLookup interface {
	Get(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
}

// OwnerLookup resolves the owner of an external resource such as a post or challenge.
type OwnerLookup func(ctx context.Context, resourceID uint) (uint, error)

// Engine evaluates CanView against the store. It never caches edges or profiles.
type Engine struct {
	users UserLookup
	edges EdgeLookup
}

// NewEngine creates an Engine.
func NewEngine(users UserLookup, edges EdgeLookup) *Engine {
	return &Engine{users: users, edges: edges}
}

// CanViewUser looks up the owner and the actor->owner edge and applies CanView.
func (e *Engine) CanViewUser(ctx context.Context, actorID, ownerID uint) (bool, error) {
	if actorID == ownerID {
		return true, nil
	}
	owner, err := e.users.GetByID(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if !owner.IsPrivate() {
		return true, nil
	}
	edge, err := e.edges.Get(ctx, actorID, ownerID)
	if err != nil {
		return false, err
	}
	return CanView(actorID, ownerID, owner.Visibility, edge), nil
}

// Authorize returns a Forbidden error when actorID may not view ownerID's content.
func (e *Engine) Authorize(ctx context.Context, actorID, ownerID uint) error {
	ok, err := e.CanViewUser(ctx, actorID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("This profile is private")
	}
	return nil
}

// AuthorizeResource resolves the resource owner and applies Authorize.
// It returns the owner id so callers do not look it up twice.
func (e *Engine) AuthorizeResource(ctx context.Context, actorID, resourceID uint, owner OwnerLookup) (uint, error) {
	ownerID, err := owner(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	return ownerID, e.Authorize(ctx, actorID, ownerID)
}

// FilterVisible keeps the owner ids actorID may view, preserving order.
func (e *Engine) FilterVisible(ctx context.Context, actorID uint, ownerIDs []uint) ([]uint, error) {
	out := make([]uint, 0, len(ownerIDs))
	for _, id := range ownerIDs {
		ok, err := e.CanViewUser(ctx, actorID, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}
