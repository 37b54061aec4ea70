package server

import (
	"trashtalk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RequestFollow handles POST /api/follows/:userId
func (s *Server) RequestFollow(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	edge, err := s.follows.RequestFollow(c.UserContext(), userIDFrom(c), targetID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(edge)
}

// AcceptFollow handles POST /api/follows/:userId/accept. The caller is the followed user.
func (s *Server) AcceptFollow(c *fiber.Ctx) error {
	return s.respondToFollow(c, true)
}

// RejectFollow handles POST /api/follows/:userId/reject
func (s *Server) RejectFollow(c *fiber.Ctx) error {
	return s.respondToFollow(c, false)
}

func (s *Server) respondToFollow(c *fiber.Ctx, accept bool) error {
	followerID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	edge, err := s.follows.RespondToRequest(c.UserContext(), userIDFrom(c), followerID, accept)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if !accept {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(edge)
}

// Unfollow handles DELETE /api/follows/:userId
func (s *Server) Unfollow(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.follows.Unfollow(c.UserContext(), userIDFrom(c), targetID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveFollower handles DELETE /api/followers/:userId
func (s *Server) RemoveFollower(c *fiber.Ctx) error {
	followerID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.follows.RemoveFollower(c.UserContext(), userIDFrom(c), followerID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListPendingFollows handles GET /api/follows/pending
func (s *Server) ListPendingFollows(c *fiber.Ctx) error {
	edges, err := s.follows.ListPending(c.UserContext(), userIDFrom(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(edges)
}

// ListFollowers handles GET /api/users/:id/followers
func (s *Server) ListFollowers(c *fiber.Ctx) error {
	return s.listFollows(c, models.Followers)
}

// ListFollowing handles GET /api/users/:id/following
func (s *Server) ListFollowing(c *fiber.Ctx) error {
	return s.listFollows(c, models.Following)
}

func (s *Server) listFollows(c *fiber.Ctx, direction models.FollowDirection) error {
	ownerID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	edges, err := s.follows.ListFor(c.UserContext(), userIDFrom(c), ownerID, direction)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(edges)
}

// GetOnlineStatus handles GET /api/users/:id/online
func (s *Server) GetOnlineStatus(c *fiber.Ctx) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	if err := s.policy.Authorize(ctx, userIDFrom(c), targetID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": targetID,
		"online":  s.registry.IsOnline(ctx, targetID),
	})
}
