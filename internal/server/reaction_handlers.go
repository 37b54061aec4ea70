package server

import (
	"trashtalk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.reactions.Like(c.UserContext(), userIDFrom(c), postID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// VoteChallenge handles POST /api/challenges/:id/vote
func (s *Server) VoteChallenge(c *fiber.Ctx) error {
	challengeID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	votes, err := s.reactions.VoteChallenge(c.UserContext(), userIDFrom(c), challengeID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"challenge_id": challengeID, "votes": votes})
}
