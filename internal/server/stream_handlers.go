package server

import (
	"trashtalk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListStreams handles GET /api/streams
func (s *Server) ListStreams(c *fiber.Ctx) error {
	streams, err := s.streams.ActiveStreams(c.UserContext(), userIDFrom(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(streams)
}

// GetStream handles GET /api/streams/:id
func (s *Server) GetStream(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	stream, err := s.streams.Get(c.UserContext(), userIDFrom(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(stream)
}

// EndStream handles POST /api/streams/:id/end
func (s *Server) EndStream(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.streams.End(c.UserContext(), userIDFrom(c), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
