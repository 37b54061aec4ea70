package server

import (
	"trashtalk/internal/models"

	"github.com/gofiber/fiber/v2"
)

type messageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type advertisementRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"max=2000"`
	URL   string `json:"url" validate:"omitempty,url"`
}

// ListNotifications handles GET /api/notifications
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	items, err := s.notifications.List(c.UserContext(), userIDFrom(c), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(items)
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	reader, err := s.notifications.MarkRead(c.UserContext(), id, userIDFrom(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(reader)
}

// EditNotification handles PATCH /api/notifications/:id
func (s *Server) EditNotification(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req messageRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	n, err := s.notifications.Edit(c.UserContext(), id, userIDFrom(c), req.Message)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(n)
}

// DeleteNotification handles DELETE /api/notifications/:id
func (s *Server) DeleteNotification(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.notifications.Delete(c.UserContext(), id, userIDFrom(c)); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// BroadcastNotification handles POST /api/admin/notifications
func (s *Server) BroadcastNotification(c *fiber.Ctx) error {
	var req messageRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	n, err := s.dispatcher.AdminBroadcast(c.UserContext(), userIDFrom(c), req.Message)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

// PublishAdvertisement handles POST /api/admin/advertisements. Ads are pushed, never stored.
func (s *Server) PublishAdvertisement(c *fiber.Ctx) error {
	var req advertisementRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	sent := s.dispatcher.AdvertisementPublished(c.UserContext(), req)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"delivered": sent})
}
