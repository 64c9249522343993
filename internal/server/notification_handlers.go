package server

import (
	"github.com/gofiber/fiber/v2"
)

// ListNotifications handles GET /api/notifications
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	p, size := page(c)
	list, err := s.notificationService.List(c.UserContext(), currentUser(c), p, size)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(list)
}

// UnreadNotificationCount handles GET /api/notifications/unread-count
func (s *Server) UnreadNotificationCount(c *fiber.Ctx) error {
	n, err := s.notificationService.UnreadCount(c.UserContext(), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

// MarkNotificationRead handles PUT /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	n, err := s.notificationService.MarkAsRead(c.UserContext(), id, currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(n)
}

// MarkAllNotificationsRead handles PUT /api/notifications/read-all
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := s.notificationService.MarkAllAsRead(c.UserContext(), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}
