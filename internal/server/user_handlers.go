package server

import (
	"context"
	"strconv"

	"shutter/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetProfile handles GET /api/users/:id. A non-numeric id is looked up as a
// username.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	param := c.Params("id")
	var (
		profile *models.UserProfile
		err     error
	)
	if id, convErr := strconv.ParseUint(param, 10, 64); convErr == nil && id > 0 {
		profile, err = s.userService.GetProfile(c.UserContext(), uint(id), currentUser(c))
	} else {
		profile, err = s.userService.GetProfileByUsername(c.UserContext(), param, currentUser(c))
	}
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(profile)
}

// ListUserPosts handles GET /api/users/:id/posts
func (s *Server) ListUserPosts(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p, size := page(c)
	posts, err := s.postService.ListByUser(c.UserContext(), id, currentUser(c), p, size)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(posts)
}

// ListFollowers handles GET /api/users/:id/followers
func (s *Server) ListFollowers(c *fiber.Ctx) error {
	return s.listEdges(c, s.userService.Followers)
}

// ListFollowing handles GET /api/users/:id/following
func (s *Server) ListFollowing(c *fiber.Ctx) error {
	return s.listEdges(c, s.userService.Following)
}

func (s *Server) listEdges(c *fiber.Ctx, list func(context.Context, uint, int, int) (*models.UserPage, error)) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p, size := page(c)
	users, err := list(c.UserContext(), id, p, size)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(users)
}

// ToggleFollow handles POST /api/users/:id/follow
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	following, err := s.userService.ToggleFollow(c.UserContext(), currentUser(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"following": following})
}

// UploadAvatar handles POST /api/users/me/avatar (multipart field "avatar").
// The size limit is enforced by the service.
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	data, err := formFile(c, "avatar", bodyLimit)
	if err != nil {
		return s.respondError(c, err)
	}
	url, err := s.userService.UploadAvatar(c.UserContext(), currentUser(c), data)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"profile_image_url": url})
}
