package server

import (
	"strings"

	"shutter/internal/service"

	"github.com/gofiber/fiber/v2"
)

// maxPostImageBytes bounds a post image upload before normalization.
const maxPostImageBytes = 10 << 20

type createPostRequest struct {
	Caption    string `json:"caption" form:"caption"`
	Visibility string `json:"visibility" form:"visibility"`
}

type updatePostRequest struct {
	Caption    *string `json:"caption"`
	Visibility *string `json:"visibility"`
}

// CreatePost handles POST /api/posts. Multipart bodies may carry an "image"
// file; JSON bodies create caption-only posts.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}

	var image []byte
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		data, err := formFile(c, "image", maxPostImageBytes)
		if err != nil {
			return s.respondError(c, err)
		}
		image = data
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:     currentUser(c),
		Caption:    req.Caption,
		Visibility: req.Visibility,
		Image:      image,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// ListPosts handles GET /api/posts
func (s *Server) ListPosts(c *fiber.Ctx) error {
	p, size := page(c)
	posts, err := s.postService.ListPublic(c.UserContext(), p, size, currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(posts)
}

// Explore handles GET /api/posts/explore
func (s *Server) Explore(c *fiber.Ctx) error {
	p, size := page(c)
	posts, err := s.postService.Explore(c.UserContext(), currentUser(c), p, size)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(posts)
}

// Feed handles GET /api/feed
func (s *Server) Feed(c *fiber.Ctx) error {
	p, size := page(c)
	posts, err := s.postService.Timeline(c.UserContext(), currentUser(c), p, size)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.GetPost(c.UserContext(), id, currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req updatePostRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID:     currentUser(c),
		PostID:     id,
		Caption:    req.Caption,
		Visibility: req.Visibility,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: currentUser(c),
		PostID: id,
	}); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	liked, err := s.postService.ToggleLike(c.UserContext(), id, currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"liked": liked})
}

// ListLikes handles GET /api/posts/:id/likes
func (s *Server) ListLikes(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p, size := page(c)
	users, err := s.postService.Likers(c.UserContext(), id, currentUser(c), p, size)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(users)
}
