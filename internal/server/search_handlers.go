package server

import (
	"github.com/gofiber/fiber/v2"
)

// Search handles GET /api/search?q=. A "#tag" query searches by hashtag.
func (s *Server) Search(c *fiber.Ctx) error {
	res, err := s.searchService.Search(c.UserContext(), c.Query("q"), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(res)
}

// Autocomplete handles GET /api/search/autocomplete?q=
func (s *Server) Autocomplete(c *fiber.Ctx) error {
	res, err := s.searchService.Autocomplete(c.UserContext(), c.Query("q"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(res)
}
