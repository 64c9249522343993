package middleware

import (
	"strings"

	"shutter/internal/models"
	"shutter/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(token string) (uint, error)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// user id in c.Locals("userID").
func AuthRequired(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, msg := bearerToken(c)
		if token == "" {
			return unauthorized(c, msg)
		}
		userID, err := v.ValidateToken(token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}
		setUser(c, userID)
		return c.Next()
	}
}

// AuthOptional sets the user when a valid token is present and otherwise
// continues anonymously. A malformed or expired token is treated as absent.
func AuthOptional(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, _ := bearerToken(c); token != "" {
			if userID, err := v.ValidateToken(token); err == nil {
				setUser(c, userID)
			}
		}
		return c.Next()
	}
}

// WebSocketAuthRequired accepts the token from the "token" query parameter,
// since browsers cannot set headers on a websocket handshake.
func WebSocketAuthRequired(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			var msg string
			if token, msg = bearerToken(c); token == "" {
				return unauthorized(c, msg)
			}
		}
		userID, err := v.ValidateToken(token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}
		setUser(c, userID)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or 0 for anonymous requests.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}

func bearerToken(c *fiber.Ctx) (string, string) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", "Invalid authorization header format"
	}
	return strings.TrimSpace(token), ""
}

func setUser(c *fiber.Ctx, userID uint) {
	c.Locals(LocalUserID, userID)
	c.SetUserContext(observability.WithUserID(c.UserContext(), userID))
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: msg,
		Code:  models.CodeUnauthorized,
	})
}
