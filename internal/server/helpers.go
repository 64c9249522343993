package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/observability"
	"shutter/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// statusFor maps an AppError code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Anything that is not an
// AppError, or is an internal one, is logged and hidden behind a generic
// message.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	code := models.ErrorCode(err)
	status := statusFor(code)
	if status == fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
		return c.Status(status).JSON(models.ErrorResponse{
			Error: "Internal server error",
			Code:  models.CodeInternal,
		})
	}

	var appErr *models.AppError
	errors.As(err, &appErr)
	return c.Status(status).JSON(models.ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = s.respondError(c, models.NewValidationError("Invalid "+param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// page reads ?page= and ?size=; the service layer clamps them.
func page(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("size", service.DefaultPageSize)
}

// bind parses the JSON body into req and runs its validate tags. On failure
// it writes a 400 response and returns errResponseWritten.
func (s *Server) bind(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		_ = s.respondError(c, models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	if err := s.validate.Struct(req); err != nil {
		_ = s.respondError(c, models.NewValidationError(validationMessage(err)))
		return errResponseWritten
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// formFile reads an uploaded multipart file, refusing anything over max
// bytes. A missing field yields nil data and no error.
func formFile(c *fiber.Ctx, field string, max int64) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	if fh.Size > max {
		return nil, models.NewValidationError(fmt.Sprintf("%s exceeds %d bytes", field, max))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if int64(len(data)) > max {
		return nil, models.NewValidationError(fmt.Sprintf("%s exceeds %d bytes", field, max))
	}
	return data, nil
}

func currentUser(c *fiber.Ctx) uint {
	return middleware.UserID(c)
}
