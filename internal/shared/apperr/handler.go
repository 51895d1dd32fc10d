package apperr

import (
	"errors"

	"backend-socialpost/internal/logging"

	"github.com/gofiber/fiber/v2"
)

// Status returns the HTTP status for err; unknown errors are 500.
func Status(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every handler error as {"error": msg}. Internal errors
// are logged and never echoed to the client.
func ErrorHandler(logger logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := Status(err)
		msg := err.Error()
		if code == fiber.StatusInternalServerError {
			logger.Error(c.UserContext(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
			msg = "internal error"
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
