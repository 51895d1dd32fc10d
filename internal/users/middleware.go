package users

import (
	"crypto/subtle"
	"strings"

	"backend-socialpost/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware admits internal callers presenting one of the
// allowed tokens, either raw or as "Bearer <token>".
func ServiceTokenMiddleware(allowed []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(rest)
		}
		if token == "" {
			return apperr.Unauthorized("missing service token")
		}

		match := 0
		for _, candidate := range allowed {
			match |= subtle.ConstantTimeCompare([]byte(token), []byte(candidate))
		}
		if match != 1 {
			return apperr.Unauthorized("invalid service token")
		}
		return c.Next()
	}
}
