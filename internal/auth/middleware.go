package auth

import (
	"strings"

	"backend-socialpost/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

const userIDKey = "user_id"

// JWTMiddleware validates bearer tokens and stores the account id in locals.
func JWTMiddleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return apperr.Unauthorized("missing bearer token")
		}
		return verifyInto(c, tokens, token)
	}
}

// OptionalJWTMiddleware lets anonymous requests through; a presented token
// must still be valid.
func OptionalJWTMiddleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}
		token := bearerFromHeader(header)
		if token == "" {
			return apperr.Unauthorized("malformed authorization header")
		}
		return verifyInto(c, tokens, token)
	}
}

func verifyInto(c *fiber.Ctx, tokens *Tokens, token string) error {
	id, err := tokens.Verify(token)
	if err != nil {
		return apperr.Unauthorized("token invalid")
	}
	c.Locals(userIDKey, id)
	return c.Next()
}

// UserID returns the verified caller id set by the middleware.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(userIDKey).(int64)
	return id, ok && id > 0
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
