package storage

import (
	"strings"

	"backend-socialpost/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

// MaxKeyLen matches the image_keys.key column.
const MaxKeyLen = 200

// maxFileNameLen leaves room for the 32-char hex prefix and the dash.
const maxFileNameLen = MaxKeyLen - 33

func RegisterRoutes(r fiber.Router, p *Presigner, authMiddleware fiber.Handler) {
	r.Get("/get-signed-url", authMiddleware, func(c *fiber.Ctx) error {
		fileName := strings.TrimSpace(c.Query("file_name"))
		fileType := strings.TrimSpace(c.Query("file_type"))
		if fileName == "" || fileType == "" {
			return apperr.Validation("file_name and file_type are required")
		}
		if len(fileName) > maxFileNameLen {
			return apperr.Validation("file_name must be at most %d characters", maxFileNameLen)
		}

		key := NewKey(fileName)
		url, err := p.PresignPut(c.UserContext(), key, fileType)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"url": url,
			"key": key,
		})
	})
}
