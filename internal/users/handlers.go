package users

import (
	"backend-socialpost/internal/auth"
	"backend-socialpost/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, serviceMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, ok := auth.UserID(c)
		if !ok {
			return apperr.Unauthorized("missing identity")
		}
		profile, err := svc.GetCurrentUser(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(profile)
	})

	r.Post("/", serviceMiddleware, func(c *fiber.Ctx) error {
		var req CreateUserRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		profile, err := svc.CreateUser(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(profile)
	})
}
