package posts

import (
	"strconv"

	"backend-socialpost/internal/auth"
	"backend-socialpost/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the post routes. Static paths such as
// /get-signed-url must be registered on r before this call.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := auth.UserID(c)
		var req CreatePostRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		created, err := svc.CreatePost(c.UserContext(), userID, req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/", optionalAuth, func(c *fiber.Ctx) error {
		page := 1
		if raw := c.Query("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return apperr.Validation("page must be a positive integer")
			}
			page = n
		}
		viewerID, _ := auth.UserID(c)
		result, err := svc.ListPosts(c.UserContext(), viewerID, page)
		if err != nil {
			return err
		}
		return c.JSON(result)
	})

	r.Get("/:id", optionalAuth, func(c *fiber.Ctx) error {
		postID, err := postIDParam(c)
		if err != nil {
			return err
		}
		viewerID, _ := auth.UserID(c)
		post, err := svc.GetPost(c.UserContext(), viewerID, postID)
		if err != nil {
			return err
		}
		return c.JSON(post)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		postID, err := postIDParam(c)
		if err != nil {
			return err
		}
		userID, _ := auth.UserID(c)
		if err := svc.DeletePost(c.UserContext(), userID, postID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		postID, err := postIDParam(c)
		if err != nil {
			return err
		}
		userID, _ := auth.UserID(c)
		if err := svc.Like(c.UserContext(), userID, postID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Post("/:id/unlike", authMiddleware, func(c *fiber.Ctx) error {
		postID, err := postIDParam(c)
		if err != nil {
			return err
		}
		userID, _ := auth.UserID(c)
		if err := svc.Unlike(c.UserContext(), userID, postID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func postIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.NotFound("post not found")
	}
	return id, nil
}
