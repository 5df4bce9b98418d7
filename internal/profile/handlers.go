package profile

import (
	"errors"

	"backend-trailtracker/internal/auth"
	"backend-trailtracker/internal/trail"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		p, err := svc.Ensure(c.Context(), sess.UserID)
		if err != nil {
			return err
		}
		return c.JSON(p)
	})

	r.Get("/trails", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		collections, err := svc.TaggedTrails(c.Context(), sess.UserID)
		if err != nil {
			return err
		}
		return c.JSON(collections)
	})
}

// RegisterTagRoutes mounts POST /:id/tags on the trails router.
func RegisterTagRoutes(r fiber.Router, svc *Service, trails *trail.Service, authMiddleware fiber.Handler) {
	r.Post("/:id/tags", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		var body struct {
			Tag string `json:"tag"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "tag required")
		}
		tag, err := ParseTag(body.Tag)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		t, err := trails.GetVisibleTrail(c.Context(), c.Params("id"), sess.UserID)
		if errors.Is(err, trail.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return err
		}

		tagged, err := svc.TagTrail(c.Context(), t, tag)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"tagged": tagged})
	})
}
