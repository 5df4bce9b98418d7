package trail

import (
	"context"
	"errors"
	"strconv"

	"backend-trailtracker/internal/auth"
	"backend-trailtracker/internal/livequery"
	"backend-trailtracker/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	defaultRadiusKm = 5.0
	publicFilterKey = "public_filter"
)

type typeInfo struct {
	Type  TrailType `json:"type"`
	Glyph string    `json:"glyph"`
}

type locationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/types", func(c *fiber.Ctx) error {
		out := make([]typeInfo, 0, len(TrailTypes))
		for _, t := range TrailTypes {
			out = append(out, typeInfo{Type: t, Glyph: t.Glyph()})
		}
		return c.JSON(out)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		var patch Patch
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&patch); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		trail, err := svc.CreateTrail(c.Context(), patch.Apply(New(sess.UserID)))
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(trail)
	})

	r.Get("/public", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		filter, err := publicFilter(c, sess)
		if err != nil {
			return err
		}
		trails, err := svc.ListPublic(c.Context(), filter)
		if err != nil {
			return err
		}
		return c.JSON(trails)
	})

	r.Get("/nearby", authMiddleware, func(c *fiber.Ctx) error {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat required")
		}
		lng, err := strconv.ParseFloat(c.Query("lng"), 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lng required")
		}
		radius := defaultRadiusKm
		if raw := c.Query("radius_km"); raw != "" {
			radius, err = strconv.ParseFloat(raw, 64)
			if err != nil || radius <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "radius_km must be positive")
			}
		}
		trails, err := svc.Nearby(c.Context(), lat, lng, radius)
		if err != nil {
			return err
		}
		return c.JSON(trails)
	})

	r.Get("/mine", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		trails, err := svc.ListByCreator(c.Context(), sess.UserID)
		if err != nil {
			return err
		}
		return c.JSON(trails)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		trail, err := svc.GetVisibleTrail(c.Context(), c.Params("id"), sess.UserID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trail)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		var patch Patch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trail, err := svc.UpdateTrail(c.Context(), c.Params("id"), sess.UserID, patch)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trail)
	})

	r.Put("/:id/start", authMiddleware, locationHandler(svc.SetStartPoint))
	r.Put("/:id/end", authMiddleware, locationHandler(svc.SetEndPoint))
}

// RegisterStreamRoutes serves the public and own trail lists as live queries.
func RegisterStreamRoutes(r fiber.Router, svc *Service, hub *stream.Hub, authMiddleware fiber.Handler) {
	r.Get("/ws/trails/public", authMiddleware, requireUpgrade, func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		filter, err := publicFilter(c, sess)
		if err != nil {
			return err
		}
		c.Locals(publicFilterKey, filter)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		filter, _ := c.Locals(publicFilterKey).(PublicFilter)
		q := livequery.New(func(ctx context.Context) ([]Trail, error) {
			return svc.ListPublic(ctx, filter)
		})
		stream.ServeLive(c, hub, stream.TopicPublicTrails, q)
	}))

	r.Get("/ws/trails/mine", authMiddleware, requireUpgrade, websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		q := livequery.New(func(ctx context.Context) ([]Trail, error) {
			return svc.ListByCreator(ctx, userID)
		})
		stream.ServeLive(c, hub, stream.CreatorTopic(userID), q)
	}))
}

func requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

type locationSetter func(ctx context.Context, id, editorID string, loc Location) (Trail, error)

func locationHandler(set locationSetter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := auth.MustSession(c)
		if err != nil {
			return err
		}
		var req locationRequest
		if err := c.BodyParser(&req); err != nil || req.Lat == nil || req.Lng == nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		trail, err := set(c.Context(), c.Params("id"), sess.UserID, Location{Latitude: *req.Lat, Longitude: *req.Lng})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trail)
	}
}

func publicFilter(c *fiber.Ctx, sess auth.Session) (PublicFilter, error) {
	filter := PublicFilter{Name: c.Query("q")}
	if raw := c.Query("type"); raw != "" {
		t, err := ParseTrailType(raw)
		if err != nil {
			return PublicFilter{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		filter.Type = t
	}
	if c.QueryBool("exclude_mine") {
		filter.ExcludeCreator = sess.UserID
	}
	return filter, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}
