package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TopicGuard reports whether the request may listen on topic.
type TopicGuard func(c *fiber.Ctx, topic string) bool

func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler, guard TopicGuard) {
	r.Get("/ws/changes/:topic", authMiddleware, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if guard != nil && !guard(c, c.Params("topic")) {
			return fiber.NewError(fiber.StatusForbidden, "topic not allowed")
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("topic"))
		defer hub.Unregister(client)
		Serve(c, client.Send)
	}))
}

// Serve writes every message from send to the connection until send is
// closed, a write fails, or the peer goes away.
func Serve(c *websocket.Conn, send <-chan []byte) {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
