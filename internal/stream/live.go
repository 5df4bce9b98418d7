package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"backend-trailtracker/internal/livequery"

	"github.com/gofiber/websocket/v2"
)

// ServeLive runs q for the lifetime of the connection. The query refreshes
// on every change published to topic and each state is written as JSON.
func ServeLive[T any](c *websocket.Conn, hub *Hub, topic string, q *livequery.Query[T]) {
	client := hub.Register(topic)
	defer hub.Unregister(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan []byte, 4)
	unsubscribe := q.Subscribe(func(s livequery.State[T]) {
		payload, err := json.Marshal(s)
		if err != nil {
			slog.Error("encode live query state", "topic", topic, "error", err)
			return
		}
		select {
		case out <- payload:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	go q.Watch(ctx, client.Send)
	Serve(c, out)
}
