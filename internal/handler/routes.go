package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/zentag/api/internal/middleware"
	ws "github.com/zentag/api/internal/websocket"
)

// Routes bundles everything RegisterRoutes wires onto the app
type Routes struct {
	Clips       *ClipHandler
	Streams     *StreamHandler
	Health      *HealthHandler
	Auth        fiber.Handler
	RateLimiter *middleware.RateLimiter
	Hub         *ws.Hub // nil disables the WebSocket feed

	ClipsPerHour   int
	StreamsPerHour int
}

// RegisterRoutes mounts the HTTP surface. Worker callbacks are mounted
// without authentication; the AI servers carry no credentials.
func RegisterRoutes(app *fiber.App, r Routes) {
	auth := r.Auth

	app.Get("/", r.Health.Root)
	app.Get("/health", r.Health.Health)

	clips := app.Group("/api/clips")
	clips.Post("/webhook/:clipId", r.Clips.Webhook)
	clips.Post("/generate", auth, r.RateLimiter.ClipLimit(r.ClipsPerHour), r.Clips.Generate)
	clips.Get("/progress", auth, r.Clips.Progress)
	clips.Get("/stream/:streamId", auth, r.Clips.ListByStream)
	clips.Put("/update/:clipId", auth, r.Clips.Webhook)
	clips.Get("/:clipId", auth, r.Clips.Get)
	clips.Post("/:clipId/cancel", auth, r.Clips.Cancel)

	streams := app.Group("/api/streams")
	streams.Post("/webhook/ai-status", r.Streams.Webhook)
	streamLimit := r.RateLimiter.StreamLimit(r.StreamsPerHour)
	streams.Post("/", auth, streamLimit, r.Streams.Create)
	streams.Post("/create", auth, streamLimit, r.Streams.Create)
	streams.Get("/", auth, r.Streams.List)
	streams.Get("/progress", auth, r.Streams.Progress)
	streams.Get("/:id", auth, r.Streams.Get)
	streams.Post("/:id/cancel", auth, r.Streams.Cancel)

	if r.Hub == nil {
		return
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:recordId", auth, websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, utils.CopyString(c.Params("recordId")))
	}))
}
