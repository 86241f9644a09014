package handler

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/api/pkg/response"
)

// Routes holds what RegisterRoutes mounts. Auth and GenerateLimit are
// optional.
type Routes struct {
	Health        *HealthHandler
	Video         *VideoHandler
	Auth          fiber.Handler
	GenerateLimit fiber.Handler
}

// RegisterRoutes mounts the HTTP and websocket surface on app
func RegisterRoutes(app *fiber.App, r Routes) {
	app.Get("/", r.Health.Root)
	app.Get("/health", r.Health.Health)

	var guards []fiber.Handler
	if r.Auth != nil {
		guards = append(guards, r.Auth)
	}

	api := app.Group("/api", guards...)
	api.Get("/stories", r.Video.Stories)

	var generate []fiber.Handler
	if r.GenerateLimit != nil {
		generate = append(generate, r.GenerateLimit)
	}
	api.Post("/videos", append(generate, r.Video.Generate)...)
	api.Get("/videos/:jobId", r.Video.Status)
	api.Get("/videos/:jobId/artifact", r.Video.Artifact)
	api.Get("/videos/:jobId/download", r.Video.Download)

	// WebSocket routes
	wsGuards := make([]fiber.Handler, 0, len(guards)+1)
	wsGuards = append(wsGuards, guards...)
	wsGuards = append(wsGuards, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsGroup := app.Group("/ws", wsGuards...)
	wsGroup.Get("/videos/:jobId", websocket.New(r.Video.Watch))
}

// ErrorHandler renders errors that escaped a handler in the API error format
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusUnauthorized:
		errCode = response.CodeUnauthorized
	}
	return response.Error(c, code, errCode, message, nil)
}
