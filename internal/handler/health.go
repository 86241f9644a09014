package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/api/internal/client"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Backends names the implementation behind each pluggable component
type Backends struct {
	Storage  string `json:"storage"`
	JobStore string `json:"jobstore"`
	Queue    string `json:"queue"`
}

type HealthHandler struct {
	providers client.ProviderStatus
	backends  Backends
	auth      bool
}

func NewHealthHandler(providers client.ProviderStatus, backends Backends, authEnabled bool) *HealthHandler {
	return &HealthHandler{providers: providers, backends: backends, auth: authEnabled}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":   "storyreel-api",
		"version":   Version,
		"timestamp": time.Now().Unix(),
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"services": fiber.Map{
			"openai": h.providers.OpenAI,
			"ffmpeg": h.providers.FFmpeg,
			"auth":   h.auth,
		},
		"backends": h.backends,
	})
}
