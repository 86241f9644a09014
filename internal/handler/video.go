package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	ws "github.com/storyreel/api/internal/websocket"
	"github.com/storyreel/api/pkg/response"
)

type VideoHandler struct {
	service   *service.Orchestrator
	artifacts artifact.Store
	catalog   *catalog.Catalog
	hub       *ws.Hub
	validator *validator.Validate
}

func NewVideoHandler(svc *service.Orchestrator, artifacts artifact.Store, cat *catalog.Catalog, hub *ws.Hub, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		artifacts: artifacts,
		catalog:   cat,
		hub:       hub,
		validator: v,
	}
}

// Generate handles POST /api/videos
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	resolution, ok := model.ParseResolution(req.Resolution)
	if !ok {
		return response.ValidationError(c, "Validation failed", map[string]string{
			"resolution": fmt.Sprintf("must be one of %v", model.ValidResolutions),
		})
	}

	snap, err := h.service.Submit(c.UserContext(), model.JobRequest{
		StoryID:         req.Story,
		DurationMinutes: req.Duration,
		Resolution:      resolution,
		ShortForm:       *req.TikTok,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, model.GenerateVideoResponse{
		JobID:     snap.JobID,
		Status:    snap.Status,
		Message:   "Video generation started",
		CreatedAt: snap.CreatedAt,
	})
}

// Status handles GET /api/videos/:jobId
func (h *VideoHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	snap, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, snap)
}

// Artifact handles GET /api/videos/:jobId/artifact
func (h *VideoHandler) Artifact(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	ref, err := h.service.GetArtifact(c.UserContext(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	result := model.ArtifactResponse{JobID: jobID, Artifact: *ref}
	if linker, ok := h.artifacts.(artifact.Linker); ok {
		url, err := linker.Link(c.UserContext(), *ref)
		if err != nil {
			log.WithError(err).WithField("job_id", jobID).Warn("Failed to link artifact")
		} else {
			result.URL = url
		}
	}

	return response.OK(c, result)
}

// Download handles GET /api/videos/:jobId/download
func (h *VideoHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	ref, err := h.service.GetArtifact(c.UserContext(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	data, err := h.artifacts.Get(c.UserContext(), *ref)
	if err != nil {
		log.WithError(err).WithField("job_id", jobID).Error("Failed to read video artifact")
		return serviceError(c, err)
	}

	filename := "video"
	if snap, err := h.service.GetStatus(c.UserContext(), jobID); err == nil {
		if story, ok := h.catalog.Lookup(snap.Story); ok {
			filename = story.Title
		}
	}

	c.Set(fiber.HeaderContentType, ref.Kind.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s%s"`, sanitizeFilename(filename), ref.Kind.Extension()))
	return c.Send(data)
}

// Stories handles GET /api/stories
func (h *VideoHandler) Stories(c *fiber.Ctx) error {
	return response.OK(c, model.StoriesResponse{Stories: h.catalog.List()})
}

// Watch serves GET /ws/videos/:jobId
func (h *VideoHandler) Watch(c *websocket.Conn) {
	jobID := c.Params("jobId")
	snap, err := h.service.GetStatus(context.Background(), jobID)
	if err != nil {
		code := response.CodeServiceError
		if errors.Is(err, model.ErrNotFound) {
			code = response.CodeNotFound
		}
		c.WriteJSON(model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: jobID,
			Error: model.WSError{Code: code, Message: err.Error()},
		})
		c.Close()
		return
	}
	h.hub.HandleConnection(c, jobID, snap)
}

// serviceError maps orchestrator errors onto response codes
func serviceError(c *fiber.Ctx, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return response.ValidationError(c, verr.Error(), map[string]string{verr.Field: verr.Message})
	case errors.Is(err, model.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrNotReady):
		return response.NotReady(c, "Video is not ready yet", nil)
	}
	return response.ServiceError(c, err.Error())
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
