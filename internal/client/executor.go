package client

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// ScriptGenerator writes the scene-by-scene script for a story
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, story model.Story, durationMinutes int, shortForm bool) (*model.Script, error)
}

// ImageGenerator renders one still for a scene and returns PNG bytes
type ImageGenerator interface {
	GenerateImage(ctx context.Context, scene model.Scene, resolution model.Resolution, shortForm bool) ([]byte, error)
}

// NarrationGenerator synthesizes the voice-over of one scene as MP3 bytes
type NarrationGenerator interface {
	GenerateNarration(ctx context.Context, scene model.Scene) ([]byte, error)
}

// CompositionInput holds one image and one narration track per scene, in
// scene order.
type CompositionInput struct {
	Images    [][]byte
	Audio     [][]byte
	Width     int
	Height    int
	ShortForm bool
}

// VideoComposer muxes the scene stills and narration into an MP4
type VideoComposer interface {
	Compose(ctx context.Context, in CompositionInput) ([]byte, error)
}

// Executors bundles the four stage capabilities
type Executors struct {
	Script    ScriptGenerator
	Image     ImageGenerator
	Narration NarrationGenerator
	Composer  VideoComposer
}

// ProviderStatus reports which executors talk to real providers
type ProviderStatus struct {
	OpenAI bool `json:"openai"`
	FFmpeg bool `json:"ffmpeg"`
}

// NewExecutors wires the configured providers and falls back to the mock
// executors for anything that is not configured.
func NewExecutors(cfg *config.Config) (Executors, ProviderStatus) {
	ex := MockExecutors()
	var status ProviderStatus

	openAI := NewOpenAIClient(&cfg.OpenAI)
	if openAI.IsConfigured() {
		ex.Script, ex.Image, ex.Narration = openAI, openAI, openAI
		status.OpenAI = true
	} else {
		log.Info("OpenAI not configured, using mock script, image and narration generators")
	}

	ffmpeg := NewFFmpegComposer(cfg.FFmpeg.Path)
	if ffmpeg.IsConfigured() {
		ex.Composer = ffmpeg
		status.FFmpeg = true
	} else {
		log.WithField("path", cfg.FFmpeg.Path).Info("ffmpeg not available, using mock composer")
	}

	return ex, status
}
