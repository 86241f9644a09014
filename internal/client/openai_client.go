package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// openAIAPI is the subset of *openai.Client used here
type openAIAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAIClient implements the script, image and narration executors
type OpenAIClient struct {
	api         openAIAPI
	apiKey      string
	scriptModel string
	imageModel  string
	speechModel string
	voice       string
}

// NewOpenAIClient creates a new OpenAI-backed executor
func NewOpenAIClient(cfg *config.OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newOpenAIClient(openai.NewClientWithConfig(oc), cfg)
}

func newOpenAIClient(api openAIAPI, cfg *config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		api:         api,
		apiKey:      cfg.APIKey,
		scriptModel: cfg.ScriptModel,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
		voice:       cfg.Voice,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *OpenAIClient) GenerateScript(ctx context.Context, story model.Story, durationMinutes int, shortForm bool) (*model.Script, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.scriptModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scriptSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildScriptPrompt(story, durationMinutes, shortForm)},
		},
		MaxTokens:   2000,
		Temperature: 0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(fmt.Errorf("openai chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, model.Transient(errors.New("no choices returned from OpenAI"))
	}
	return parseScript(resp.Choices[0].Message.Content, story, durationMinutes)
}

func (c *OpenAIClient) GenerateImage(ctx context.Context, scene model.Scene, resolution model.Resolution, shortForm bool) ([]byte, error) {
	size := openai.CreateImageSize1792x1024
	if shortForm {
		size = openai.CreateImageSize1024x1792
	}
	quality := openai.CreateImageQualityStandard
	if resolution == model.Resolution4K {
		quality = openai.CreateImageQualityHD
	}

	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         enhanceImagePrompt(scene),
		Model:          c.imageModel,
		N:              1,
		Size:           size,
		Quality:        quality,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, classifyOpenAIError(fmt.Errorf("openai image: %w", err))
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, model.Transient(errors.New("no image returned from OpenAI"))
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, model.Transient(fmt.Errorf("failed to decode image: %w", err))
	}
	return data, nil
}

func (c *OpenAIClient) GenerateNarration(ctx context.Context, scene model.Scene) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.speechModel),
		Input:          scene.Narration,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, classifyOpenAIError(fmt.Errorf("openai speech: %w", err))
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, model.Transient(fmt.Errorf("failed to read speech: %w", err))
	}
	if len(data) == 0 {
		return nil, model.Transient(errors.New("empty speech returned from OpenAI"))
	}
	return data, nil
}
