package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/storyreel/api/internal/model"
)

const scriptSystemPrompt = "You are a biblical storyteller creating engaging, family-friendly video scripts."

func buildScriptPrompt(story model.Story, durationMinutes int, shortForm bool) string {
	format := "detailed narrative"
	layout := "Traditional narrative"
	if shortForm {
		format = "short-form, engaging vertical video"
		layout = "Short-form, vertical 9:16"
	}

	return fmt.Sprintf(`Create a %s script for a %d-minute video about the Bible story: %s.

Requirements:
- Duration: %d minutes
- Format: %s
- Between %d and %d scenes
- Each scene has narration text and a visual description for image generation
- Engaging and educational content
- Family-friendly language

Respond with JSON only, in this format:
{
  "title": "Story Title",
  "scenes": [
    {
      "scene_number": 1,
      "duration": 30,
      "narration": "Text to be spoken",
      "image_description": "Detailed description for image generation"
    }
  ]
}`, format, durationMinutes, story.Title, durationMinutes, layout, minScenes(durationMinutes), maxScenes(durationMinutes))
}

func minScenes(durationMinutes int) int {
	return max(2, durationMinutes/5)
}

func maxScenes(durationMinutes int) int {
	return max(minScenes(durationMinutes)+2, durationMinutes/2)
}

// parseScript decodes a generated script. A reply that is not JSON becomes
// a single scene carrying the whole text; a script without scenes is
// rejected as permanent.
func parseScript(content string, story model.Story, durationMinutes int) (*model.Script, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var script model.Script
	if err := json.Unmarshal([]byte(content), &script); err != nil {
		if content == "" {
			return nil, model.Permanent(errors.New("empty script"))
		}
		return &model.Script{
			Title: story.Title,
			Scenes: []model.Scene{{
				Number:           1,
				DurationSec:      durationMinutes * 60,
				Narration:        content,
				ImageDescription: "Biblical scene depicting " + story.Title,
			}},
		}, nil
	}

	if len(script.Scenes) == 0 {
		return nil, model.Permanent(errors.New("script has no scenes"))
	}
	if script.Title == "" {
		script.Title = story.Title
	}
	for i := range script.Scenes {
		sc := &script.Scenes[i]
		sc.Number = i + 1
		if strings.TrimSpace(sc.Narration) == "" {
			return nil, model.Permanent(fmt.Errorf("scene %d has no narration", sc.Number))
		}
		if strings.TrimSpace(sc.ImageDescription) == "" {
			sc.ImageDescription = "Biblical scene depicting " + story.Title
		}
	}
	return &script, nil
}

// enhanceImagePrompt adds the house art direction to a scene description
func enhanceImagePrompt(scene model.Scene) string {
	return fmt.Sprintf("Biblical art style, %s, cinematic composition, warm lighting, "+
		"ancient Middle Eastern setting, highly detailed, dramatic atmosphere, religious art style, "+
		"no text, family-friendly content. Avoid: inappropriate content, violence, scary, dark.",
		strings.TrimSpace(scene.ImageDescription))
}
