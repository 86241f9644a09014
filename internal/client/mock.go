package client

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/storyreel/api/internal/model"
)

// The mock executors produce small deterministic artifacts without any
// provider. They stand in when credentials or ffmpeg are missing.

type MockScriptGenerator struct{}

func (MockScriptGenerator) GenerateScript(ctx context.Context, story model.Story, durationMinutes int, shortForm bool) (*model.Script, error) {
	n := minScenes(durationMinutes)
	per := durationMinutes * 60 / n
	script := &model.Script{Title: story.Title}
	for i := 1; i <= n; i++ {
		script.Scenes = append(script.Scenes, model.Scene{
			Number:           i,
			DurationSec:      per,
			Narration:        fmt.Sprintf("Part %d of the story of %s.", i, story.Title),
			ImageDescription: fmt.Sprintf("%s, scene %d", story.Title, i),
		})
	}
	return script, nil
}

type MockImageGenerator struct{}

func (MockImageGenerator) GenerateImage(ctx context.Context, scene model.Scene, resolution model.Resolution, shortForm bool) ([]byte, error) {
	w, h := resolution.FrameSize(shortForm)
	// 1/40 scale keeps the placeholder tiny
	img := image.NewRGBA(image.Rect(0, 0, w/40, h/40))
	fill := color.RGBA{R: uint8(40 * scene.Number), G: 120, B: 200, A: 255}
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, model.Permanent(err)
	}
	return buf.Bytes(), nil
}

type MockNarrationGenerator struct{}

func (MockNarrationGenerator) GenerateNarration(ctx context.Context, scene model.Scene) ([]byte, error) {
	return []byte(fmt.Sprintf("ID3mock-narration:%d:%s", scene.Number, scene.Narration)), nil
}

type MockVideoComposer struct{}

func (MockVideoComposer) Compose(ctx context.Context, in CompositionInput) ([]byte, error) {
	if len(in.Images) == 0 || len(in.Images) != len(in.Audio) {
		return nil, model.Permanent(fmt.Errorf("composition needs one image per narration track, got %d images and %d tracks", len(in.Images), len(in.Audio)))
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\x00\x00\x00\x18ftypmp42mock:%dx%d:%d-scenes", in.Width, in.Height, len(in.Images))
	return buf.Bytes(), nil
}

// MockExecutors returns a full offline executor set
func MockExecutors() Executors {
	return Executors{
		Script:    MockScriptGenerator{},
		Image:     MockImageGenerator{},
		Narration: MockNarrationGenerator{},
		Composer:  MockVideoComposer{},
	}
}
