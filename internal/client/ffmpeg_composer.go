package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/model"
)

// FFmpegComposer renders one still-image segment per scene and joins them
// with the concat demuxer.
type FFmpegComposer struct {
	path string
}

func NewFFmpegComposer(path string) *FFmpegComposer {
	return &FFmpegComposer{path: path}
}

// IsConfigured reports whether the ffmpeg binary can be found
func (c *FFmpegComposer) IsConfigured() bool {
	if c.path == "" {
		return false
	}
	_, err := exec.LookPath(c.path)
	return err == nil
}

func (c *FFmpegComposer) Compose(ctx context.Context, in CompositionInput) ([]byte, error) {
	if len(in.Images) == 0 || len(in.Images) != len(in.Audio) {
		return nil, model.Permanent(fmt.Errorf("composition needs one image per narration track, got %d images and %d tracks", len(in.Images), len(in.Audio)))
	}

	dir, err := os.MkdirTemp("", "storyreel-compose-*")
	if err != nil {
		return nil, model.Transient(fmt.Errorf("failed to create work dir: %w", err))
	}
	defer os.RemoveAll(dir)

	frame := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", in.Width, in.Height, in.Width, in.Height)

	var list strings.Builder
	for i := range in.Images {
		img := filepath.Join(dir, fmt.Sprintf("scene_%03d.png", i+1))
		audio := filepath.Join(dir, fmt.Sprintf("scene_%03d.mp3", i+1))
		segment := filepath.Join(dir, fmt.Sprintf("segment_%03d.mp4", i+1))

		if err := os.WriteFile(img, in.Images[i], 0o644); err != nil {
			return nil, model.Transient(fmt.Errorf("failed to write image: %w", err))
		}
		if err := os.WriteFile(audio, in.Audio[i], 0o644); err != nil {
			return nil, model.Transient(fmt.Errorf("failed to write audio: %w", err))
		}

		err := c.run(ctx,
			"-y", "-loop", "1", "-i", img, "-i", audio,
			"-c:v", "libx264", "-tune", "stillimage",
			"-c:a", "aac", "-b:a", "192k",
			"-pix_fmt", "yuv420p", "-shortest",
			"-vf", frame,
			segment,
		)
		if err != nil {
			return nil, fmt.Errorf("scene %d segment: %w", i+1, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", segment)
	}

	listPath := filepath.Join(dir, "segments.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return nil, model.Transient(fmt.Errorf("failed to write segment list: %w", err))
	}

	out := filepath.Join(dir, "final.mp4")
	if err := c.run(ctx, "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-movflags", "+faststart", out); err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, model.Transient(fmt.Errorf("failed to read video: %w", err))
	}
	return data, nil
}

// run executes ffmpeg. A non-zero exit on the same inputs will not change
// on retry and is permanent; an interrupted run is transient.
func (c *FFmpegComposer) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.path, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.WithField("args", strings.Join(args, " ")).Debug("Running ffmpeg")
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return model.Transient(fmt.Errorf("ffmpeg interrupted: %w", ctx.Err()))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return model.Permanent(fmt.Errorf("ffmpeg exited with %d: %s", exitErr.ExitCode(), tail(stderr.String(), 400)))
	}
	return model.Transient(fmt.Errorf("failed to run ffmpeg: %w", err))
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
