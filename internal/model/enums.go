package model

import "strings"

// Resolution tiers
type Resolution string

const (
	ResolutionHD     Resolution = "HD"
	ResolutionFullHD Resolution = "FullHD"
	Resolution4K     Resolution = "4K"
)

var ValidResolutions = []Resolution{ResolutionHD, ResolutionFullHD, Resolution4K}

// ParseResolution accepts the canonical tier names plus the spaced
// "Full HD" spelling used by older clients.
func ParseResolution(s string) (Resolution, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "hd":
		return ResolutionHD, true
	case "fullhd":
		return ResolutionFullHD, true
	case "4k":
		return Resolution4K, true
	}
	return "", false
}

// FrameSize returns the output frame in pixels. Short-form output is the
// same tier rotated to 9:16.
func (r Resolution) FrameSize(shortForm bool) (width, height int) {
	switch r {
	case ResolutionHD:
		width, height = 1280, 720
	case Resolution4K:
		width, height = 3840, 2160
	default:
		width, height = 1920, 1080
	}
	if shortForm {
		return height, width
	}
	return width, height
}

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further mutation is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Stage names, in execution order
type StageName string

const (
	StageScript      StageName = "script"
	StageImages      StageName = "images"
	StageNarration   StageName = "narration"
	StageComposition StageName = "composition"
)

// Stage and item status
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
)

// Artifact content kinds
type ArtifactKind string

const (
	ArtifactText  ArtifactKind = "text"
	ArtifactImage ArtifactKind = "image"
	ArtifactAudio ArtifactKind = "audio"
	ArtifactVideo ArtifactKind = "video"
)

// ContentType returns the MIME type used when the artifact is stored or served.
func (k ArtifactKind) ContentType() string {
	switch k {
	case ArtifactText:
		return "application/json"
	case ArtifactImage:
		return "image/png"
	case ArtifactAudio:
		return "audio/mpeg"
	case ArtifactVideo:
		return "video/mp4"
	}
	return "application/octet-stream"
}

// Extension returns the file extension for stored blobs of this kind.
func (k ArtifactKind) Extension() string {
	switch k {
	case ArtifactText:
		return ".json"
	case ArtifactImage:
		return ".png"
	case ArtifactAudio:
		return ".mp3"
	case ArtifactVideo:
		return ".mp4"
	}
	return ".bin"
}
