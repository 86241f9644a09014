package model

import "time"

// GenerateVideoRequest is the HTTP body of a submission
type GenerateVideoRequest struct {
	Story      string `json:"story" validate:"required,min=1,max=100"`
	Duration   int    `json:"duration" validate:"required"`
	Resolution string `json:"resolution" validate:"required"`
	TikTok     *bool  `json:"tiktok" validate:"required"`
}

// GenerateVideoResponse is returned when a job has been accepted
type GenerateVideoResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Story is one entry of the catalog
type Story struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// StoriesResponse lists the catalog
type StoriesResponse struct {
	Stories []Story `json:"stories"`
}

// ArtifactResponse describes the finished video of a completed job
type ArtifactResponse struct {
	JobID    string      `json:"jobId"`
	Artifact ArtifactRef `json:"artifact"`
	URL      string      `json:"url,omitempty"`
}
