package model

import (
	"path/filepath"
	"time"
)

// Task represents a single download task submitted over the API
type Task struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	FormatID     string     `json:"format_id"`
	Status       TaskStatus `json:"status"`
	WorkDir      string     `json:"-"` // task-exclusive scratch directory
	ArtifactPath string     `json:"-"` // final output file, empty until detected
	LastError    string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"`
}

// ArtifactName returns the base name of the downloaded file, or "" if the
// artifact location is not known yet
func (t *Task) ArtifactName() string {
	if t.ArtifactPath == "" {
		return ""
	}
	return filepath.Base(t.ArtifactPath)
}

// Elapsed returns the time since the task started
func (t *Task) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.StartedAt)
}
