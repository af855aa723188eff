package domain

import (
	"fmt"
	"strings"
	"time"
)

type VideoID string

type VideoStatus string

const (
	VideoUploaded   VideoStatus = "uploaded"
	VideoProcessing VideoStatus = "processing"
	VideoReady      VideoStatus = "ready"
	VideoFailed     VideoStatus = "failed"
)

// Terminal reports whether no further transition exists out of the status.
func (s VideoStatus) Terminal() bool {
	return s == VideoReady || s == VideoFailed
}

func (s VideoStatus) Valid() bool {
	switch s {
	case VideoUploaded, VideoProcessing, VideoReady, VideoFailed:
		return true
	default:
		return false
	}
}

type Video struct {
	ID           VideoID     `json:"video_id"`
	Filename     string      `json:"filename"`
	OriginalName string      `json:"original_name"`
	Status       VideoStatus `json:"status"`
	TotalChunks  int         `json:"total_chunks"`
	UserID       string      `json:"user_id,omitempty"`
	Error        string      `json:"error,omitempty"`
	ManifestURL  string      `json:"manifest_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (v Video) Validate() error {
	if strings.TrimSpace(string(v.ID)) == "" {
		return fmt.Errorf("%w: video id is required", ErrValidation)
	}
	if strings.TrimSpace(v.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if !v.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, v.Status)
	}
	if v.TotalChunks < 0 {
		return fmt.Errorf("%w: total_chunks must be >= 0", ErrValidation)
	}
	return nil
}

type VideoFilter struct {
	Status *VideoStatus
	UserID string
	Limit  int
	Offset int
}

// StatusEvent is published on every lifecycle transition.
type StatusEvent struct {
	VideoID     VideoID     `json:"video_id"`
	Status      VideoStatus `json:"status"`
	TotalChunks int         `json:"total_chunks"`
	Error       string      `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}
