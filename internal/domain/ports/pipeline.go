package ports

import (
	"context"

	"streamswarm/internal/domain"
)

// Segmenter splits input into fixed-duration chunk files under
// <outputRoot>/<input basename> and returns that directory.
type Segmenter interface {
	Segment(ctx context.Context, input, outputRoot string, durationSeconds int) (string, error)
}

type ManifestBuilder interface {
	Build(ctx context.Context, id domain.VideoID) (domain.Manifest, error)
}

// InFlightGuard keeps at most one processing run per video id.
type InFlightGuard interface {
	TryAcquire(ctx context.Context, id domain.VideoID) (bool, error)
	Release(ctx context.Context, id domain.VideoID) error
}

type StatusNotifier interface {
	NotifyStatus(event domain.StatusEvent)
}
