package usecase

import (
	"context"
	"errors"
	"log/slog"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
)

// ResumeUploaded requeues videos left in the uploaded state, for example
// after the queue was saturated or the service restarted before a worker
// picked them up.
type ResumeUploaded struct {
	Repo   ports.VideoRepository
	Queue  Submitter
	Logger *slog.Logger
}

// Execute returns how many videos were queued. It stops early when ctx ends
// or the queue refuses work.
func (uc ResumeUploaded) Execute(ctx context.Context) (int, error) {
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	status := domain.VideoUploaded
	videos, err := uc.Repo.List(ctx, domain.VideoFilter{Status: &status})
	if err != nil {
		return 0, wrapRepo(err)
	}
	if len(videos) == 0 {
		return 0, nil
	}
	logger.Info("resuming uploaded videos", slog.Int("count", len(videos)))

	queued := 0
	for _, v := range videos {
		err := uc.Queue.Submit(ctx, v.ID)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, domain.ErrAlreadyInFlight):
			logger.Debug("resume: already in flight", slog.String("videoId", string(v.ID)))
		default:
			logger.Warn("resume: submit failed",
				slog.String("videoId", string(v.ID)),
				slog.String("error", err.Error()),
			)
			return queued, err
		}
	}
	return queued, nil
}
