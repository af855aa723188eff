package ports

import (
	"context"

	"streamswarm/internal/domain"
)

type VideoRepository interface {
	Create(ctx context.Context, v domain.Video) error
	Get(ctx context.Context, id domain.VideoID) (domain.Video, error)
	List(ctx context.Context, filter domain.VideoFilter) ([]domain.Video, error)
	// TransitionStatus atomically moves a video from one status to another.
	// It returns domain.ErrInvalidTransition when the stored status is not from.
	TransitionStatus(ctx context.Context, id domain.VideoID, from, to domain.VideoStatus) error
	MarkReady(ctx context.Context, id domain.VideoID, totalChunks int, manifestURL string) error
	MarkFailed(ctx context.Context, id domain.VideoID, message string) error
}

type ChunkRepository interface {
	// SaveChunks replaces every chunk stored for the video.
	SaveChunks(ctx context.Context, id domain.VideoID, chunks []domain.Chunk) error
	ListChunks(ctx context.Context, id domain.VideoID) ([]domain.Chunk, error)
}
