package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
)

type Submitter interface {
	Submit(ctx context.Context, id domain.VideoID) error
}

// IngestFile hands a file found in the watched directory to processing. The
// video id is the file's base name without extension, so the chunk directory
// produced by the segmenter is named after the id.
type IngestFile struct {
	Repo  ports.VideoRepository
	Queue Submitter
	Now   func() time.Time
}

func (uc IngestFile) Execute(ctx context.Context, path string) (domain.VideoID, error) {
	base := filepath.Base(path)
	id := domain.VideoID(strings.TrimSuffix(base, filepath.Ext(base)))
	if strings.TrimSpace(string(id)) == "" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: unusable file name %q", domain.ErrValidation, base)
	}

	video, err := uc.ensureRecord(ctx, id, base)
	if err != nil {
		return id, err
	}
	if video.Filename != base {
		return id, fmt.Errorf("%w: video %s is stored as %s, not %s", domain.ErrConflict, id, video.Filename, base)
	}
	if video.Status != domain.VideoUploaded {
		return id, fmt.Errorf("%w: video %s is %s", domain.ErrInvalidTransition, id, video.Status)
	}
	return id, uc.Queue.Submit(ctx, id)
}

func (uc IngestFile) ensureRecord(ctx context.Context, id domain.VideoID, base string) (domain.Video, error) {
	video, err := uc.Repo.Get(ctx, id)
	if err == nil {
		return video, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Video{}, wrapRepo(err)
	}

	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	ts := now().UTC()
	video = domain.Video{
		ID:           id,
		Filename:     base,
		OriginalName: base,
		Status:       domain.VideoUploaded,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := uc.Repo.Create(ctx, video); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := uc.Repo.Get(ctx, id)
			return existing, wrapRepo(getErr)
		}
		return domain.Video{}, wrapRepo(err)
	}
	return video, nil
}
