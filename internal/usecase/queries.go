package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
)

type ManifestStore interface {
	Load(id domain.VideoID) (domain.Manifest, error)
	ChunkPath(id domain.VideoID, filename string) (string, error)
}

type GetVideo struct {
	Repo ports.VideoRepository
}

func (uc GetVideo) Execute(ctx context.Context, id domain.VideoID) (domain.Video, error) {
	v, err := uc.Repo.Get(ctx, id)
	return v, wrapRepo(err)
}

type ListVideos struct {
	Repo ports.VideoRepository
}

func (uc ListVideos) Execute(ctx context.Context, filter domain.VideoFilter) ([]domain.Video, error) {
	videos, err := uc.Repo.List(ctx, filter)
	if err != nil {
		return nil, wrapRepo(err)
	}
	return videos, nil
}

type ListChunks struct {
	Repo ports.ChunkRepository
	// Videos is consulted to distinguish an unknown video from one without chunks.
	Videos ports.VideoRepository
}

func (uc ListChunks) Execute(ctx context.Context, id domain.VideoID) ([]domain.Chunk, error) {
	if _, err := uc.Videos.Get(ctx, id); err != nil {
		return nil, wrapRepo(err)
	}
	chunks, err := uc.Repo.ListChunks(ctx, id)
	if err != nil {
		return nil, wrapRepo(err)
	}
	return chunks, nil
}

// GetManifest serves the persisted manifest of a ready video.
type GetManifest struct {
	Repo      ports.VideoRepository
	Manifests ManifestStore
}

func (uc GetManifest) Execute(ctx context.Context, id domain.VideoID) (domain.Manifest, error) {
	v, err := uc.Repo.Get(ctx, id)
	if err != nil {
		return domain.Manifest{}, wrapRepo(err)
	}
	if v.Status != domain.VideoReady {
		return domain.Manifest{}, fmt.Errorf("%w. Status: %s", domain.ErrNotReady, v.Status)
	}
	m, err := uc.Manifests.Load(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Manifest{}, fmt.Errorf("manifest %w", domain.ErrNotFound)
		}
		return domain.Manifest{}, err
	}
	return m, nil
}

// OpenChunk resolves a chunk file on disk. It does not consult the record
// store; a chunk is served whenever the file exists.
type OpenChunk struct {
	Manifests ManifestStore
}

func (uc OpenChunk) Execute(_ context.Context, id domain.VideoID, filename string) (*os.File, os.FileInfo, error) {
	path, err := uc.Manifests.ChunkPath(id, filename)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("chunk %w", domain.ErrNotFound)
		}
		return nil, nil, wrapStorage(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, wrapStorage(err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("chunk %w", domain.ErrNotFound)
	}
	return f, info, nil
}
