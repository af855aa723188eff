// Package memory is an in-process record store used when no MongoDB is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"streamswarm/internal/domain"
)

type Repository struct {
	mu     sync.RWMutex
	videos map[domain.VideoID]domain.Video
	chunks map[domain.VideoID][]domain.Chunk
	now    func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		videos: make(map[domain.VideoID]domain.Video),
		chunks: make(map[domain.VideoID][]domain.Chunk),
		now:    time.Now,
	}
}

func (r *Repository) Create(_ context.Context, v domain.Video) error {
	if err := v.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[v.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.videos[v.ID] = v
	return nil
}

func (r *Repository) Get(_ context.Context, id domain.VideoID) (domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.videos[id]
	if !ok {
		return domain.Video{}, domain.ErrNotFound
	}
	return v, nil
}

func (r *Repository) List(_ context.Context, filter domain.VideoFilter) ([]domain.Video, error) {
	r.mu.RLock()
	out := make([]domain.Video, 0, len(r.videos))
	for _, v := range r.videos {
		if filter.Status != nil && v.Status != *filter.Status {
			continue
		}
		if filter.UserID != "" && v.UserID != filter.UserID {
			continue
		}
		out = append(out, v)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Video{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *Repository) TransitionStatus(_ context.Context, id domain.VideoID, from, to domain.VideoStatus) error {
	return r.update(id, from, func(v *domain.Video) {
		v.Status = to
	})
}

func (r *Repository) MarkReady(_ context.Context, id domain.VideoID, totalChunks int, manifestURL string) error {
	return r.update(id, domain.VideoProcessing, func(v *domain.Video) {
		v.Status = domain.VideoReady
		v.TotalChunks = totalChunks
		v.ManifestURL = manifestURL
	})
}

func (r *Repository) MarkFailed(_ context.Context, id domain.VideoID, message string) error {
	return r.update(id, domain.VideoProcessing, func(v *domain.Video) {
		v.Status = domain.VideoFailed
		v.Error = message
	})
}

func (r *Repository) update(id domain.VideoID, from domain.VideoStatus, apply func(*domain.Video)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	if v.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", domain.ErrInvalidTransition, id, v.Status, from)
	}
	apply(&v)
	v.UpdatedAt = r.now().UTC()
	r.videos[id] = v
	return nil
}

func (r *Repository) SaveChunks(_ context.Context, id domain.VideoID, chunks []domain.Chunk) error {
	cp := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.VideoID = id
		cp[i] = c
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].ChunkID < cp[j].ChunkID })
	r.mu.Lock()
	r.chunks[id] = cp
	r.mu.Unlock()
	return nil
}

func (r *Repository) ListChunks(_ context.Context, id domain.VideoID) ([]domain.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.chunks[id]
	out := make([]domain.Chunk, len(src))
	copy(out, src)
	return out, nil
}
