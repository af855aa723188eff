// Package inflight tracks the video ids that currently have a processing run.
package inflight

import (
	"context"
	"sync"

	"streamswarm/internal/domain"
)

// Registry is a process-local set of in-flight ids.
type Registry struct {
	mu  sync.Mutex
	ids map[domain.VideoID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[domain.VideoID]struct{})}
}

func (r *Registry) TryAcquire(_ context.Context, id domain.VideoID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false, nil
	}
	r.ids[id] = struct{}{}
	return true, nil
}

func (r *Registry) Release(_ context.Context, id domain.VideoID) error {
	r.mu.Lock()
	delete(r.ids, id)
	r.mu.Unlock()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
