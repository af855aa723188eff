package usecase

import (
	"context"
	"errors"
	"testing"

	"streamswarm/internal/domain"
	"streamswarm/internal/repository/memory"
)

type inFlightSubmitter struct {
	busy map[domain.VideoID]bool
	ids  []domain.VideoID
}

func (s *inFlightSubmitter) Submit(_ context.Context, id domain.VideoID) error {
	if s.busy[id] {
		return domain.ErrAlreadyInFlight
	}
	s.ids = append(s.ids, id)
	return nil
}

func TestResumeUploadedQueuesOnlyUploaded(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	for _, v := range []domain.Video{
		{ID: "a", Filename: "a.mp4", Status: domain.VideoUploaded},
		{ID: "b", Filename: "b.mp4", Status: domain.VideoReady},
		{ID: "c", Filename: "c.mp4", Status: domain.VideoUploaded},
		{ID: "d", Filename: "d.mp4", Status: domain.VideoUploaded},
	} {
		if err := repo.Create(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	queue := &inFlightSubmitter{busy: map[domain.VideoID]bool{"d": true}}

	n, err := ResumeUploaded{Repo: repo, Queue: queue}.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 2 || len(queue.ids) != 2 {
		t.Fatalf("queued %d (%v), want a and c", n, queue.ids)
	}
	for _, id := range queue.ids {
		if id != "a" && id != "c" {
			t.Fatalf("unexpected id %s queued", id)
		}
	}
}

func TestResumeUploadedStopsWhenQueueRefuses(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	_ = repo.Create(ctx, domain.Video{ID: "a", Filename: "a.mp4", Status: domain.VideoUploaded})
	queue := &fakeSubmitter{err: domain.ErrQueueFull}

	n, err := ResumeUploaded{Repo: repo, Queue: queue}.Execute(ctx)
	if !errors.Is(err, domain.ErrQueueFull) || n != 0 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
}
