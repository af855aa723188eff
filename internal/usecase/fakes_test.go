package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"streamswarm/internal/domain"
)

// fakeSegmenter writes the configured chunk payloads the way ffmpeg would.
type fakeSegmenter struct {
	mu      sync.Mutex
	calls   int
	payload []string
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeSegmenter) Segment(ctx context.Context, input, outputRoot string, durationSeconds int) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", f.err
	}
	base := filepath.Base(input)
	dir := filepath.Join(outputRoot, strings.TrimSuffix(base, filepath.Ext(base)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for i, body := range f.payload {
		name := filepath.Join(dir, "chunk_00"+string(rune('0'+i))+".mp4")
		if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (f *fakeSegmenter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (n *recordingNotifier) NotifyStatus(e domain.StatusEvent) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) statuses() []domain.VideoStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.VideoStatus, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Status)
	}
	return out
}

type fakeSubmitter struct {
	mu  sync.Mutex
	ids []domain.VideoID
	err error
}

func (f *fakeSubmitter) Submit(ctx context.Context, id domain.VideoID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}
