package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
	"streamswarm/internal/metrics"
)

type VideoProcessor interface {
	Execute(ctx context.Context, id domain.VideoID) error
}

// Dispatcher feeds video ids to a fixed pool of processing workers through a
// bounded queue. An id is held in the in-flight guard from Submit until its
// worker finishes, so each id has at most one queued or running job.
type Dispatcher struct {
	processor VideoProcessor
	guard     ports.InFlightGuard
	queue     chan domain.VideoID
	workers   int
	logger    *slog.Logger

	// mu orders Submit against shutdown: once closed is set no new Submit
	// starts, and pending tracks the ones still running.
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
	stopped chan struct{}
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Logger    *slog.Logger
}

func NewDispatcher(processor VideoProcessor, guard ports.InFlightGuard, cfg DispatcherConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		processor: processor,
		guard:     guard,
		queue:     make(chan domain.VideoID, size),
		workers:   workers,
		logger:    logger,
		stopped:   make(chan struct{}),
	}
}

// Submit enqueues id, blocking while the queue is full until ctx is done.
// It fails with domain.ErrAlreadyInFlight when id is already queued or running.
func (d *Dispatcher) Submit(ctx context.Context, id domain.VideoID) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.pending.Add(1)
	d.mu.Unlock()
	defer d.pending.Done()

	ok, err := d.guard.TryAcquire(ctx, id)
	if err != nil {
		return fmt.Errorf("acquire in-flight guard: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyInFlight
	}
	metrics.InFlightVideos.Inc()

	select {
	case d.queue <- id:
		metrics.QueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-ctx.Done():
		d.release(id)
		return fmt.Errorf("%w: %v", domain.ErrQueueFull, ctx.Err())
	case <-d.stopped:
		d.release(id)
		return ErrDispatcherStopped
	}
}

// Run starts the workers and blocks until ctx is done and every running job
// has finished. Jobs already started are not cancelled by ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	d.logger.Info("dispatcher started", slog.Int("workers", d.workers), slog.Int("queueSize", cap(d.queue)))

	<-ctx.Done()
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stopped)
	}
	d.mu.Unlock()
	wg.Wait()
	d.pending.Wait()
	d.drain()
	d.logger.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.queue:
			if ctx.Err() != nil {
				// Shutdown won the race; leave the video uploaded.
				d.release(id)
				return
			}
			metrics.QueueDepth.Set(float64(len(d.queue)))
			d.process(jobCtx, worker, id)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, id domain.VideoID) {
	defer d.release(id)
	err := d.processor.Execute(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
		d.logger.Info("processing skipped",
			slog.Int("worker", worker),
			slog.String("videoId", string(id)),
			slog.String("reason", err.Error()),
		)
	default:
		d.logger.Warn("processing job failed",
			slog.Int("worker", worker),
			slog.String("videoId", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

// drain releases ids left in the queue at shutdown; their videos stay
// uploaded and are picked up again on the next start.
func (d *Dispatcher) drain() {
	for {
		select {
		case id := <-d.queue:
			d.release(id)
		default:
			metrics.QueueDepth.Set(0)
			return
		}
	}
}

func (d *Dispatcher) release(id domain.VideoID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.guard.Release(ctx, id); err != nil {
		d.logger.Warn("release in-flight guard failed",
			slog.String("videoId", string(id)),
			slog.String("error", err.Error()),
		)
	}
	metrics.InFlightVideos.Dec()
}
