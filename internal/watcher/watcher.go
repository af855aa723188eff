// Package watcher polls a directory for finished video files and hands them
// to processing.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"

	"streamswarm/internal/domain"
	"streamswarm/internal/manifest"
	"streamswarm/internal/metrics"
)

const DefaultInterval = 5 * time.Second

// Ingester accepts a stable file for processing.
type Ingester interface {
	Execute(ctx context.Context, path string) (domain.VideoID, error)
}

type Config struct {
	Dir        string
	ChunksDir  string
	Extensions []string
	Interval   time.Duration
	// Notify enables filesystem notifications. Writes then restart a file's
	// stability window between polls; polling still decides every hand-off.
	Notify bool
}

type entry struct {
	size int64
	// gen is the poll generation in which size was last seen to change.
	gen uint64
}

// Watcher runs a single sequential loop. A file is handed off once a poll
// sees the same size the previous poll recorded. Files already handed off or
// refused are remembered by size and skipped until they change.
type Watcher struct {
	cfg    Config
	ingest Ingester
	logger *slog.Logger

	gen     uint64
	tracked map[string]entry
	settled map[string]int64
}

func New(cfg Config, ingest Ingester, logger *slog.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		ingest:  ingest,
		logger:  logger.With(slog.String("component", "watcher")),
		tracked: make(map[string]entry),
		settled: make(map[string]int64),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return err
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.cfg.Notify {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("fsnotify unavailable, polling only", slog.String("error", err.Error()))
		} else {
			defer fw.Close()
			if err := fw.Add(w.cfg.Dir); err != nil {
				w.logger.Warn("fsnotify watch failed, polling only", slog.String("error", err.Error()))
			} else {
				events, errs = fw.Events, fw.Errors
			}
		}
	}

	w.logger.Info("watching directory",
		slog.String("dir", w.cfg.Dir),
		slog.String("chunksDir", w.cfg.ChunksDir),
		slog.Duration("interval", w.cfg.Interval),
		slog.Bool("notify", events != nil),
	)

	w.Poll(ctx)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.observe(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

// Poll performs one scan of the watched directory.
func (w *Watcher) Poll(ctx context.Context) {
	w.gen++
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		w.logger.Warn("scan failed", slog.String("error", err.Error()))
		return
	}

	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() || !w.candidate(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		present[path] = struct{}{}
		w.check(ctx, path, info.Size())
	}

	for path := range w.tracked {
		if _, ok := present[path]; !ok {
			delete(w.tracked, path)
		}
	}
	for path := range w.settled {
		if _, ok := present[path]; !ok {
			delete(w.settled, path)
		}
	}
	metrics.WatcherTrackedFiles.Set(float64(len(w.tracked)))
}

func (w *Watcher) check(ctx context.Context, path string, size int64) {
	if w.processed(path) {
		delete(w.tracked, path)
		return
	}
	if settledSize, ok := w.settled[path]; ok {
		if settledSize == size {
			return
		}
		delete(w.settled, path)
	}

	prev, ok := w.tracked[path]
	switch {
	case !ok:
		w.tracked[path] = entry{size: size, gen: w.gen}
		return
	case prev.size != size:
		w.logger.Debug("file still growing",
			slog.String("file", filepath.Base(path)),
			slog.String("size", humanize.Bytes(uint64(size))),
		)
		w.tracked[path] = entry{size: size, gen: w.gen}
		return
	case prev.gen >= w.gen:
		return
	}

	delete(w.tracked, path)
	w.handoff(ctx, path, size)
}

func (w *Watcher) handoff(ctx context.Context, path string, size int64) {
	hctx, cancel := context.WithTimeout(ctx, w.cfg.Interval)
	defer cancel()

	name := filepath.Base(path)
	id, err := w.ingest.Execute(hctx, path)
	switch {
	case err == nil:
		w.settled[path] = size
		metrics.WatcherHandoffsTotal.WithLabelValues("queued").Inc()
		w.logger.Info("stable video handed off",
			slog.String("file", name),
			slog.String("videoId", string(id)),
			slog.String("size", humanize.Bytes(uint64(size))),
		)
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrValidation):
		w.settled[path] = size
		metrics.WatcherHandoffsTotal.WithLabelValues("rejected").Inc()
		w.logger.Info("video not eligible for processing",
			slog.String("file", name),
			slog.String("reason", err.Error()),
		)
	case errors.Is(err, domain.ErrAlreadyInFlight):
		metrics.WatcherHandoffsTotal.WithLabelValues("in_flight").Inc()
		w.logger.Debug("video already in flight", slog.String("file", name))
	default:
		metrics.WatcherHandoffsTotal.WithLabelValues("error").Inc()
		w.logger.Warn("hand-off failed, will retry",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}

// observe applies a filesystem notification between polls.
func (w *Watcher) observe(ev fsnotify.Event) {
	path := ev.Name
	if !w.candidate(filepath.Base(path)) {
		return
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		delete(w.tracked, path)
		delete(w.settled, path)
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if _, ok := w.settled[path]; ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	// Count the change as happening after the current poll so the next poll
	// cannot treat the file as stable.
	w.tracked[path] = entry{size: info.Size(), gen: w.gen + 1}
}

// processed reports whether the chunk directory of path already holds chunks.
func (w *Watcher) processed(path string) bool {
	base := filepath.Base(path)
	return manifest.HasChunks(filepath.Join(w.cfg.ChunksDir, strings.TrimSuffix(base, filepath.Ext(base))))
}

func (w *Watcher) candidate(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.cfg.Extensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}
