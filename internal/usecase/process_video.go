package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
	"streamswarm/internal/manifest"
	"streamswarm/internal/metrics"
	"streamswarm/internal/telemetry"
)

type ProcessRepository interface {
	ports.VideoRepository
	ports.ChunkRepository
}

// ProcessVideo drives a video through uploaded -> processing -> ready|failed.
type ProcessVideo struct {
	Repo          ProcessRepository
	Segmenter     ports.Segmenter
	Manifests     ports.ManifestBuilder
	Notifier      ports.StatusNotifier
	VideosDir     string
	ChunksDir     string
	ChunkDuration int
	// APIPrefix is used to build the manifest URL stored on ready videos.
	APIPrefix string
	Logger    *slog.Logger
	Now       func() time.Time
}

// ManifestURL is the API location of the manifest of id.
func ManifestURL(apiPrefix string, id domain.VideoID) string {
	return strings.TrimRight(apiPrefix, "/") + "/manifest/" + string(id)
}

// Execute claims the video and runs the pipeline once. A video that is not
// in the uploaded state is refused with domain.ErrInvalidTransition and left
// untouched. Pipeline failures are recorded on the video and also returned.
func (uc ProcessVideo) Execute(ctx context.Context, id domain.VideoID) (err error) {
	logger := uc.logger().With(slog.String("videoId", string(id)))

	ctx, span := telemetry.Tracer().Start(ctx, "video.process")
	span.SetAttributes(attribute.String("video.id", string(id)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	video, err := uc.Repo.Get(ctx, id)
	if err != nil {
		return wrapRepo(err)
	}
	if err := uc.Repo.TransitionStatus(ctx, id, domain.VideoUploaded, domain.VideoProcessing); err != nil {
		return wrapRepo(err)
	}
	uc.notify(domain.StatusEvent{VideoID: id, Status: domain.VideoProcessing})
	logger.Info("processing started", slog.String("filename", video.Filename))

	start := uc.now()
	total, runErr := uc.run(ctx, video, logger)
	metrics.ProcessingStageDuration.WithLabelValues("total").Observe(uc.now().Sub(start).Seconds())

	if runErr != nil {
		message := runErr.Error()
		// The failure must be recorded even when the caller has gone away.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if markErr := uc.Repo.MarkFailed(failCtx, id, message); markErr != nil {
			logger.Error("mark failed error", slog.String("error", markErr.Error()))
		}
		metrics.VideosProcessedTotal.WithLabelValues(string(domain.VideoFailed)).Inc()
		uc.notify(domain.StatusEvent{VideoID: id, Status: domain.VideoFailed, Error: message})
		logger.Warn("processing failed", slog.String("error", message))
		return runErr
	}

	span.SetAttributes(attribute.Int("video.total_chunks", total))
	metrics.VideosProcessedTotal.WithLabelValues(string(domain.VideoReady)).Inc()
	uc.notify(domain.StatusEvent{VideoID: id, Status: domain.VideoReady, TotalChunks: total})
	logger.Info("processing complete",
		slog.Int("totalChunks", total),
		slog.Duration("elapsed", uc.now().Sub(start)),
	)
	return nil
}

// run performs segment, manifest, chunk persistence and the ready
// transition; all four must succeed for the video to become ready.
func (uc ProcessVideo) run(ctx context.Context, video domain.Video, logger *slog.Logger) (int, error) {
	input := filepath.Join(uc.VideosDir, video.Filename)
	if _, err := os.Stat(input); err != nil {
		return 0, wrapStorage(fmt.Errorf("source video: %v", err))
	}

	if err := clearStaleChunks(filepath.Join(uc.ChunksDir, string(video.ID))); err != nil {
		return 0, wrapStorage(err)
	}

	segStart := uc.now()
	if _, err := uc.Segmenter.Segment(ctx, input, uc.ChunksDir, uc.ChunkDuration); err != nil {
		return 0, err
	}
	metrics.ProcessingStageDuration.WithLabelValues("segment").Observe(uc.now().Sub(segStart).Seconds())

	buildStart := uc.now()
	m, err := uc.Manifests.Build(ctx, video.ID)
	if err != nil {
		return 0, err
	}
	metrics.ProcessingStageDuration.WithLabelValues("manifest").Observe(uc.now().Sub(buildStart).Seconds())

	var bytes int64
	for _, c := range m.Chunks {
		bytes += c.Size
	}
	logger.Debug("manifest built", slog.Int("chunks", m.TotalChunks), slog.Int64("bytes", bytes))

	if err := uc.Repo.SaveChunks(ctx, video.ID, m.ChunkRecords(uc.now().UTC())); err != nil {
		return 0, wrapRepo(err)
	}
	if err := uc.Repo.MarkReady(ctx, video.ID, m.TotalChunks, ManifestURL(uc.APIPrefix, video.ID)); err != nil {
		return 0, wrapRepo(err)
	}
	metrics.ChunksProducedTotal.Add(float64(m.TotalChunks))
	metrics.ChunkBytesTotal.Add(float64(bytes))
	return m.TotalChunks, nil
}

// clearStaleChunks removes chunk files left in dir by anything other than
// this run so the manifest reflects only fresh segmenter output.
func clearStaleChunks(dir string) error {
	names, err := manifest.ListChunks(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (uc ProcessVideo) notify(event domain.StatusEvent) {
	if uc.Notifier == nil {
		return
	}
	event.At = uc.now().UTC()
	uc.Notifier.NotifyStatus(event)
}

func (uc ProcessVideo) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

func (uc ProcessVideo) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
