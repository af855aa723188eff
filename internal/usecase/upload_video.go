package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
	"streamswarm/internal/metrics"
)

var DefaultVideoExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".flv", ".wmv"}

type UploadVideo struct {
	Repo        ports.VideoRepository
	Queue       Submitter
	Notifier    ports.StatusNotifier
	VideosDir   string
	AllowedExts []string
	// QueueTimeout bounds how long an upload waits for room in the queue.
	QueueTimeout time.Duration
	NewID        func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

type UploadInput struct {
	OriginalName string
	Body         io.Reader
	UserID       string
}

// Execute stores the upload durably, records it as uploaded and queues it
// for processing. Errors are only returned when nothing was persisted; a
// video that could not be queued is returned without error and stays
// uploaded until the watcher or the startup resume submits it.
func (uc UploadVideo) Execute(ctx context.Context, input UploadInput) (domain.Video, error) {
	original := sanitizeFilename(input.OriginalName)
	if original == "" || input.Body == nil {
		metrics.UploadsTotal.WithLabelValues("invalid").Inc()
		return domain.Video{}, fmt.Errorf("%w: no video file provided", domain.ErrValidation)
	}
	allowed := uc.AllowedExts
	if len(allowed) == 0 {
		allowed = DefaultVideoExtensions
	}
	ext := normalizeExt(filepath.Ext(original))
	if !allowedExt(ext, allowed) {
		metrics.UploadsTotal.WithLabelValues("invalid").Inc()
		return domain.Video{}, fmt.Errorf("%w: invalid file type %q, allowed: %s", domain.ErrValidation, ext, strings.Join(allowed, " "))
	}

	newID := uuid.NewString
	if uc.NewID != nil {
		newID = uc.NewID
	}
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := domain.VideoID(newID())
	filename := string(id) + ext
	written, err := saveFile(uc.VideosDir, filename, input.Body)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return domain.Video{}, err
	}

	ts := now().UTC()
	video := domain.Video{
		ID:           id,
		Filename:     filename,
		OriginalName: original,
		Status:       domain.VideoUploaded,
		UserID:       strings.TrimSpace(input.UserID),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := uc.Repo.Create(ctx, video); err != nil {
		_ = os.Remove(filepath.Join(uc.VideosDir, filename))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return domain.Video{}, wrapRepo(err)
	}
	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytesTotal.Add(float64(written))
	if uc.Notifier != nil {
		uc.Notifier.NotifyStatus(domain.StatusEvent{VideoID: id, Status: domain.VideoUploaded, At: ts})
	}
	logger.Info("video uploaded",
		slog.String("videoId", string(id)),
		slog.String("originalName", original),
		slog.String("size", humanize.Bytes(uint64(written))),
	)

	submitCtx := ctx
	if uc.QueueTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, uc.QueueTimeout)
		defer cancel()
	}
	if err := uc.Queue.Submit(submitCtx, id); err != nil {
		// The upload is durable at this point; the watcher or the startup
		// resume queues it later, so the caller still gets the id.
		metrics.UploadsTotal.WithLabelValues("deferred").Inc()
		logger.Warn("upload accepted but not queued",
			slog.String("videoId", string(id)),
			slog.String("error", err.Error()),
		)
	}
	return video, nil
}

// saveFile streams src into dir/name through a temp file, syncing before
// the rename so a visible file is always complete.
func saveFile(dir, name string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, wrapStorage(err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*.part")
	if err != nil {
		return 0, wrapStorage(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, wrapStorage(fmt.Errorf("write upload: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, wrapStorage(err)
	}
	if err := tmp.Close(); err != nil {
		return 0, wrapStorage(err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return 0, wrapStorage(err)
	}
	return n, nil
}
