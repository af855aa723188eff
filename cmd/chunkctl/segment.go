package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
	"streamswarm/internal/manifest"
	"streamswarm/internal/segmenter/ffmpeg"
	"streamswarm/internal/usecase"
)

func newSegmentCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "segment [file|dir]...",
		Short: "Split videos into chunks and write their manifests",
		Long: `Split videos into fixed-duration chunks and write a manifest for each.
Directories are scanned for files with a known video extension. Each video
goes through the same record store and in-flight guard as the server, so a
video that is being processed, or has already been processed, is skipped.
Without arguments the videos directory is scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{opts.videosDir}
			}
			inputs, err := collectInputs(args, opts.extensions)
			if err != nil {
				return err
			}

			logger := opts.logger(cmd)
			repo, guard, closeStores, err := opts.open(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer closeStores()

			seg := ffmpeg.New(opts.ffmpegPath, opts.timeout, logger)
			builder := opts.builder()
			out := cmd.OutOrStdout()

			var failed, done int
			for _, input := range inputs {
				id := videoID(input)
				if skip := skipReason(cmd.Context(), repo, builder, id); skip != "" {
					fmt.Fprintf(out, "%s: %s, skipping\n", id, skip)
					continue
				}

				ingest := usecase.IngestFile{
					Repo: repo,
					Queue: inlineQueue{
						guard: guard,
						process: usecase.ProcessVideo{
							Repo:          repo,
							Segmenter:     seg,
							Manifests:     builder,
							VideosDir:     filepath.Dir(input),
							ChunksDir:     opts.chunksDir,
							ChunkDuration: opts.chunkDuration,
							APIPrefix:     opts.urlPrefix,
							Logger:        logger,
						},
					},
				}
				_, err := ingest.Execute(cmd.Context(), input)
				switch {
				case err == nil:
				case errors.Is(err, domain.ErrAlreadyInFlight):
					fmt.Fprintf(out, "%s: being processed elsewhere, skipping\n", id)
					continue
				case errors.Is(err, domain.ErrInvalidTransition):
					fmt.Fprintf(out, "%s: already claimed, skipping\n", id)
					continue
				default:
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}

				m, err := builder.Load(id)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				done++
				fmt.Fprintf(out, "%s: %d chunks, %s\n", id, m.TotalChunks, humanize.Bytes(uint64(totalSize(m))))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d videos failed", failed, failed+done)
			}
			return nil
		},
	}
}

// skipReason reports why id must not be segmented, or "" when it may be.
// Chunks are never rewritten once a video has left the uploaded state.
func skipReason(ctx context.Context, repo ports.VideoRepository, builder manifest.Builder, id domain.VideoID) string {
	v, err := repo.Get(ctx, id)
	switch {
	case err == nil && v.Status != domain.VideoUploaded:
		return "already " + string(v.Status)
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotFound) && manifest.HasChunks(builder.ChunkDir(id)):
		return "already processed"
	default:
		return ""
	}
}

// inlineQueue runs a submitted video on the calling goroutine while holding
// its in-flight guard, refusing ids another process holds.
type inlineQueue struct {
	guard   ports.InFlightGuard
	process usecase.ProcessVideo
}

func (q inlineQueue) Submit(ctx context.Context, id domain.VideoID) error {
	ok, err := q.guard.TryAcquire(ctx, id)
	if err != nil {
		return fmt.Errorf("acquire in-flight guard: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyInFlight
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = q.guard.Release(releaseCtx, id)
	}()
	return q.process.Execute(ctx, id)
}

// collectInputs expands directories into the video files they contain.
func collectInputs(args, extensions []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || !hasExtension(name, extensions) {
				continue
			}
			inputs = append(inputs, filepath.Join(arg, name))
		}
	}
	return inputs, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range extensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

func videoID(path string) domain.VideoID {
	base := filepath.Base(path)
	return domain.VideoID(strings.TrimSuffix(base, filepath.Ext(base)))
}

func totalSize(m domain.Manifest) int64 {
	var n int64
	for _, c := range m.Chunks {
		n += c.Size
	}
	return n
}
