// Command chunkctl runs the chunking pipeline offline against the storage
// directories shared with the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"streamswarm/internal/app"
	"streamswarm/internal/domain/ports"
	"streamswarm/internal/manifest"
	"streamswarm/internal/usecase"
)

// storeOpener connects the record store and in-flight guard shared with the
// server. The returned func closes both.
type storeOpener func(ctx context.Context, logger *slog.Logger) (usecase.ProcessRepository, ports.InFlightGuard, func(), error)

func openShared(cfg app.Config) storeOpener {
	return func(ctx context.Context, logger *slog.Logger) (usecase.ProcessRepository, ports.InFlightGuard, func(), error) {
		repo, closeRepo, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		guard, closeGuard, err := app.OpenGuard(ctx, cfg, logger)
		if err != nil {
			closeRepo()
			return nil, nil, nil, err
		}
		return repo, guard, func() {
			closeGuard()
			closeRepo()
		}, nil
	}
}

type rootOptions struct {
	videosDir     string
	chunksDir     string
	ffmpegPath    string
	urlPrefix     string
	chunkDuration int
	extensions    []string
	timeout       time.Duration
	logLevel      string
	open          storeOpener
}

func (o *rootOptions) builder() manifest.Builder {
	return manifest.Builder{
		ChunkRoot:     o.chunksDir,
		ChunkDuration: o.chunkDuration,
		URLPrefix:     o.urlPrefix,
	}
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(o.logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg, openShared(cfg)).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg app.Config, open storeOpener) *cobra.Command {
	opts := &rootOptions{open: open}
	root := &cobra.Command{
		Use:          "chunkctl",
		Short:        "Segment videos and maintain chunk manifests",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.videosDir, "videos-dir", cfg.VideosDir, "Directory holding source videos")
	flags.StringVar(&opts.chunksDir, "chunks-dir", cfg.ChunksDir, "Directory holding chunk subdirectories")
	flags.StringVar(&opts.ffmpegPath, "ffmpeg", cfg.FFMPEGPath, "Path to the ffmpeg binary")
	flags.StringVar(&opts.urlPrefix, "url-prefix", cfg.APIPrefix, "Prefix of chunk URLs written into manifests")
	flags.IntVar(&opts.chunkDuration, "chunk-duration", cfg.ChunkDuration, "Chunk duration in seconds")
	flags.StringSliceVar(&opts.extensions, "ext", cfg.VideoExtensions, "Video file extensions picked up from directories")
	flags.DurationVar(&opts.timeout, "timeout", cfg.SegmentTimeout(), "Maximum time for one ffmpeg run")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newSegmentCmd(opts),
		newManifestCmd(opts),
		newVerifyCmd(opts),
	)
	return root
}
