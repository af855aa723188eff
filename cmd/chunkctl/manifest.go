package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"streamswarm/internal/domain"
)

func newManifestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <video-id>...",
		Short: "Rebuild manifests from the chunk files on disk",
		Long: `Rebuild manifests from the chunk files on disk. Videos that are queued or
being processed are refused.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, guard, closeStores, err := opts.open(ctx, opts.logger(cmd))
			if err != nil {
				return err
			}
			defer closeStores()

			builder := opts.builder()
			for _, arg := range args {
				id := domain.VideoID(arg)
				v, err := repo.Get(ctx, id)
				switch {
				case err == nil && v.Status == domain.VideoProcessing:
					return fmt.Errorf("%s: %w", arg, domain.ErrAlreadyInFlight)
				case err != nil && !errors.Is(err, domain.ErrNotFound):
					return fmt.Errorf("%s: %w", arg, err)
				}

				ok, err := guard.TryAcquire(ctx, id)
				if err != nil {
					return fmt.Errorf("%s: acquire in-flight guard: %w", arg, err)
				}
				if !ok {
					return fmt.Errorf("%s: %w", arg, domain.ErrAlreadyInFlight)
				}
				m, err := builder.Build(ctx, id)
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				_ = guard.Release(releaseCtx, id)
				cancel()
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks, %s -> %s\n",
					m.VideoID, m.TotalChunks, humanize.Bytes(uint64(totalSize(m))), builder.ManifestPath(m.VideoID))
			}
			return nil
		},
	}
}
