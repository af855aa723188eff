package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"streamswarm/internal/domain"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "verify <video-id>",
		Short: "Re-hash chunk files and compare them with the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.VideoID(args[0])
			builder := opts.builder()
			m, err := builder.Load(id)
			if err != nil {
				return fmt.Errorf("%s: load manifest: %w", id, err)
			}

			var progress func(domain.ManifestChunk)
			if !quiet {
				bar := progressbar.NewOptions(len(m.Chunks),
					progressbar.OptionSetDescription("verifying "+string(id)),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "=",
						SaucerHead:    ">",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
				)
				defer bar.Finish()
				progress = func(domain.ManifestChunk) { _ = bar.Add(1) }
			}

			report, err := builder.Verify(cmd.Context(), id, progress)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}

			out := cmd.OutOrStdout()
			for _, mm := range report.Mismatches {
				switch {
				case mm.Want != "" || mm.Got != "":
					fmt.Fprintf(out, "%s: %s mismatch (want %s, got %s)\n", mm.Filename, mm.Kind, mm.Want, mm.Got)
				default:
					fmt.Fprintf(out, "%s: %s\n", mm.Filename, mm.Kind)
				}
			}
			if !report.OK() {
				return fmt.Errorf("%s: %d of %d chunks do not match the manifest", id, len(report.Mismatches), report.Checked)
			}
			fmt.Fprintf(out, "%s: %d chunks OK\n", id, report.Checked)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return cmd
}
