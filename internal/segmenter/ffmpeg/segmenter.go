// Package ffmpeg splits videos into fixed-duration chunks with the ffmpeg
// segment muxer. Streams are copied, never re-encoded.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"streamswarm/internal/domain"
)

const DefaultTimeout = 30 * time.Minute

// SegmentError carries the tool diagnostics of a failed run.
type SegmentError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *SegmentError) Error() string {
	var b strings.Builder
	b.WriteString("ffmpeg ")
	switch {
	case e.TimedOut:
		b.WriteString("timed out")
	case e.ExitCode >= 0:
		b.WriteString("exited with code ")
		b.WriteString(strconv.Itoa(e.ExitCode))
	default:
		b.WriteString("failed")
		if e.Err != nil {
			b.WriteString(": ")
			b.WriteString(e.Err.Error())
		}
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *SegmentError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrSegmentation}
	}
	return []error{domain.ErrSegmentation, e.Err}
}

type Segmenter struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func New(binary string, timeout time.Duration, logger *slog.Logger) *Segmenter {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{binary: bin, timeout: timeout, logger: logger}
}

// OutputDir is the directory Segment writes the chunks of input into.
func OutputDir(input, outputRoot string) string {
	base := filepath.Base(input)
	return filepath.Join(outputRoot, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Segment runs a single ffmpeg attempt. There is no retry; a run exceeding the
// timeout is killed and reported as a failure.
func (s *Segmenter) Segment(ctx context.Context, input, outputRoot string, durationSeconds int) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: input path is required", domain.ErrValidation)
	}
	if durationSeconds <= 0 {
		return "", fmt.Errorf("%w: chunk duration must be positive", domain.ErrValidation)
	}

	outDir := OutputDir(input, outputRoot)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w: create %s: %v", domain.ErrSegmentation, domain.ErrIO, outDir, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := buildArgs(input, outDir, durationSeconds)
	cmd := exec.CommandContext(runCtx, s.binary, args...)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	s.logger.Debug("ffmpeg segment start",
		slog.String("input", input),
		slog.String("outputDir", outDir),
		slog.Int("segmentTime", durationSeconds),
	)

	runErr := cmd.Run()
	if runErr != nil {
		segErr := &SegmentError{ExitCode: -1, Stderr: stderr.String(), Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			segErr.ExitCode = exitErr.ExitCode()
			segErr.Err = nil
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			segErr.TimedOut = true
			segErr.Err = context.DeadlineExceeded
		}
		s.logger.Warn("ffmpeg segment failed",
			slog.String("input", input),
			slog.Int("exitCode", segErr.ExitCode),
			slog.Bool("timedOut", segErr.TimedOut),
			slog.Duration("elapsed", time.Since(start)),
		)
		return "", segErr
	}

	s.logger.Debug("ffmpeg segment done",
		slog.String("input", input),
		slog.Duration("elapsed", time.Since(start)),
	)
	return outDir, nil
}

func buildArgs(input, outDir string, durationSeconds int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-c", "copy",
		"-map", "0",
		"-f", "segment",
		"-segment_time", strconv.Itoa(durationSeconds),
		filepath.Join(outDir, domain.ChunkPattern),
	}
}
