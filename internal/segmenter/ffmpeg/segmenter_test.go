package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"streamswarm/internal/domain"
)

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

const splitThree = `for last; do :; done
dir=$(dirname "$last")
printf '%s\n' "$@" > "$ARGS_FILE"
printf one > "$dir/chunk_000.mp4"
printf two > "$dir/chunk_001.mp4"
printf three > "$dir/chunk_002.mp4"`

func TestSegmentSuccess(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("ARGS_FILE", argsFile)
	s := New(fakeFFmpeg(t, splitThree), time.Minute, nil)

	out := t.TempDir()
	dir, err := s.Segment(context.Background(), "/videos/abc.mp4", out, 5)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if want := filepath.Join(out, "abc"); dir != want {
		t.Fatalf("dir = %q, want %q", dir, want)
	}
	for _, name := range []string{"chunk_000.mp4", "chunk_001.mp4", "chunk_002.mp4"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	want := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", "/videos/abc.mp4",
		"-c", "copy",
		"-map", "0",
		"-f", "segment",
		"-segment_time", "5",
		filepath.Join(dir, "chunk_%03d.mp4"),
	}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v\nwant %v", args, want)
	}
}

func TestSegmentNonZeroExitKeepsDiagnostics(t *testing.T) {
	s := New(fakeFFmpeg(t, `echo "moov atom not found" >&2
echo "Invalid data found when processing input" >&2
exit 1`), time.Minute, nil)

	_, err := s.Segment(context.Background(), "/videos/corrupt.mkv", t.TempDir(), 5)
	if !errors.Is(err, domain.ErrSegmentation) {
		t.Fatalf("expected ErrSegmentation, got %v", err)
	}
	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("expected *SegmentError, got %T", err)
	}
	if segErr.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", segErr.ExitCode)
	}
	for _, line := range []string{"moov atom not found", "Invalid data found"} {
		if !strings.Contains(err.Error(), line) {
			t.Fatalf("error %q missing diagnostic %q", err.Error(), line)
		}
	}
}

func TestSegmentTimeout(t *testing.T) {
	s := New(fakeFFmpeg(t, "exec sleep 5"), 100*time.Millisecond, nil)

	start := time.Now()
	_, err := s.Segment(context.Background(), "/videos/slow.mp4", t.TempDir(), 5)
	if !errors.Is(err, domain.ErrSegmentation) {
		t.Fatalf("expected ErrSegmentation, got %v", err)
	}
	var segErr *SegmentError
	if !errors.As(err, &segErr) || !segErr.TimedOut {
		t.Fatalf("expected timed out SegmentError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
}

func TestSegmentMissingBinary(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"), time.Minute, nil)
	_, err := s.Segment(context.Background(), "/videos/a.mp4", t.TempDir(), 5)
	if !errors.Is(err, domain.ErrSegmentation) {
		t.Fatalf("expected ErrSegmentation, got %v", err)
	}
}

func TestSegmentValidation(t *testing.T) {
	s := New("ffmpeg", 0, nil)
	tests := []struct {
		name     string
		input    string
		duration int
	}{
		{"empty input", "  ", 5},
		{"zero duration", "/videos/a.mp4", 0},
		{"negative duration", "/videos/a.mp4", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Segment(context.Background(), tt.input, t.TempDir(), tt.duration)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestOutputDir(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/v/abc.mp4", filepath.Join("/out", "abc")},
		{"/v/movie.final.mkv", filepath.Join("/out", "movie.final")},
		{"noext", filepath.Join("/out", "noext")},
	}
	for _, tt := range tests {
		if got := OutputDir(tt.input, "/out"); got != tt.want {
			t.Errorf("OutputDir(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	s := New("  ", 0, nil)
	if s.binary != "ffmpeg" {
		t.Fatalf("binary = %q, want ffmpeg", s.binary)
	}
	if s.timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, want %v", s.timeout, DefaultTimeout)
	}
}
