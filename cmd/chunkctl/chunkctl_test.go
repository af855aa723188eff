package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"streamswarm/internal/app"
	"streamswarm/internal/domain"
	"streamswarm/internal/domain/ports"
	"streamswarm/internal/inflight"
	"streamswarm/internal/repository/memory"
	"streamswarm/internal/usecase"
)

const fakeSplit = `#!/bin/sh
for last; do :; done
dir=$(dirname "$last")
printf aaaa > "$dir/chunk_000.mp4"
printf bbbbbb > "$dir/chunk_001.mp4"
`

type fixture struct {
	videos string
	chunks string
	ffmpeg string
	repo   *memory.Repository
	guard  *inflight.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	root := t.TempDir()
	f := fixture{
		videos: filepath.Join(root, "videos"),
		chunks: filepath.Join(root, "chunks"),
		ffmpeg: filepath.Join(root, "ffmpeg"),
		repo:   memory.NewRepository(),
		guard:  inflight.NewRegistry(),
	}
	for _, dir := range []string{f.videos, f.chunks} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(f.ffmpeg, []byte(fakeSplit), 0o755); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := app.Config{
		VideosDir:       f.videos,
		ChunksDir:       f.chunks,
		FFMPEGPath:      f.ffmpeg,
		APIPrefix:       "/api",
		ChunkDuration:   5,
		VideoExtensions: []string{".mp4", ".mkv"},
	}
	open := func(context.Context, *slog.Logger) (usecase.ProcessRepository, ports.InFlightGuard, func(), error) {
		return f.repo, f.guard, func() {}, nil
	}
	cmd := newRootCmd(cfg, open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--timeout", "1m"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeChunk(t *testing.T, chunks, id, body string) {
	t.Helper()
	dir := filepath.Join(chunks, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chunk_000.mp4"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeVideo(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSegmentDirectorySkipsProcessedVideos(t *testing.T) {
	f := newFixture(t)
	writeVideo(t, f.videos, "first.mp4")
	writeVideo(t, f.videos, "second.mkv")
	writeVideo(t, f.videos, "notes.txt")

	out, err := f.run(t, "segment")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	for _, want := range []string{"first: 2 chunks, 10 B", "second: 2 chunks, 10 B"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if _, err := os.Stat(filepath.Join(f.chunks, "first", "manifest.json")); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.chunks, "notes")); !os.IsNotExist(err) {
		t.Fatalf("non-video file was segmented")
	}

	out, err = f.run(t, "segment", f.videos)
	if err != nil {
		t.Fatalf("second segment: %v", err)
	}
	if !strings.Contains(out, "first: already ready, skipping") {
		t.Fatalf("processed video not skipped: %q", out)
	}
	v, err := f.repo.Get(context.Background(), "second")
	if err != nil || v.Status != domain.VideoReady || v.TotalChunks != 2 {
		t.Fatalf("record = %+v, %v", v, err)
	}
	chunks, _ := f.repo.ListChunks(context.Background(), "second")
	if len(chunks) != 2 {
		t.Fatalf("catalogued chunks = %d, want 2", len(chunks))
	}
}

func TestSegmentSkipsChunksWithoutRecord(t *testing.T) {
	f := newFixture(t)
	writeVideo(t, f.videos, "legacy.mp4")
	writeChunk(t, f.chunks, "legacy", "old")

	out, err := f.run(t, "segment")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if !strings.Contains(out, "legacy: already processed, skipping") {
		t.Fatalf("output = %q", out)
	}
}

func TestSegmentLeavesFinishedVideosUntouched(t *testing.T) {
	for _, status := range []domain.VideoStatus{domain.VideoProcessing, domain.VideoReady, domain.VideoFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			writeVideo(t, f.videos, "done.mp4")
			writeChunk(t, f.chunks, "done", "original")
			if err := f.repo.Create(context.Background(), domain.Video{
				ID: "done", Filename: "done.mp4", Status: status,
			}); err != nil {
				t.Fatal(err)
			}

			out, err := f.run(t, "segment", filepath.Join(f.videos, "done.mp4"))
			if err != nil {
				t.Fatalf("segment: %v", err)
			}
			if !strings.Contains(out, "done: already "+string(status)+", skipping") {
				t.Fatalf("output = %q", out)
			}
			data, err := os.ReadFile(filepath.Join(f.chunks, "done", "chunk_000.mp4"))
			if err != nil || string(data) != "original" {
				t.Fatalf("chunk rewritten: %q, %v", data, err)
			}
			if _, err := os.Stat(filepath.Join(f.chunks, "done", "chunk_001.mp4")); !os.IsNotExist(err) {
				t.Fatal("segmenter ran for a finished video")
			}
		})
	}
}

func TestSegmentRefusesVideoHeldByAnotherRun(t *testing.T) {
	f := newFixture(t)
	writeVideo(t, f.videos, "busy.mp4")
	if ok, _ := f.guard.TryAcquire(context.Background(), "busy"); !ok {
		t.Fatal("acquire")
	}

	out, err := f.run(t, "segment", filepath.Join(f.videos, "busy.mp4"))
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if !strings.Contains(out, "busy: being processed elsewhere, skipping") {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(f.chunks, "busy")); !os.IsNotExist(err) {
		t.Fatal("chunks written while another run holds the video")
	}
	v, err := f.repo.Get(context.Background(), "busy")
	if err != nil || v.Status != domain.VideoUploaded {
		t.Fatalf("record = %+v, %v", v, err)
	}
	if f.guard.Len() != 1 {
		t.Fatalf("guard entries = %d, the other run's hold must survive", f.guard.Len())
	}
}

func TestManifestAndVerify(t *testing.T) {
	f := newFixture(t)
	writeVideo(t, f.videos, "clip.mp4")
	if _, err := f.run(t, "segment", filepath.Join(f.videos, "clip.mp4")); err != nil {
		t.Fatalf("segment: %v", err)
	}

	out, err := f.run(t, "manifest", "clip")
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if !strings.Contains(out, "clip: 2 chunks") {
		t.Fatalf("manifest output = %q", out)
	}

	out, err = f.run(t, "verify", "--quiet", "clip")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "clip: 2 chunks OK") {
		t.Fatalf("verify output = %q", out)
	}

	if err := os.WriteFile(filepath.Join(f.chunks, "clip", "chunk_001.mp4"), []byte("cccccc"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = f.run(t, "verify", "-q", "clip")
	if err == nil {
		t.Fatal("expected verify to fail after tampering")
	}
	if !strings.Contains(out, "chunk_001.mp4: hash mismatch") {
		t.Fatalf("verify output = %q", out)
	}
}

func TestManifestRefusesVideoInFlight(t *testing.T) {
	f := newFixture(t)
	writeChunk(t, f.chunks, "held", "x")
	if ok, _ := f.guard.TryAcquire(context.Background(), "held"); !ok {
		t.Fatal("acquire")
	}
	if _, err := f.run(t, "manifest", "held"); err == nil {
		t.Fatal("expected manifest to refuse a held video")
	}
	if _, err := os.Stat(filepath.Join(f.chunks, "held", "manifest.json")); !os.IsNotExist(err) {
		t.Fatal("manifest written for a held video")
	}
}

func TestManifestUnknownVideo(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run(t, "manifest", "missing"); err == nil {
		t.Fatal("expected error for unknown video")
	}
}
