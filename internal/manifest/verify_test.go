package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamswarm/internal/domain"
)

func TestVerifyCleanDirectory(t *testing.T) {
	b := newBuilder(t)
	writeChunks(t, b.ChunkDir("v"), map[string]string{
		"chunk_000.mp4": "a",
		"chunk_001.mp4": "b",
	})
	_, err := b.Build(context.Background(), "v")
	require.NoError(t, err)

	var seen int
	report, err := b.Verify(context.Background(), "v", func(domain.ManifestChunk) { seen++ })
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, seen)
}

func TestVerifyDetectsTampering(t *testing.T) {
	b := newBuilder(t)
	dir := b.ChunkDir("v")
	writeChunks(t, dir, map[string]string{
		"chunk_000.mp4": "aaaa",
		"chunk_001.mp4": "bbbb",
		"chunk_002.mp4": "cccc",
	})
	_, err := b.Build(context.Background(), "v")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk_000.mp4"), []byte("aaab"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk_001.mp4"), []byte("b"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "chunk_002.mp4")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk_003.mp4"), []byte("d"), 0o644))

	report, err := b.Verify(context.Background(), "v", nil)
	require.NoError(t, err)
	require.False(t, report.OK())

	kinds := map[string]MismatchKind{}
	for _, m := range report.Mismatches {
		kinds[m.Filename] = m.Kind
	}
	assert.Equal(t, map[string]MismatchKind{
		"chunk_000.mp4": MismatchHash,
		"chunk_001.mp4": MismatchSize,
		"chunk_002.mp4": MismatchMissing,
		"chunk_003.mp4": MismatchExtra,
	}, kinds)
}

func TestVerifyWithoutManifest(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Verify(context.Background(), "v", nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
