// Package manifest derives and persists the chunk manifest of a video from
// the files on disk.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"streamswarm/internal/digest"
	"streamswarm/internal/domain"
)

type Builder struct {
	ChunkRoot     string
	ChunkDuration int
	// URLPrefix is prepended to "/chunks/<id>/<filename>"; typically the API prefix.
	URLPrefix string
}

func (b Builder) ChunkDir(id domain.VideoID) string {
	return filepath.Join(b.ChunkRoot, string(id))
}

func (b Builder) ManifestPath(id domain.VideoID) string {
	return filepath.Join(b.ChunkDir(id), domain.ManifestFilename)
}

// ChunkPath resolves a chunk file of a video, rejecting names that would
// escape the video's chunk directory.
func (b Builder) ChunkPath(id domain.VideoID, filename string) (string, error) {
	if !validPathElem(string(id)) || !validPathElem(filename) {
		return "", fmt.Errorf("%w: invalid chunk path", domain.ErrNotFound)
	}
	return filepath.Join(b.ChunkDir(id), filename), nil
}

// ChunkURL is the retrieval URL for a chunk.
func (b Builder) ChunkURL(id domain.VideoID, filename string) string {
	prefix := strings.TrimRight(b.URLPrefix, "/")
	return prefix + "/chunks/" + url.PathEscape(string(id)) + "/" + url.PathEscape(filename)
}

// Build scans the chunk directory of id, hashes every chunk and writes the
// manifest next to them. Digests are always recomputed from disk.
func (b Builder) Build(ctx context.Context, id domain.VideoID) (domain.Manifest, error) {
	if !validPathElem(string(id)) {
		return domain.Manifest{}, fmt.Errorf("%w: %w: invalid video id", domain.ErrManifest, domain.ErrValidation)
	}
	dir := b.ChunkDir(id)
	names, err := ListChunks(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Manifest{}, fmt.Errorf("%w: %w: chunk directory %s", domain.ErrManifest, domain.ErrNotFound, dir)
		}
		return domain.Manifest{}, fmt.Errorf("%w: %w: %v", domain.ErrManifest, domain.ErrIO, err)
	}
	if len(names) == 0 {
		return domain.Manifest{}, fmt.Errorf("%w: %w in %s", domain.ErrManifest, domain.ErrEmptyResult, dir)
	}

	m := domain.Manifest{
		VideoID:       id,
		TotalChunks:   len(names),
		ChunkDuration: b.ChunkDuration,
		Chunks:        make([]domain.ManifestChunk, 0, len(names)),
	}
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return domain.Manifest{}, err
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("%w: %w: stat %s: %v", domain.ErrManifest, domain.ErrIO, name, err)
		}
		sum, err := digest.File(path)
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("%w: %w", domain.ErrManifest, err)
		}
		m.Chunks = append(m.Chunks, domain.ManifestChunk{
			ID:       i,
			Filename: name,
			Hash:     sum,
			Size:     info.Size(),
			URL:      b.ChunkURL(id, name),
		})
	}

	if err := writeManifest(b.ManifestPath(id), m); err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: %w: %v", domain.ErrManifest, domain.ErrIO, err)
	}
	return m, nil
}

// Load reads the persisted manifest of id.
func (b Builder) Load(id domain.VideoID) (domain.Manifest, error) {
	if !validPathElem(string(id)) {
		return domain.Manifest{}, domain.ErrNotFound
	}
	data, err := os.ReadFile(b.ManifestPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Manifest{}, domain.ErrNotFound
		}
		return domain.Manifest{}, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: decode manifest: %v", domain.ErrManifest, err)
	}
	return m, nil
}

// ListChunks returns the chunk file names in dir in lexicographic order.
func ListChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsChunkName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// HasChunks reports whether dir exists and holds at least one chunk file.
func HasChunks(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && IsChunkName(e.Name()) {
			return true
		}
	}
	return false
}

func IsChunkName(name string) bool {
	return strings.HasPrefix(name, domain.ChunkPrefix) && strings.HasSuffix(name, domain.ChunkExt)
}

func writeManifest(path string, m domain.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func validPathElem(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
