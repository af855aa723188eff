package manifest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"streamswarm/internal/digest"
	"streamswarm/internal/domain"
)

type MismatchKind string

const (
	MismatchMissing MismatchKind = "missing"
	MismatchSize    MismatchKind = "size"
	MismatchHash    MismatchKind = "hash"
	MismatchExtra   MismatchKind = "extra"
)

type Mismatch struct {
	Filename string
	Kind     MismatchKind
	Want     string
	Got      string
}

type VerifyReport struct {
	VideoID    domain.VideoID
	Checked    int
	Mismatches []Mismatch
}

func (r VerifyReport) OK() bool { return len(r.Mismatches) == 0 }

// Verify re-hashes the chunk files of id against its persisted manifest.
// progress, when non-nil, is called after each chunk is checked.
func (b Builder) Verify(ctx context.Context, id domain.VideoID, progress func(domain.ManifestChunk)) (VerifyReport, error) {
	m, err := b.Load(id)
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{VideoID: id}
	dir := b.ChunkDir(id)
	listed := make(map[string]struct{}, len(m.Chunks))

	for _, c := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		listed[c.Filename] = struct{}{}
		path := filepath.Join(dir, c.Filename)
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			report.Mismatches = append(report.Mismatches, Mismatch{Filename: c.Filename, Kind: MismatchMissing})
		case err != nil:
			return report, err
		case info.Size() != c.Size:
			report.Mismatches = append(report.Mismatches, Mismatch{
				Filename: c.Filename, Kind: MismatchSize,
				Want: strconv.FormatInt(c.Size, 10), Got: strconv.FormatInt(info.Size(), 10),
			})
		default:
			sum, err := digest.File(path)
			if err != nil {
				return report, err
			}
			if sum != c.Hash {
				report.Mismatches = append(report.Mismatches, Mismatch{Filename: c.Filename, Kind: MismatchHash, Want: c.Hash, Got: sum})
			}
		}
		report.Checked++
		if progress != nil {
			progress(c)
		}
	}

	names, err := ListChunks(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return report, err
	}
	for _, name := range names {
		if _, ok := listed[name]; !ok {
			report.Mismatches = append(report.Mismatches, Mismatch{Filename: name, Kind: MismatchExtra})
		}
	}
	return report, nil
}
