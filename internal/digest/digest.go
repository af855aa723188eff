// Package digest computes content digests of chunk files.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	sha256 "github.com/minio/sha256-simd"

	"streamswarm/internal/domain"
)

// BlockSize is the read buffer used while streaming a file through the hash.
const BlockSize = 64 << 10

// File returns the hex SHA-256 of the file at path. Memory use is bounded by
// BlockSize regardless of file size.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", domain.ErrIO, path, err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", domain.ErrIO, path, err)
	}
	return sum, nil
}

// Reader hashes r until EOF.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, BlockSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// onlyReader hides WriterTo so CopyBuffer honours the fixed buffer.
type onlyReader struct {
	io.Reader
}
