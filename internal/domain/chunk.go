package domain

import "time"

const (
	ChunkPrefix      = "chunk_"
	ChunkExt         = ".mp4"
	ChunkPattern     = ChunkPrefix + "%03d" + ChunkExt
	ManifestFilename = "manifest.json"
)

type Chunk struct {
	VideoID   VideoID   `json:"video_id"`
	ChunkID   int       `json:"chunk_id"`
	Filename  string    `json:"filename"`
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type ManifestChunk struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Manifest is the file-resident description of a video's chunk set.
type Manifest struct {
	VideoID       VideoID         `json:"video_id"`
	TotalChunks   int             `json:"total_chunks"`
	ChunkDuration int             `json:"chunk_duration"`
	Chunks        []ManifestChunk `json:"chunks"`
}

// ChunkRecords projects the manifest into store records stamped with now.
func (m Manifest) ChunkRecords(now time.Time) []Chunk {
	out := make([]Chunk, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		out = append(out, Chunk{
			VideoID:   m.VideoID,
			ChunkID:   c.ID,
			Filename:  c.Filename,
			Hash:      c.Hash,
			Size:      c.Size,
			URL:       c.URL,
			CreatedAt: now,
		})
	}
	return out
}
