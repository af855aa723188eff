package apihttp

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"streamswarm/internal/domain"
	"streamswarm/internal/usecase"
)

const uploadField = "video"

type uploadResponse struct {
	VideoID domain.VideoID `json:"video_id"`
	Message string         `json:"message"`
	Status  string         `json:"status"`
}

type videoListResponse struct {
	Videos []domain.Video `json:"videos"`
}

type chunkListResponse struct {
	VideoID domain.VideoID `json:"video_id"`
	Chunks  []domain.Chunk `json:"chunks"`
}

type statusResponse struct {
	VideoID     domain.VideoID     `json:"video_id"`
	Status      domain.VideoStatus `json:"status"`
	TotalChunks int                `json:"total_chunks"`
}

// handleUpload streams the "video" multipart part straight to the use case
// without buffering the form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.upload == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "upload use case not configured")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeError(w, http.StatusBadRequest, "invalid_request", "No video file provided")
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "No video file provided")
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeUseCaseError(w, err, "video")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		if strings.TrimSpace(part.FileName()) == "" {
			_ = part.Close()
			writeError(w, http.StatusBadRequest, "invalid_request", "No video file provided")
			return
		}

		video, err := s.upload.Execute(r.Context(), usecase.UploadInput{
			OriginalName: part.FileName(),
			Body:         part,
			UserID:       r.Header.Get(userIDHeader),
		})
		_ = part.Close()
		if err != nil {
			writeUseCaseError(w, err, "video")
			return
		}
		writeJSON(w, http.StatusAccepted, uploadResponse{
			VideoID: video.ID,
			Message: "Video uploaded and processing started",
			Status:  string(domain.VideoProcessing),
		})
		return
	}
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	if s.listVideos == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "list videos use case not configured")
		return
	}

	query := r.URL.Query()
	status, err := parseStatus(query.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid status")
		return
	}
	limit, err := parseNonNegativeInt(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	offset, err := parseNonNegativeInt(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid offset")
		return
	}

	videos, err := s.listVideos.Execute(r.Context(), domain.VideoFilter{
		Status: status,
		UserID: strings.TrimSpace(query.Get("user_id")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeUseCaseError(w, err, "video")
		return
	}
	if videos == nil {
		videos = []domain.Video{}
	}
	writeJSON(w, http.StatusOK, videoListResponse{Videos: videos})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	if s.getVideo == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "get video use case not configured")
		return
	}
	video, err := s.getVideo.Execute(r.Context(), domain.VideoID(r.PathValue("id")))
	if err != nil {
		writeUseCaseError(w, err, "video")
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if s.getVideo == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "get video use case not configured")
		return
	}
	video, err := s.getVideo.Execute(r.Context(), domain.VideoID(r.PathValue("id")))
	if err != nil {
		writeUseCaseError(w, err, "video")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		VideoID:     video.ID,
		Status:      video.Status,
		TotalChunks: video.TotalChunks,
	})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	if s.listChunks == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "list chunks use case not configured")
		return
	}
	id := domain.VideoID(r.PathValue("id"))
	chunks, err := s.listChunks.Execute(r.Context(), id)
	if err != nil {
		writeUseCaseError(w, err, "video")
		return
	}
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	writeJSON(w, http.StatusOK, chunkListResponse{VideoID: id, Chunks: chunks})
}

func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	if s.getManifest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "manifest use case not configured")
		return
	}
	m, err := s.getManifest.Execute(r.Context(), domain.VideoID(r.PathValue("id")))
	if err != nil {
		writeUseCaseError(w, err, "manifest")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleGetChunk serves a chunk file with range support.
func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	if s.openChunk == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "chunk use case not configured")
		return
	}
	id := domain.VideoID(r.PathValue("id"))
	filename := r.PathValue("filename")
	f, info, err := s.openChunk.Execute(r.Context(), id, filename)
	if err != nil {
		writeUseCaseError(w, err, "chunk")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
