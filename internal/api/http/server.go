package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamswarm/internal/domain"
	"streamswarm/internal/usecase"
)

const serviceName = "StreamSwarm API"

type UploadVideoUseCase interface {
	Execute(ctx context.Context, input usecase.UploadInput) (domain.Video, error)
}

type GetVideoUseCase interface {
	Execute(ctx context.Context, id domain.VideoID) (domain.Video, error)
}

type ListVideosUseCase interface {
	Execute(ctx context.Context, filter domain.VideoFilter) ([]domain.Video, error)
}

type ListChunksUseCase interface {
	Execute(ctx context.Context, id domain.VideoID) ([]domain.Chunk, error)
}

type GetManifestUseCase interface {
	Execute(ctx context.Context, id domain.VideoID) (domain.Manifest, error)
}

type OpenChunkUseCase interface {
	Execute(ctx context.Context, id domain.VideoID, filename string) (*os.File, os.FileInfo, error)
}

type Server struct {
	upload      UploadVideoUseCase
	getVideo    GetVideoUseCase
	listVideos  ListVideosUseCase
	listChunks  ListChunksUseCase
	getManifest GetManifestUseCase
	openChunk   OpenChunkUseCase

	apiPrefix      string
	allowedOrigins []string
	maxUploadBytes int64
	rateRPS        float64
	rateBurst      int
	logger         *slog.Logger
	hub            *StatusHub
	ownHub         bool
	handler        http.Handler
}

type ServerOption func(*Server)

func WithGetVideo(uc GetVideoUseCase) ServerOption {
	return func(s *Server) {
		s.getVideo = uc
	}
}

func WithListVideos(uc ListVideosUseCase) ServerOption {
	return func(s *Server) {
		s.listVideos = uc
	}
}

func WithListChunks(uc ListChunksUseCase) ServerOption {
	return func(s *Server) {
		s.listChunks = uc
	}
}

func WithGetManifest(uc GetManifestUseCase) ServerOption {
	return func(s *Server) {
		s.getManifest = uc
	}
}

func WithOpenChunk(uc OpenChunkUseCase) ServerOption {
	return func(s *Server) {
		s.openChunk = uc
	}
}

// WithAPIPrefix mounts the video routes under prefix. Defaults to /api.
func WithAPIPrefix(prefix string) ServerOption {
	return func(s *Server) {
		s.apiPrefix = prefix
	}
}

// WithAllowedOrigins configures the CORS whitelist.
// When empty, any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) {
		s.maxUploadBytes = n
	}
}

// WithRateLimit enables a global token bucket. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// WithStatusHub shares a hub that the processing pipeline already notifies.
func WithStatusHub(hub *StatusHub) ServerOption {
	return func(s *Server) {
		s.hub = hub
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(upload UploadVideoUseCase, opts ...ServerOption) *Server {
	s := &Server{
		upload:    upload,
		apiPrefix: "/api",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.apiPrefix = strings.TrimRight(s.apiPrefix, "/")
	if s.hub == nil {
		s.hub = NewStatusHub(s.logger)
		s.ownHub = true
	}

	p := s.apiPrefix
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+p+"/upload", s.handleUpload)
	mux.HandleFunc("GET "+p+"/videos", s.handleListVideos)
	mux.HandleFunc("GET "+p+"/video/{id}", s.handleGetVideo)
	mux.HandleFunc("GET "+p+"/video/{id}/chunks", s.handleListChunks)
	mux.HandleFunc("GET "+p+"/manifest/{id}", s.handleGetManifest)
	mux.HandleFunc("GET "+p+"/chunks/{id}/{filename}", s.handleGetChunk)
	mux.HandleFunc("GET "+p+"/status/{id}", s.handleGetStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, p, mux), "streamswarm",
		otelhttp.WithFilter(func(r *http.Request) bool {
			path := r.URL.Path
			return path != "/metrics" && path != "/health" && path != "/ws"
		}),
	)
	var h http.Handler = metricsMiddleware(p, corsMiddleware(s.allowedOrigins, traced))
	if s.rateRPS > 0 {
		h = rateLimitMiddleware(s.rateRPS, s.rateBurst, h)
	}
	s.handler = recoveryMiddleware(s.logger, h)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// NotifyStatus forwards a status change to WebSocket subscribers.
func (s *Server) NotifyStatus(event domain.StatusEvent) {
	s.hub.NotifyStatus(event)
}

// Close disconnects WebSocket clients when the server owns its hub.
func (s *Server) Close() {
	if s.ownHub {
		s.hub.Close()
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: serviceName})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if !s.hub.add(client) {
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
