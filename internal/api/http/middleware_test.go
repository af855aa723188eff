package apihttp

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"allow all when unset", nil, "http://anything.example", "http://anything.example"},
		{"whitelisted", []string{"http://a.example", "http://b.example"}, "http://b.example", "http://b.example"},
		{"trailing slash trimmed", []string{"http://a.example/"}, "http://a.example", "http://a.example"},
		{"rejected", []string{"http://a.example"}, "http://evil.example", ""},
		{"same origin", []string{"http://a.example"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := corsMiddleware(tt.allowed, okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Fatalf("allow origin = %q, want %q", got, tt.want)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("handler not executed, status %d", rec.Code)
			}
		})
	}
}

func TestCorsMiddlewareAllowsUserHeader(t *testing.T) {
	handler := corsMiddleware(nil, okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Range, X-User-ID" {
		t.Fatalf("allow headers = %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := rateLimitMiddleware(0.001, 2, okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health should bypass the limiter, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/metrics", "/metrics"},
		{"/health", "/health"},
		{"/ws", "/ws"},
		{"/api/upload", "/upload"},
		{"/api/videos", "/videos"},
		{"/api/video/abc", "/video/:id"},
		{"/api/video/abc/chunks", "/video/:id/chunks"},
		{"/api/manifest/abc", "/manifest/:id"},
		{"/api/status/abc", "/status/:id"},
		{"/api/chunks/abc/chunk_001.mp4", "/chunks/:id/:filename"},
		{"/api/chunks/abc", "/other"},
		{"/favicon.ico", "/other"},
	}
	for _, tt := range tests {
		if got := normalizeRoute("/api", tt.path); got != tt.want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/videos", 200, slog.LevelInfo},
		{"/api/chunks/a/chunk_000.mp4", 206, slog.LevelDebug},
		{"/health", 200, slog.LevelDebug},
		{"/api/video/x", 404, slog.LevelWarn},
		{"/api/upload", 500, slog.LevelError},
	}
	for _, tt := range tests {
		if got := pickRequestLogLevel("/api", tt.path, tt.status); got != tt.want {
			t.Errorf("pickRequestLogLevel(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("remote addr ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("forwarded ip = %q", got)
	}
}
