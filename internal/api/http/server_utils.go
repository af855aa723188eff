package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"streamswarm/internal/domain"
	"streamswarm/internal/usecase"
)

const userIDHeader = "X-User-ID"

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeUseCaseError maps use case failures to responses. subject names the
// missing resource in 404 messages.
func writeUseCaseError(w http.ResponseWriter, err error, subject string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusBadRequest, "not_ready", capitalize(err.Error()))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", subject+" not found")
	case errors.Is(err, domain.ErrAlreadyInFlight),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, usecase.ErrDispatcherStopped):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, usecase.ErrRepository):
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
	case errors.Is(err, usecase.ErrStorage):
		writeError(w, http.StatusInternalServerError, "storage_error", "storage error")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseStatus(value string) (*domain.VideoStatus, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "all" {
		return nil, nil
	}
	status := domain.VideoStatus(value)
	if !status.Valid() {
		return nil, errors.New("invalid status")
	}
	return &status, nil
}

// parseNonNegativeInt returns 0 for an empty value.
func parseNonNegativeInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid number")
	}
	return parsed, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
