package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotReady          = errors.New("video not ready")
	ErrConflict          = errors.New("conflicting video record")
	ErrSegmentation      = errors.New("segmentation failed")
	ErrManifest          = errors.New("manifest build failed")
	ErrEmptyResult       = errors.New("no chunk files produced")
	ErrIO                = errors.New("storage i/o error")
	ErrAlreadyInFlight   = errors.New("video already being processed")
	ErrQueueFull         = errors.New("processing queue full")
)
