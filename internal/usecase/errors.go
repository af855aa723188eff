package usecase

import (
	"errors"
	"fmt"

	"streamswarm/internal/domain"
)

var (
	ErrRepository        = errors.New("repository error")
	ErrStorage           = errors.New("storage error")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// wrapRepo tags store failures, passing domain sentinels through untouched
// so callers can still branch on them.
func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyExists) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRepository, err)
}

func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w: %w", ErrStorage, domain.ErrIO, err)
}
