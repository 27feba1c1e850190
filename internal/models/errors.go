package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is the only document-level fatal condition.
	ErrUnsupportedFormat = errors.New("unsupported format")

	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderError       = errors.New("provider error")

	// ErrNotFound is returned by stores for a missing object or task.
	ErrNotFound = errors.New("not found")
)

// ProviderError ties a provider failure to the provider that produced it.
// Kind is one of ErrProviderUnavailable, ErrProviderTimeout or ErrProviderError.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewProviderError(provider string, kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// SkipReason classifies a provider error for meta.providers_skipped.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	default:
		return "error"
	}
}
