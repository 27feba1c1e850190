// Package provider defines the contract shared by the layout, trained-model and
// generative extraction adapters, plus the polling and health machinery the
// orchestrator drives them with.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

// Provider is one extraction backend. Asynchronous services return from Submit
// as soon as the job is accepted; synchronous ones do their work in Submit and
// hand back a handle that already carries the result.
type Provider interface {
	Name() string
	Layer() models.Layer
	HealthCheck(ctx context.Context) models.Health
	Submit(ctx context.Context, payload models.Payload) (*models.JobHandle, error)
	Poll(ctx context.Context, handle *models.JobHandle) (models.JobState, error)
	// Fetch is only valid after Poll reported JobSucceeded.
	Fetch(ctx context.Context, handle *models.JobHandle) (*models.ProviderResult, error)
}

// Errorf builds a ProviderError of the given kind for provider name.
func Errorf(name string, kind error, format string, args ...any) error {
	return models.NewProviderError(name, kind, fmt.Errorf(format, args...))
}

// asProviderError keeps ProviderErrors and context errors as they are and
// classifies everything else as ErrProviderError.
func asProviderError(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return models.NewProviderError(name, models.ErrProviderError, err)
}
