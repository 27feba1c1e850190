package provider

import (
	"context"
	"errors"
	"time"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// Poller drives Submit/Poll/Fetch for any Provider. It polls immediately after
// submission and then on a fixed interval, giving up after MaxAttempts polls.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	logger      logger.Logger
}

func NewPoller(cfg config.PollConfig, log logger.Logger) *Poller {
	return &Poller{Interval: cfg.Interval, MaxAttempts: cfg.MaxAttempts, logger: log.Named("poller")}
}

// Run submits payload and waits for its result.
func (p *Poller) Run(ctx context.Context, prov Provider, payload models.Payload) (*models.ProviderResult, error) {
	handle, err := prov.Submit(ctx, payload)
	if err != nil {
		return nil, asProviderError(prov.Name(), err)
	}
	return p.Await(ctx, prov, handle)
}

// Await polls handle until it settles. Polling exhaustion yields
// ErrProviderTimeout, an explicit failure ErrProviderError. A cancelled ctx
// abandons the job; the remote side is not told.
func (p *Poller) Await(ctx context.Context, prov Provider, handle *models.JobHandle) (*models.ProviderResult, error) {
	name := prov.Name()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		state, err := prov.Poll(ctx, handle)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, asProviderError(name, err)
		}

		switch state.Status {
		case models.JobSucceeded:
			if state.Result != nil {
				return state.Result, nil
			}
			res, err := prov.Fetch(ctx, handle)
			if err != nil {
				return nil, asProviderError(name, err)
			}
			return res, nil
		case models.JobFailed:
			return nil, Errorf(name, models.ErrProviderError, "job %s failed: %s", handle.ID, state.Message)
		}

		if attempt == p.MaxAttempts {
			break
		}
		if timer == nil {
			timer = time.NewTimer(p.Interval)
		} else {
			timer.Reset(p.Interval)
		}
		select {
		case <-ctx.Done():
			p.logger.Debug("Abandoning job",
				logger.String("provider", name),
				logger.String("job", handle.ID),
				logger.Int("attempt", attempt),
			)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p.logger.Warn("Polling exhausted",
		logger.String("provider", name),
		logger.String("job", handle.ID),
		logger.Int("attempts", p.MaxAttempts),
	)
	return nil, Errorf(name, models.ErrProviderTimeout, "job %s still pending after %d polls", handle.ID, p.MaxAttempts)
}

// IsSkippable reports whether err is a layer-level failure the pipeline absorbs.
func IsSkippable(err error) bool {
	var pe *models.ProviderError
	return errors.As(err, &pe)
}
