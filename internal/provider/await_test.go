package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/internal/provider/providertest"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

func poller(attempts int) *provider.Poller {
	return provider.NewPoller(config.PollConfig{Interval: time.Millisecond, MaxAttempts: attempts}, logger.NewNop())
}

func TestAwaitSucceedsAfterPending(t *testing.T) {
	want := &models.ProviderResult{Provider: "trained", Fields: map[string]models.FieldValue{"kurum.ad": {Value: "Belediye"}}}
	fake := &providertest.Fake{ProviderName: "trained", PendingPolls: 3, Result: want}

	got, err := poller(10).Run(context.Background(), fake, models.Payload{})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestAwaitTimesOut(t *testing.T) {
	fake := &providertest.Fake{ProviderName: "trained", PendingPolls: 100}

	_, err := poller(5).Run(context.Background(), fake, models.Payload{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProviderTimeout)
	assert.True(t, provider.IsSkippable(err))
	assert.Equal(t, "timeout", models.SkipReason(err))
}

func TestAwaitReportsExplicitFailure(t *testing.T) {
	fake := &providertest.Fake{ProviderName: "layout", Fail: "InvalidS3Object"}

	_, err := poller(5).Run(context.Background(), fake, models.Payload{})
	assert.ErrorIs(t, err, models.ErrProviderError)
	assert.Contains(t, err.Error(), "InvalidS3Object")
}

func TestRunClassifiesSubmitErrors(t *testing.T) {
	fake := &providertest.Fake{ProviderName: "layout", SubmitErr: errors.New("connection refused")}

	_, err := poller(5).Run(context.Background(), fake, models.Payload{})
	var pe *models.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "layout", pe.Provider)
	assert.ErrorIs(t, err, models.ErrProviderError)
}

func TestAwaitHonoursCancellation(t *testing.T) {
	fake := &providertest.Fake{ProviderName: "trained", PendingPolls: 1000}
	p := provider.NewPoller(config.PollConfig{Interval: time.Hour, MaxAttempts: 60}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Run(ctx, fake, models.Payload{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, provider.IsSkippable(err))
}
