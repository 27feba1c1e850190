// Package providertest offers a scriptable Provider for pipeline tests.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

// Fake answers Submit with a handle and reports JobPending for PendingPolls
// polls before settling. Respond, when set, builds the result per payload;
// otherwise Result is returned.
type Fake struct {
	ProviderName  string
	ProviderLayer models.Layer
	Status        models.Health

	PendingPolls int
	Fail         string
	SubmitErr    error
	Result       *models.ProviderResult
	Respond      func(models.Payload) (*models.ProviderResult, error)
	// Delay blocks Submit, honouring ctx.
	Delay time.Duration

	mu       sync.Mutex
	payloads []models.Payload
	jobs     map[string]*fakeJob
	seq      int
}

type fakeJob struct {
	polls  int
	result *models.ProviderResult
	err    error
}

func (f *Fake) Name() string        { return f.ProviderName }
func (f *Fake) Layer() models.Layer { return f.ProviderLayer }

func (f *Fake) HealthCheck(context.Context) models.Health {
	h := f.Status
	h.CheckedAt = time.Now()
	return h
}

func (f *Fake) Submit(ctx context.Context, payload models.Payload) (*models.JobHandle, error) {
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}

	var (
		res *models.ProviderResult
		err error
	)
	if f.Respond != nil {
		res, err = f.Respond(payload)
	} else {
		res = f.Result
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if f.jobs == nil {
		f.jobs = make(map[string]*fakeJob)
	}
	f.seq++
	id := fmt.Sprintf("%s-%d", f.ProviderName, f.seq)
	f.jobs[id] = &fakeJob{result: res, err: err}
	return &models.JobHandle{ID: id, Provider: f.ProviderName, SubmittedAt: time.Now()}, nil
}

func (f *Fake) Poll(_ context.Context, h *models.JobHandle) (models.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[h.ID]
	if !ok {
		return models.JobState{}, fmt.Errorf("unknown job %s", h.ID)
	}
	job.polls++
	switch {
	case job.polls <= f.PendingPolls:
		return models.JobState{Status: models.JobPending}, nil
	case f.Fail != "":
		return models.JobState{Status: models.JobFailed, Message: f.Fail}, nil
	case job.err != nil:
		return models.JobState{}, job.err
	}
	return models.JobState{Status: models.JobSucceeded}, nil
}

func (f *Fake) Fetch(_ context.Context, h *models.JobHandle) (*models.ProviderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[h.ID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", h.ID)
	}
	if job.result == nil {
		return &models.ProviderResult{Provider: f.ProviderName, Layer: f.ProviderLayer}, nil
	}
	return job.result, nil
}

// Payloads returns what Submit has been called with.
func (f *Fake) Payloads() []models.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Payload(nil), f.payloads...)
}

// Healthy is a configured, healthy status.
func Healthy() models.Health {
	return models.Health{Configured: true, Healthy: true}
}
