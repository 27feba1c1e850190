package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// Monitor refreshes provider health out-of-band. Document processing only
// reads the latest snapshot, which is replaced atomically on each refresh.
type Monitor struct {
	providers []Provider
	interval  time.Duration
	timeout   time.Duration
	logger    logger.Logger
	snapshot  atomic.Pointer[map[string]models.Health]
}

// NewMonitor checks every provider once before returning, so the first
// snapshot is never empty. Nil providers are ignored.
func NewMonitor(ctx context.Context, providers []Provider, interval time.Duration, log logger.Logger) *Monitor {
	m := &Monitor{
		interval: interval,
		timeout:  10 * time.Second,
		logger:   log.Named("health"),
	}
	for _, p := range providers {
		if p != nil {
			m.providers = append(m.providers, p)
		}
	}
	m.Refresh(ctx)
	return m
}

// Refresh checks all providers concurrently and publishes a new snapshot.
func (m *Monitor) Refresh(ctx context.Context) {
	results := make([]models.Health, len(m.providers))
	var wg sync.WaitGroup
	for i, p := range m.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			h := p.HealthCheck(cctx)
			if h.CheckedAt.IsZero() {
				h.CheckedAt = time.Now()
			}
			results[i] = h
		}(i, p)
	}
	wg.Wait()

	snap := make(map[string]models.Health, len(m.providers))
	for i, p := range m.providers {
		snap[p.Name()] = results[i]
		if !results[i].Available() {
			m.logger.Warn("Provider not available",
				logger.String("provider", p.Name()),
				logger.Bool("configured", results[i].Configured),
				logger.Bool("healthy", results[i].Healthy),
				logger.String("detail", results[i].Detail),
			)
		}
	}
	m.snapshot.Store(&snap)
}

// Run refreshes on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Health returns the last known health of the named provider. Unknown names
// report neither configured nor healthy.
func (m *Monitor) Health(name string) models.Health {
	if snap := m.snapshot.Load(); snap != nil {
		if h, ok := (*snap)[name]; ok {
			return h
		}
	}
	return models.Health{}
}

// Snapshot returns a copy of the latest health map.
func (m *Monitor) Snapshot() map[string]models.Health {
	out := make(map[string]models.Health)
	if snap := m.snapshot.Load(); snap != nil {
		for k, v := range *snap {
			out[k] = v
		}
	}
	return out
}
