package generative

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

// Name is reported when no generator is configured.
const Name = "generative"

// Adapter runs one generator call per chunk. The call happens in Submit, so
// the returned handle already carries the result and Poll never waits.
type Adapter struct {
	gen      Generator
	maxChars int
	logger   logger.Logger
}

// New wraps gen, which may be nil.
func New(gen Generator, limits config.GenerativeLimits, log logger.Logger) *Adapter {
	return &Adapter{gen: gen, maxChars: limits.MaxChunkChars, logger: log.Named("generative")}
}

func (a *Adapter) Name() string {
	if a.gen == nil {
		return Name
	}
	return a.gen.Name()
}

func (a *Adapter) Layer() models.Layer { return models.LayerGenerative }

// Configured reports whether a generator backs the adapter.
func (a *Adapter) Configured() bool { return a.gen != nil }

func (a *Adapter) HealthCheck(ctx context.Context) models.Health {
	h := models.Health{CheckedAt: time.Now()}
	if a.gen == nil {
		h.Detail = "no generative backend configured"
		return h
	}
	h.Configured = true
	if err := a.gen.Ping(ctx); err != nil {
		h.Detail = err.Error()
		return h
	}
	h.Healthy = true
	return h
}

func (a *Adapter) Submit(ctx context.Context, payload models.Payload) (*models.JobHandle, error) {
	name := a.Name()
	if a.gen == nil {
		return nil, provider.Errorf(name, models.ErrProviderUnavailable, "no generative backend configured")
	}
	chunk := payload.Chunk
	if chunk == nil {
		return nil, provider.Errorf(name, models.ErrProviderError, "generative extraction needs a chunk")
	}

	start := time.Now()
	text, err := a.gen.Generate(ctx, systemPrompt, buildPrompt(chunk, payload.Instruction, payload.Fields, a.maxChars))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, provider.Errorf(name, models.ErrProviderError, "chunk %d: %v", chunk.Index, err)
	}
	tree, err := parseResponse(text)
	if err != nil {
		a.logger.Warn("Discarding malformed generative response",
			logger.Int("chunk", chunk.Index),
			logger.Error(err),
		)
		return nil, provider.Errorf(name, models.ErrProviderError, "chunk %d: %v", chunk.Index, err)
	}

	res := flatten(name, tree, payload.Fields)
	res.Chunks = []int{chunk.Index}
	for p := chunk.StartPage; p <= chunk.EndPage; p++ {
		res.Pages = append(res.Pages, p)
	}
	if raw, err := json.Marshal(tree); err == nil {
		res.Raw = raw
	}

	a.logger.Debug("Chunk extracted",
		logger.Int("chunk", chunk.Index),
		logger.Int("fields", len(res.Fields)),
		logger.Int("lists", len(res.Lists)),
		logger.Duration("took", time.Since(start)),
	)
	return &models.JobHandle{
		ID:          uuid.NewString(),
		Provider:    name,
		SubmittedAt: start,
		Result:      res,
	}, nil
}

func (a *Adapter) Poll(_ context.Context, h *models.JobHandle) (models.JobState, error) {
	if h == nil || h.Result == nil {
		return models.JobState{Status: models.JobFailed, Message: "unknown generative job"}, nil
	}
	return models.JobState{Status: models.JobSucceeded, Result: h.Result}, nil
}

func (a *Adapter) Fetch(_ context.Context, h *models.JobHandle) (*models.ProviderResult, error) {
	if h == nil || h.Result == nil {
		return nil, provider.Errorf(a.Name(), models.ErrProviderError, "no result for job")
	}
	return h.Result, nil
}

// Close releases the generator.
func (a *Adapter) Close() error {
	if a.gen == nil {
		return nil
	}
	return a.gen.Close()
}

// flatten turns a validated answer into catalog fields and lists. When only
// is non-empty, paths outside it are dropped.
func flatten(name string, tree map[string]any, only []string) *models.ProviderResult {
	res := &models.ProviderResult{
		Provider: name,
		Layer:    models.LayerGenerative,
		Fields:   make(map[string]models.FieldValue),
		Lists:    make(map[string][]models.Item),
	}
	unpackAmount(tree)

	for _, f := range requestedFields(only) {
		v, ok := models.GetPath(tree, f.Path)
		if !ok || models.IsEmpty(v) {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		res.Fields[f.Path] = models.FieldValue{Value: v}
	}
	for _, l := range requestedLists(only) {
		var items []models.Item
		for _, it := range models.ItemsAt(tree, l.Path) {
			if !models.IsEmpty(it) {
				items = append(items, it)
			}
		}
		if len(items) > 0 {
			res.Lists[l.Path] = items
		}
	}
	return res
}

// unpackAmount rewrites a bare estimated cost into its object form.
func unpackAmount(tree map[string]any) {
	v, ok := models.GetPath(tree, "mali.tahmini_bedel")
	if !ok {
		return
	}
	switch t := v.(type) {
	case float64:
		models.SetPath(tree, "mali.tahmini_bedel", map[string]any{"tutar": t})
	case string:
		obj := map[string]any{"metin": t}
		if n, ok := textutil.ParseNumber(t); ok {
			obj["tutar"] = n
		}
		models.SetPath(tree, "mali.tahmini_bedel", obj)
	}
}

var _ provider.Provider = (*Adapter)(nil)
