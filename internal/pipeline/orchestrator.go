// Package pipeline runs one document through chunking, the three extraction
// layers, consolidation, validation and backfill.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/chunker"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/internal/provider/layout"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

const extractionInstruction = "Bu metin bir kamu ihalesi dokümanının bir parçasıdır. " +
	"Parçada geçen bilgileri istenen alanlara yerleştir; parçada olmayan alanları boş bırak."

// DocumentChunker turns a document into chunks, using fallback when the
// document has no text layer.
type DocumentChunker interface {
	Chunk(ctx context.Context, doc *models.Document, fallback chunker.Fallback) (*models.NormalizedDocument, []models.Chunk, error)
}

// HealthSource answers from the last out-of-band health check.
type HealthSource interface {
	Health(name string) models.Health
}

// Providers are the three extraction layers. Any of them may be nil.
type Providers struct {
	Layout       provider.Provider
	TrainedModel provider.Provider
	Generative   provider.Provider
}

// Options tune a single Analyze call.
type Options struct {
	OnProgress ProgressFunc
	// Timeout overrides the configured per-document timeout when positive.
	Timeout time.Duration
}

type Orchestrator struct {
	cfg       config.PipelineConfig
	schema    validator.Schema
	chunker   DocumentChunker
	providers Providers
	health    HealthSource
	poller    *provider.Poller
	backfill  *Backfiller
	logger    logger.Logger
}

func New(cfg config.PipelineConfig, schema validator.Schema, ch DocumentChunker, providers Providers, health HealthSource, log logger.Logger) *Orchestrator {
	poller := provider.NewPoller(cfg.Poll, log)
	return &Orchestrator{
		cfg:       cfg,
		schema:    schema,
		chunker:   ch,
		providers: providers,
		health:    health,
		poller:    poller,
		backfill:  NewBackfiller(providers.Generative, poller, cfg, log),
		logger:    log.Named("pipeline"),
	}
}

// run is the state of one Analyze call.
type run struct {
	doc      *models.Document
	result   *models.AnalysisResult
	results  []*models.ProviderResult
	chunks   []models.Chunk
	progress *emitter

	// layout is set when the layout provider already ran as OCR fallback.
	layout      *models.ProviderResult
	layoutTried bool
}

func (r *run) skip(name string, stage Stage, err error) {
	s := models.SkippedProvider{Provider: name, Stage: string(stage), Reason: models.SkipReason(err)}
	if err != nil {
		s.Detail = err.Error()
	}
	r.result.Meta.ProvidersSkipped = append(r.result.Meta.ProvidersSkipped, s)
}

func (r *run) warn(format string, args ...any) {
	r.result.Meta.Warnings = append(r.result.Meta.Warnings, fmt.Sprintf(format, args...))
}

// Analyze runs the whole pipeline for doc. The only error that ends it early
// is models.ErrUnsupportedFormat. When the timeout elapses the partial result
// is returned with meta.timed_out set and a nil error; when ctx is cancelled
// the partial result is returned together with ctx's error.
func (o *Orchestrator) Analyze(ctx context.Context, doc *models.Document, opts Options) (*models.AnalysisResult, error) {
	timeout := o.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := &run{
		doc: doc,
		result: &models.AnalysisResult{
			DocumentID: doc.ID,
			Meta: models.Meta{
				PipelineVersion: models.PipelineVersion,
				FileName:        doc.Name,
				ProviderUsed:    []string{},
				StartedAt:       time.Now(),
			},
		},
		progress: &emitter{sink: opts.OnProgress},
	}
	log := o.logger.With(logger.String("document", doc.ID))

	r.progress.stage(StageChunking, "Doküman metne çevriliyor")
	nd, chunks, err := o.chunker.Chunk(ctx, doc, o.ocrFallback(r))
	if err != nil {
		if ctx.Err() != nil {
			return o.stop(ctx, r)
		}
		if !errors.Is(err, models.ErrUnsupportedFormat) {
			err = fmt.Errorf("%w: %v", models.ErrUnsupportedFormat, err)
		}
		log.Warn("Document cannot be analyzed", logger.Error(err))
		r.progress.stage(StageFailed, err.Error())
		return nil, err
	}
	r.chunks = chunks
	r.result.Meta.PageCount = len(nd.Pages)
	r.result.Meta.TextMethod = nd.Method
	r.result.Meta.ChunkCount = len(chunks)

	steps := []struct {
		stage Stage
		msg   string
		fn    func(context.Context, *run)
	}{
		{StageLayout, "Sayfa düzeni ve tablolar çıkarılıyor", o.layoutLayer},
		{StageModel, "Eğitilmiş model ile alanlar çıkarılıyor", o.modelLayer},
		{StageGenerative, fmt.Sprintf("%d parça yapay zeka ile analiz ediliyor", len(chunks)), o.generativeLayer},
	}
	for _, s := range steps {
		if ctx.Err() != nil {
			return o.stop(ctx, r)
		}
		r.progress.stage(s.stage, s.msg)
		s.fn(ctx, r)
	}
	if ctx.Err() != nil {
		return o.stop(ctx, r)
	}

	r.progress.stage(StageConsolidation, "Sonuçlar birleştiriliyor")
	if err := o.consolidate(r); err != nil {
		return nil, err
	}

	r.progress.stage(StageValidation, "Kritik alanlar kontrol ediliyor")
	before, err := validator.Validate(r.result, o.schema)
	if err != nil {
		return nil, err
	}
	r.result.CriticalFields.Before = before
	r.result.CriticalFields.After = before

	if !before.Valid && ctx.Err() == nil {
		r.progress.stage(StageBackfill, fmt.Sprintf("%d eksik alan için ek tarama yapılıyor", len(before.Missing)))
		o.runBackfill(ctx, r, before)
	}
	if ctx.Err() != nil {
		return o.stop(ctx, r)
	}

	r.progress.stage(StageFinalValidation, "Son doğrulama")
	after, err := validator.Validate(r.result, o.schema)
	if err != nil {
		return nil, err
	}
	r.result.CriticalFields.After = after

	r.result.Meta.DurationMs = time.Since(r.result.Meta.StartedAt).Milliseconds()
	r.progress.stage(StageDone, fmt.Sprintf("Analiz tamamlandı, tamamlanma %%%.0f", after.Completeness*100))
	log.Info("Analysis finished",
		logger.Strings("providers", r.result.Meta.ProviderUsed),
		logger.Float64("completenessBefore", before.Completeness),
		logger.Float64("completenessAfter", after.Completeness),
		logger.Int64("durationMs", r.result.Meta.DurationMs),
	)
	return r.result, nil
}

// available consults the health snapshot and records a skip when p cannot be used.
func (o *Orchestrator) available(r *run, p provider.Provider, stage Stage) bool {
	if p == nil {
		return false
	}
	h := o.health.Health(p.Name())
	if h.Available() {
		return true
	}
	detail := h.Detail
	if detail == "" {
		detail = "not configured"
	}
	if r != nil {
		r.skip(p.Name(), stage, models.NewProviderError(p.Name(), models.ErrProviderUnavailable, errors.New(detail)))
	}
	o.logger.Info("Skipping provider",
		logger.String("provider", p.Name()),
		logger.String("stage", string(stage)),
		logger.String("reason", detail),
	)
	return false
}

// ocrFallback lets the chunker use the layout provider's OCR for documents
// without a text layer. Its result is reused by the layout stage.
func (o *Orchestrator) ocrFallback(r *run) chunker.Fallback {
	p := o.providers.Layout
	if p == nil || !o.health.Health(p.Name()).Available() {
		return nil
	}
	return func(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error) {
		r.layoutTried = true
		res, err := o.poller.Run(ctx, p, models.Payload{Document: doc})
		if err != nil {
			if ctx.Err() == nil {
				r.skip(p.Name(), StageChunking, err)
			}
			return nil, err
		}
		r.layout = res
		return layout.Normalized(doc.ID, res), nil
	}
}

func (o *Orchestrator) layoutLayer(ctx context.Context, r *run) {
	p := o.providers.Layout
	res := r.layout
	if res == nil {
		if r.layoutTried || !o.available(r, p, StageLayout) {
			return
		}
		var err error
		res, err = o.poller.Run(ctx, p, models.Payload{Document: r.doc})
		if err != nil {
			o.layerFailed(ctx, r, p.Name(), StageLayout, err)
			return
		}
		r.chunks = chunker.AttachTables(r.chunks, res.Tables)
	}
	r.results = append(r.results, res)
	r.result.Meta.UsedProvider(res.Provider)
}

func (o *Orchestrator) modelLayer(ctx context.Context, r *run) {
	p := o.providers.TrainedModel
	if !o.available(r, p, StageModel) {
		return
	}
	res, err := o.poller.Run(ctx, p, models.Payload{Document: r.doc})
	if err != nil {
		o.layerFailed(ctx, r, p.Name(), StageModel, err)
		return
	}
	r.results = append(r.results, res)
	r.result.Meta.UsedProvider(res.Provider)
}

// generativeLayer extracts every chunk with bounded concurrency and collects
// results by chunk index.
func (o *Orchestrator) generativeLayer(ctx context.Context, r *run) {
	p := o.providers.Generative
	if !o.available(r, p, StageGenerative) {
		return
	}

	total := len(r.chunks)
	results := make([]*models.ProviderResult, total)
	errs := make([]error, total)
	var (
		mu   sync.Mutex
		done int
	)

	g := new(errgroup.Group)
	g.SetLimit(max(o.cfg.Generative.Workers, 1))
	for i := range r.chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return nil
			}
			res, err := o.poller.Run(ctx, p, models.Payload{Chunk: &r.chunks[i], Instruction: extractionInstruction})
			results[i], errs[i] = res, err

			mu.Lock()
			defer mu.Unlock()
			done++
			r.progress.emit(StageGenerative, fmt.Sprintf("Parça %d/%d analiz edildi", done, total),
				stageProgress[StageGenerative]+(stageProgress[StageConsolidation]-stageProgress[StageGenerative])*done/(total+1))
			return nil
		})
	}
	g.Wait()

	var (
		failed  int
		lastErr error
		used    bool
	)
	for i, res := range results {
		if res != nil {
			r.results = append(r.results, res)
			used = true
			continue
		}
		if errs[i] != nil && ctx.Err() == nil {
			failed++
			lastErr = errs[i]
			o.logger.Warn("Chunk extraction failed",
				logger.String("document", r.doc.ID),
				logger.Int("chunk", i),
				logger.Error(errs[i]),
			)
		}
	}
	switch {
	case used:
		r.result.Meta.UsedProvider(p.Name())
		if failed > 0 {
			r.warn("%s: %d/%d parça başarısız", p.Name(), failed, total)
		}
	case failed > 0:
		r.skip(p.Name(), StageGenerative, lastErr)
	}
}

func (o *Orchestrator) layerFailed(ctx context.Context, r *run, name string, stage Stage, err error) {
	if ctx.Err() != nil {
		return
	}
	r.skip(name, stage, err)
	o.logger.Warn("Provider layer skipped",
		logger.String("document", r.doc.ID),
		logger.String("provider", name),
		logger.String("stage", string(stage)),
		logger.Error(err),
	)
}

func (o *Orchestrator) consolidate(r *run) error {
	c := consolidate(r.results)
	if err := r.result.ApplyTree(c.tree); err != nil {
		return fmt.Errorf("failed to build analysis: %w", err)
	}
	r.result.Provenance = c.provenance
	return nil
}

func (o *Orchestrator) runBackfill(ctx context.Context, r *run, report *models.ValidationReport) {
	if !o.available(nil, o.providers.Generative, StageBackfill) {
		o.logger.Info("Backfill skipped, generative provider unavailable", logger.String("document", r.doc.ID))
		return
	}
	r.result.Meta.BackfillRan = true
	filled, err := o.backfill.Run(ctx, r.result, report, r.chunks)
	r.result.Meta.BackfillFilled = filled
	if err != nil && ctx.Err() == nil {
		r.warn("backfill: %v", err)
	}
}

// stop finishes a run cut short by ctx with whatever was extracted so far.
func (o *Orchestrator) stop(ctx context.Context, r *run) (*models.AnalysisResult, error) {
	err := ctx.Err()
	if r.result.CriticalFields.Before == nil {
		if cerr := o.consolidate(r); cerr != nil {
			return nil, cerr
		}
	}
	report, verr := validator.Validate(r.result, o.schema)
	if verr != nil {
		return nil, verr
	}
	if r.result.CriticalFields.Before == nil {
		r.result.CriticalFields.Before = report
	}
	r.result.CriticalFields.After = report
	r.result.Meta.DurationMs = time.Since(r.result.Meta.StartedAt).Milliseconds()

	if errors.Is(err, context.DeadlineExceeded) {
		r.result.Meta.TimedOut = true
		r.warn("zaman aşımı: kısmi sonuç döndürüldü")
		o.logger.Warn("Analysis timed out, returning partial result", logger.String("document", r.doc.ID))
		return r.result, nil
	}
	o.logger.Info("Analysis cancelled", logger.String("document", r.doc.ID))
	return r.result, err
}
