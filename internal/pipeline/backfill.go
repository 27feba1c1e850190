package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

// Backfiller re-asks the generative provider for critical fields the first
// pass left empty, on the chunks most likely to mention them. It only fills
// gaps and makes at most one call per chunk.
type Backfiller struct {
	gen     provider.Provider
	poller  *provider.Poller
	cfg     config.PipelineConfig
	workers int
	logger  logger.Logger
}

func NewBackfiller(gen provider.Provider, poller *provider.Poller, cfg config.PipelineConfig, log logger.Logger) *Backfiller {
	return &Backfiller{
		gen:     gen,
		poller:  poller,
		cfg:     cfg,
		workers: max(cfg.Generative.Workers, 1),
		logger:  log.Named("backfill"),
	}
}

// chunkRequest is one generative call: a chunk and the paths to look for in it.
type chunkRequest struct {
	chunk  int
	fields []string
}

// Plan maps each missing entry onto the chunks whose text matches its keyword
// hints, or onto every chunk when none match.
func (b *Backfiller) Plan(report *models.ValidationReport, chunks []models.Chunk) []chunkRequest {
	if report == nil || report.Valid || len(chunks) == 0 {
		return nil
	}
	wanted := make(map[int]map[string]bool)
	for _, m := range report.Missing {
		paths := m.Paths
		if len(paths) == 0 {
			paths = []string{m.Field}
		}
		hints := append([]string(nil), b.cfg.HintsFor(m.Field)...)
		for _, p := range paths {
			if p != m.Field {
				hints = append(hints, b.cfg.HintsFor(p)...)
			}
		}

		var selected []int
		for i, c := range chunks {
			if textutil.ContainsAny(c.Text, hints) {
				selected = append(selected, i)
			}
		}
		if len(selected) == 0 {
			for i := range chunks {
				selected = append(selected, i)
			}
		}

		for _, i := range selected {
			if wanted[i] == nil {
				wanted[i] = make(map[string]bool)
			}
			for _, p := range paths {
				wanted[i][p] = true
			}
		}
	}

	plan := make([]chunkRequest, 0, len(wanted))
	for i, set := range wanted {
		req := chunkRequest{chunk: i}
		for p := range set {
			req.fields = append(req.fields, p)
		}
		sort.Strings(req.fields)
		plan = append(plan, req)
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].chunk < plan[j].chunk })
	return plan
}

// Run fills gaps in result in place and returns the paths it filled. Provider
// failures are absorbed; only a done ctx is returned, after applying whatever
// arrived before it.
func (b *Backfiller) Run(ctx context.Context, result *models.AnalysisResult, report *models.ValidationReport, chunks []models.Chunk) ([]string, error) {
	if b.gen == nil {
		return nil, nil
	}
	plan := b.Plan(report, chunks)
	if len(plan) == 0 {
		return nil, nil
	}
	b.logger.Info("Backfilling missing fields",
		logger.String("document", result.DocumentID),
		logger.Strings("missing", report.MissingPaths()),
		logger.Int("calls", len(plan)),
	)

	results := make([]*models.ProviderResult, len(plan))
	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for i, req := range plan {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			payload := models.Payload{
				Chunk:       &chunks[req.chunk],
				Instruction: backfillInstruction(req.fields),
				Fields:      req.fields,
			}
			res, err := b.poller.Run(ctx, b.gen, payload)
			if err != nil {
				b.logger.Warn("Backfill call failed",
					logger.Int("chunk", req.chunk),
					logger.Error(err),
				)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	filled, err := applyGaps(result, results)
	if err != nil {
		return nil, err
	}
	if len(filled) > 0 {
		b.logger.Info("Backfill filled fields",
			logger.String("document", result.DocumentID),
			logger.Strings("filled", filled),
		)
	}
	return filled, ctx.Err()
}

// applyGaps consolidates results and writes their values into the empty paths of r.
func applyGaps(r *models.AnalysisResult, results []*models.ProviderResult) ([]string, error) {
	found := consolidate(results)
	if len(found.provenance) == 0 && len(found.tree) == 0 {
		return nil, nil
	}
	tree, err := r.Tree()
	if err != nil {
		return nil, err
	}
	sources := make(map[string]models.FieldSource)
	filled := fillGaps(tree, sources, found)
	if len(filled) == 0 {
		return nil, nil
	}
	if err := r.ApplyTree(tree); err != nil {
		return nil, fmt.Errorf("failed to apply backfilled values: %w", err)
	}
	if r.Provenance == nil {
		r.Provenance = make(map[string]models.FieldSource, len(sources))
	}
	for path, src := range sources {
		r.Provenance[path] = src
	}
	return filled, nil
}

func backfillInstruction(fields []string) string {
	return "İlk taramada şu alanlar bulunamadı: " + strings.Join(fields, ", ") +
		". Yalnızca bu alanları metinde ara; bulamadıklarını boş bırak."
}
