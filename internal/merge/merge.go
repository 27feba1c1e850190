// Package merge fuses the analyses of a tender's documents into one record.
package merge

import (
	"fmt"
	"time"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type Engine struct {
	logger logger.Logger
	now    func() time.Time
}

func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log.Named("merge"), now: time.Now}
}

// Merge walks the reducer table over results in the given order; earlier
// documents win ties. It does no I/O.
func (e *Engine) Merge(tenderID string, results []*models.AnalysisResult) (*models.MergedTenderRecord, error) {
	out := &models.MergedTenderRecord{
		TenderID:  tenderID,
		Documents: []string{},
		Fields:    make(map[string]models.TaggedValue),
		Lists:     make(map[string][]models.Item),
		Meta: models.MergeMeta{
			PipelineVersion: models.PipelineVersion,
			ProviderUsed:    []string{},
			MergedAt:        e.now(),
		},
	}

	inputs := make([]input, 0, len(results))
	seenProvider := make(map[string]bool)
	for i, r := range results {
		if r == nil {
			continue
		}
		tree, err := r.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to read analysis %d: %w", i, err)
		}
		source := r.DocumentID
		if source == "" {
			source = fmt.Sprintf("#%d", i+1)
		}
		inputs = append(inputs, input{source: source, tree: tree})
		out.Documents = append(out.Documents, source)
		for _, p := range r.Meta.ProviderUsed {
			if !seenProvider[p] {
				seenProvider[p] = true
				out.Meta.ProviderUsed = append(out.Meta.ProviderUsed, p)
			}
		}
	}
	out.Meta.DocumentCount = len(inputs)

	for _, r := range reducers {
		r.reduce(r.section, inputs, out)
	}
	sortConflicts(out.Conflicts)

	if len(out.Conflicts) > 0 {
		e.logger.Info("Merged with conflicting values",
			logger.String("tender", tenderID),
			logger.Int("conflicts", len(out.Conflicts)),
		)
	}
	return out, nil
}
