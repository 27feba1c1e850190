// Package validator scores an analysis against the critical-field schema.
package validator

import (
	"fmt"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

// Validate scores r against s. It never mutates r.
func Validate(r *models.AnalysisResult, s Schema) (*models.ValidationReport, error) {
	tree, err := r.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}
	return ValidateTree(tree, s), nil
}

// ValidateTree scores a JSON tree in AnalysisResult layout.
func ValidateTree(tree map[string]any, s Schema) *models.ValidationReport {
	report := &models.ValidationReport{
		SchemaVersion: s.Version,
		Filled:        []models.FilledField{},
		Missing:       []models.MissingField{},
	}
	for _, e := range s.Entries {
		filled, missing := check(tree, e)
		if missing != nil {
			report.Missing = append(report.Missing, *missing)
		} else {
			report.Filled = append(report.Filled, filled)
		}
	}

	report.Completeness = 1
	if n := len(s.Entries); n > 0 {
		report.Completeness = float64(len(report.Filled)) / float64(n)
	}
	report.Valid = len(report.Missing) == 0
	return report
}

func check(tree map[string]any, e models.CriticalFieldSpec) (models.FilledField, *models.MissingField) {
	if e.Kind == models.RequireSingle {
		if models.PathEmpty(tree, e.Field) {
			return models.FilledField{}, &models.MissingField{Field: e.Field, Reason: "missing", Paths: []string{e.Field}}
		}
		return models.FilledField{Field: e.Field}, nil
	}

	var present, absent []string
	for _, k := range e.SubKeys {
		if models.PathEmpty(tree, e.Field+"."+k) {
			absent = append(absent, k)
		} else {
			present = append(present, k)
		}
	}

	switch e.Kind {
	case models.RequireAllOf:
		if len(absent) == 0 {
			return models.FilledField{Field: e.Field}, nil
		}
		return models.FilledField{}, &models.MissingField{
			Field:  e.Field,
			Reason: subFieldReason(absent, len(e.SubKeys)),
			Paths:  prefixed(e.Field, absent),
		}
	case models.RequireAnyOf:
		if len(present) > 0 {
			return models.FilledField{Field: e.Field, Note: "present: " + strings.Join(present, ", ")}, nil
		}
		return models.FilledField{}, &models.MissingField{
			Field:  e.Field,
			Reason: "none of " + strings.Join(e.SubKeys, ", ") + " present",
			Paths:  prefixed(e.Field, e.SubKeys),
		}
	default:
		return models.FilledField{}, &models.MissingField{Field: e.Field, Reason: fmt.Sprintf("unknown requirement %q", e.Kind)}
	}
}

func subFieldReason(absent []string, total int) string {
	switch {
	case len(absent) == 1:
		return "missing sub-field " + absent[0]
	case len(absent) == total:
		return "missing all sub-fields " + strings.Join(absent, ", ")
	default:
		return "missing sub-fields " + strings.Join(absent, ", ")
	}
}

func prefixed(field string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = field + "." + k
	}
	return out
}
