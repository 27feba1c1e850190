package models

import (
	"time"
)

const (
	// SourceKey stamps list items with the document that contributed them.
	SourceKey = "source"
	// DateFieldKey names the AnalysisResult date field a merged date entry came
	// from. Entries without it were tarihler.diger items.
	DateFieldKey = "alan"
	// DatesPath is the merged list that carries every date of every document.
	DatesPath = "tarihler"
)

// TaggedValue is a merged scalar and the document it came from.
type TaggedValue struct {
	Value  any    `json:"value"`
	Source string `json:"source"`
}

// MergeConflict keeps every distinct value documents gave for a first-wins field.
type MergeConflict struct {
	Field      string        `json:"field"`
	Chosen     TaggedValue   `json:"chosen"`
	Candidates []TaggedValue `json:"candidates"`
}

type MergeMeta struct {
	PipelineVersion string    `json:"pipeline_version"`
	DocumentCount   int       `json:"document_count"`
	ProviderUsed    []string  `json:"provider_used"`
	MergedAt        time.Time `json:"merged_at"`
}

// MergedTenderRecord fuses the analyses of one tender's documents. Every value
// carries the id of the document it was taken from.
type MergedTenderRecord struct {
	TenderID  string                 `json:"tender_id,omitempty"`
	Documents []string               `json:"documents"`
	Fields    map[string]TaggedValue `json:"fields"`
	Lists     map[string][]Item      `json:"lists"`
	Conflicts []MergeConflict        `json:"conflicts,omitempty"`
	Meta      MergeMeta              `json:"meta"`
}

// Analysis projects the record back into AnalysisResult layout so it can be
// scored like a single document. Source tags are dropped; date entries go back
// to their named fields, first entry per field winning.
func (m *MergedTenderRecord) Analysis() (*AnalysisResult, error) {
	tree := make(map[string]any)
	for path, tv := range m.Fields {
		SetPath(tree, path, tv.Value)
	}
	for path, items := range m.Lists {
		if path == DatesPath {
			projectDates(tree, items)
			continue
		}
		SetPath(tree, path, ItemsToAny(stripSource(items)))
	}

	r := &AnalysisResult{
		DocumentID: m.TenderID,
		Meta: Meta{
			PipelineVersion: m.Meta.PipelineVersion,
			ProviderUsed:    append([]string{}, m.Meta.ProviderUsed...),
			StartedAt:       m.Meta.MergedAt,
		},
	}
	if err := r.ApplyTree(tree); err != nil {
		return nil, err
	}
	return r, nil
}

func projectDates(tree map[string]any, items []Item) {
	var other []Item
	for _, it := range items {
		field, _ := it[DateFieldKey].(string)
		if field == "" {
			other = append(other, it)
			continue
		}
		path := DatesPath + "." + field
		if PathEmpty(tree, path) {
			SetPath(tree, path, it["tarih"])
		}
	}
	if len(other) > 0 {
		SetPath(tree, DatesPath+".diger", ItemsToAny(stripSource(other)))
	}
}

func stripSource(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		c := it.Clone()
		delete(c, SourceKey)
		out[i] = c
	}
	return out
}
