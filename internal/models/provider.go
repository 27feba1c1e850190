package models

import (
	"encoding/json"
	"time"
)

// Layer identifies the kind of provider. When candidates cannot be compared by
// confidence, consolidation ranks trained model over generative over layout.
type Layer int

const (
	LayerLayout Layer = iota + 1
	LayerTrainedModel
	LayerGenerative
)

func (l Layer) String() string {
	switch l {
	case LayerLayout:
		return "layout"
	case LayerTrainedModel:
		return "trained_model"
	case LayerGenerative:
		return "generative"
	default:
		return "unknown"
	}
}

// FieldValue is one extracted scalar. Confidence is nil when the service reports none.
type FieldValue struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Item is one element of a list section (meal, staff position, penalty, ...).
type Item map[string]any

// ProviderResult is the immutable output of one provider call.
type ProviderResult struct {
	Provider string                `json:"provider"`
	Layer    Layer                 `json:"layer"`
	Chunks   []int                 `json:"chunks,omitempty"`
	Pages    []int                 `json:"pages,omitempty"`
	Fields   map[string]FieldValue `json:"fields,omitempty"`
	Lists    map[string][]Item     `json:"lists,omitempty"`
	Tables   []Table               `json:"tables,omitempty"`
	// PageTexts is filled by layout providers so scanned documents can be chunked.
	PageTexts []PageText      `json:"pageTexts,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Empty reports whether the result carries no usable data.
func (r *ProviderResult) Empty() bool {
	return r == nil || (len(r.Fields) == 0 && len(r.Lists) == 0 && len(r.Tables) == 0)
}

// Payload is what a provider is asked to work on: a whole document for the
// asynchronous adapters, one chunk plus instructions for the generative one.
type Payload struct {
	Document    *Document
	Chunk       *Chunk
	Instruction string
	// Fields narrows a generative request to these field paths (backfill).
	Fields []string
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobHandle identifies submitted work. Synchronous providers return a handle that
// already carries its result.
type JobHandle struct {
	ID          string          `json:"id"`
	Provider    string          `json:"provider"`
	Location    string          `json:"location,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Result      *ProviderResult `json:"-"`
}

// JobState is the answer to a poll. Result may be set once Status is succeeded.
type JobState struct {
	Status  JobStatus
	Message string
	Result  *ProviderResult
}

// Health is what a provider reports about itself.
type Health struct {
	Configured bool      `json:"configured"`
	Healthy    bool      `json:"healthy"`
	Detail     string    `json:"detail,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Available is true when the orchestrator should attempt the provider.
func (h Health) Available() bool {
	return h.Configured && h.Healthy
}
