package pipeline

import "sync"

// Stage names a state of the per-document state machine.
type Stage string

const (
	StageChunking        Stage = "chunking"
	StageLayout          Stage = "layout_extraction"
	StageModel           Stage = "model_extraction"
	StageGenerative      Stage = "generative_extraction"
	StageConsolidation   Stage = "consolidation"
	StageValidation      Stage = "validation"
	StageBackfill        Stage = "backfill"
	StageFinalValidation Stage = "final_validation"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

var stageProgress = map[Stage]int{
	StageChunking:        5,
	StageLayout:          15,
	StageModel:           35,
	StageGenerative:      50,
	StageConsolidation:   75,
	StageValidation:      80,
	StageBackfill:        85,
	StageFinalValidation: 95,
	StageDone:            100,
	StageFailed:          100,
}

// Event is one progress notification.
type Event struct {
	Stage    Stage  `json:"stage"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// ProgressFunc receives events in order, from one goroutine at a time.
type ProgressFunc func(Event)

// emitter serializes events and keeps progress from going backwards.
type emitter struct {
	mu   sync.Mutex
	sink ProgressFunc
	last int
}

func (e *emitter) stage(s Stage, msg string) {
	e.emit(s, msg, stageProgress[s])
}

func (e *emitter) emit(s Stage, msg string, pct int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pct = min(max(pct, e.last), 100)
	e.last = pct
	if e.sink != nil {
		e.sink(Event{Stage: s, Message: msg, Progress: pct})
	}
}
