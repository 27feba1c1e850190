// Package analysis is the queue- and storage-backed service shared by the HTTP
// server and the worker.
package analysis

import (
	"context"
	"errors"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
	uploadvalidator "github.com/aydarnuman/tender-analyzer/internal/utils/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/queue"
)

var (
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrNotReady means the task exists but has no stored result yet.
	ErrNotReady = errors.New("result not ready")
)

// UploadError carries the validator's findings for a rejected upload.
type UploadError struct {
	Result *uploadvalidator.ValidationResult
}

func (e *UploadError) Error() string {
	if e.Result == nil || len(e.Result.Errors) == 0 {
		return ErrInvalidUpload.Error()
	}
	return ErrInvalidUpload.Error() + ": " + e.Result.Errors[0].Message
}

func (e *UploadError) Unwrap() error { return ErrInvalidUpload }

// Analyzer is the pipeline entry point; *pipeline.Orchestrator implements it.
type Analyzer interface {
	Analyze(ctx context.Context, doc *models.Document, opts pipeline.Options) (*models.AnalysisResult, error)
	Health() pipeline.HealthReport
}

// MergeOutcome is a tender-level record plus its critical-field score.
type MergeOutcome struct {
	Record     *models.MergedTenderRecord `json:"record"`
	Validation *models.ValidationReport   `json:"validation"`
}

type AnalysisProcessor interface {
	Submit(ctx context.Context, filename string, content []byte, metadata map[string]string) (*models.ProcessingTask, error)
	HandleAnalysis(ctx context.Context, task *queue.Task) error
	GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error)
	Merge(ctx context.Context, tenderID string, taskIDs []string) (*MergeOutcome, error)
	Revalidate(result *models.AnalysisResult) (*models.ValidationReport, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) (int, error)
	Health() pipeline.HealthReport
}
