package document

import (
	"context"
	"errors"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

// ErrNoText is returned when a file opened fine but yielded no text, typically a
// scanned PDF. Callers may retry through an OCR-capable provider.
var ErrNoText = errors.New("no extractable text")

// Processor turns raw document bytes into page-ordered text.
type Processor interface {
	// CanProcess 检查是否可以处理指定MIME类型的文件
	CanProcess(mimeType string) bool

	// Process returns the normalized pages. A readable but textless file yields
	// ErrNoText together with whatever page count could be determined.
	Process(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error)

	// Close 清理资源
	Close() error
}
