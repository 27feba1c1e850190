package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/agent/document"
	"github.com/aydarnuman/tender-analyzer/internal/agent/document/image"
	"github.com/aydarnuman/tender-analyzer/internal/agent/document/pdf"
	"github.com/aydarnuman/tender-analyzer/internal/agent/document/word"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// ProcessorFactory picks the text normalizer for a document by MIME type.
type ProcessorFactory struct {
	processors map[string]document.Processor
	logger     logger.Logger
}

func NewProcessorFactory(log logger.Logger) (*ProcessorFactory, error) {
	factory := &ProcessorFactory{
		processors: make(map[string]document.Processor),
		logger:     log.Named("processor-factory"),
	}

	// 初始化 PDF 处理器
	factory.Register(pdf.NewProcessor(log), "application/pdf")
	factory.Register(word.NewProcessor(log),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	imageProcessor, err := image.NewProcessor(log, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image processor: %w", err)
	}
	factory.Register(imageProcessor, "image/jpeg", "image/jpg", "image/png", "image/tiff")

	return factory, nil
}

// Register binds p to the given MIME types, replacing earlier registrations.
func (f *ProcessorFactory) Register(p document.Processor, mimeTypes ...string) {
	for _, m := range mimeTypes {
		f.processors[m] = p
	}
}

func (f *ProcessorFactory) GetProcessor(ext string) (document.Processor, error) {
	mimeType := models.MimeTypeFor(strings.ToLower(ext))
	if mimeType == "" {
		return nil, fmt.Errorf("%w: file type %q", models.ErrUnsupportedFormat, ext)
	}

	processor, ok := f.processors[mimeType]
	if !ok {
		f.logger.Warn("No processor found",
			logger.String("extension", ext),
			logger.String("mimeType", mimeType),
		)
		return nil, fmt.Errorf("%w: no processor for %s", models.ErrUnsupportedFormat, mimeType)
	}
	return processor, nil
}

// Normalize runs the matching processor over doc.
func (f *ProcessorFactory) Normalize(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error) {
	processor, err := f.GetProcessor(doc.Extension)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Normalizing document",
		logger.String("document", doc.ID),
		logger.String("extension", doc.Extension),
	)
	return processor.Process(ctx, doc)
}

func (f *ProcessorFactory) Close() error {
	seen := make(map[document.Processor]bool)
	for _, p := range f.processors {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
