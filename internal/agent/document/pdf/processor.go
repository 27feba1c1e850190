package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/aydarnuman/tender-analyzer/internal/agent/document"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

const MethodText = "pdf-text"

type Processor struct {
	logger     logger.Logger
	maxWorkers int
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{
		logger:     log.Named("pdf"),
		maxWorkers: 4,
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == "application/pdf"
}

func (p *Processor) Process(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error) {
	reader := bytes.NewReader(doc.Content)
	pdfReader, err := openReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnsupportedFormat, doc.Name, err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]models.PageText, numPages)

	// 并行处理每一页; results land at their page index so order never depends on scheduling
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := pageText(pdfReader, pageNum)
			if err != nil {
				// one broken page should not lose the rest of the document
				p.logger.Warn("Failed to read page text",
					logger.String("document", doc.ID),
					logger.Int("page", pageNum),
					logger.Error(err),
				)
			}
			pages[pageNum-1] = models.PageText{Number: pageNum, Text: textutil.CleanText(text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nd := &models.NormalizedDocument{DocumentID: doc.ID, Pages: pages, Method: MethodText}

	chars := 0
	for _, pg := range pages {
		chars += len(strings.TrimSpace(pg.Text))
	}
	p.logger.Info("PDF text extracted",
		logger.String("document", doc.ID),
		logger.Int("pages", numPages),
		logger.Int("chars", chars),
	)
	if chars == 0 {
		return nd, fmt.Errorf("%w: %s has %d pages without a text layer", document.ErrNoText, doc.Name, numPages)
	}
	return nd, nil
}

// openReader guards against the parser panicking on malformed cross-reference tables.
func openReader(r *bytes.Reader) (rd *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.NewReader(r, r.Size())
}

func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", n, rec)
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
