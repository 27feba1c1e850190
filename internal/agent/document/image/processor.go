package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/aydarnuman/tender-analyzer/internal/agent/document"
	"github.com/aydarnuman/tender-analyzer/internal/agent/document/image/preprocess"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

const MethodOCR = "image-ocr"

// Processor OCRs a single-page scan with Tesseract.
type Processor struct {
	logger logger.Logger
	steps  []preprocess.Step
	config *ProcessOptions
}

// 处理选项
type ProcessOptions struct {
	Language      []string
	PageSegMode   gosseract.PageSegMode
	MinConfidence float64
	Preprocess    preprocess.Config
}

func DefaultOptions() *ProcessOptions {
	return &ProcessOptions{
		Language:      []string{"tur", "eng"},
		PageSegMode:   gosseract.PSM_AUTO,
		MinConfidence: 60.0,
		Preprocess:    preprocess.DefaultConfig(),
	}
}

func NewProcessor(log logger.Logger, opts *ProcessOptions) (*Processor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Processor{
		logger: log.Named("image"),
		steps:  preprocess.Pipeline(opts.Preprocess),
		config: opts,
	}, nil
}

func (p *Processor) CanProcess(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png", "image/tiff":
		return true
	default:
		return false
	}
}

func (p *Processor) Process(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error) {
	img, _, err := image.Decode(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image %s: %v", models.ErrUnsupportedFormat, doc.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	processed, err := preprocess.Apply(img, p.steps)
	if err != nil {
		return nil, err
	}

	text, confidence, err := p.recognize(processed)
	if err != nil {
		// missing traineddata or a broken tesseract install reads the same as an unreadable scan
		return nil, fmt.Errorf("%w: ocr failed for %s: %v", document.ErrNoText, doc.Name, err)
	}

	p.logger.Info("Image OCR finished",
		logger.String("document", doc.ID),
		logger.Float64("confidence", confidence),
		logger.Int("chars", len(text)),
	)

	nd := &models.NormalizedDocument{
		DocumentID: doc.ID,
		Pages:      []models.PageText{{Number: 1, Text: text}},
		Method:     MethodOCR,
	}
	if text == "" || confidence < p.config.MinConfidence {
		return nd, fmt.Errorf("%w: %s (confidence %.1f)", document.ErrNoText, doc.Name, confidence)
	}
	return nd, nil
}

// recognize runs Tesseract on img. A client per call keeps Process safe for concurrent use.
func (p *Processor) recognize(img image.Image) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.config.Language...); err != nil {
		return "", 0, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(p.config.PageSegMode); err != nil {
		return "", 0, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		return "", 0, err
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, imaging.Clone(img)); err != nil {
		return "", 0, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get text: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		p.logger.Warn("Failed to get bounding boxes", logger.Error(err))
		return textutil.CleanText(text), 0, nil
	}
	return textutil.CleanText(text), meanConfidence(boxes), nil
}

func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var total float64
	n := 0
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		total += b.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
