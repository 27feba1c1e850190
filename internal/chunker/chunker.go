// Package chunker splits normalized document text into bounded, overlapping
// chunks that keep their page and character offsets.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/agent/document"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// pageSep joins pages in the document-wide text that offsets refer to.
const pageSep = "\n\n"

// Normalizer produces page text for a document.
type Normalizer interface {
	Normalize(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error)
}

// Fallback recovers text when the normalizer found none, e.g. OCR of a scanned
// PDF through the layout provider. A nil Fallback means none is available.
type Fallback func(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error)

type Chunker struct {
	cfg        config.ChunkConfig
	normalizer Normalizer
	logger     logger.Logger
}

func New(cfg config.ChunkConfig, normalizer Normalizer, log logger.Logger) *Chunker {
	return &Chunker{cfg: cfg, normalizer: normalizer, logger: log.Named("chunker")}
}

// Chunk normalizes doc and splits it. It fails with models.ErrUnsupportedFormat
// when no usable text can be produced.
func (c *Chunker) Chunk(ctx context.Context, doc *models.Document, fallback Fallback) (*models.NormalizedDocument, []models.Chunk, error) {
	nd, err := c.normalizer.Normalize(ctx, doc)
	switch {
	case err == nil:
	case errors.Is(err, document.ErrNoText):
		c.logger.Info("No text layer, trying OCR fallback",
			logger.String("document", doc.ID),
			logger.Bool("fallbackAvailable", fallback != nil),
		)
		nd = c.recover(ctx, doc, nd, fallback)
	default:
		return nil, nil, err
	}

	chunks := Split(nd, c.cfg)
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: no text could be produced for %s", models.ErrUnsupportedFormat, doc.Name)
	}
	c.logger.Info("Document chunked",
		logger.String("document", doc.ID),
		logger.String("method", nd.Method),
		logger.Int("pages", len(nd.Pages)),
		logger.Int("chunks", len(chunks)),
	)
	return nd, chunks, nil
}

// recover prefers the fallback's text and keeps whatever the normalizer found
// (low-confidence OCR, say) when the fallback is missing or fails.
func (c *Chunker) recover(ctx context.Context, doc *models.Document, partial *models.NormalizedDocument, fallback Fallback) *models.NormalizedDocument {
	if fallback != nil {
		nd, err := fallback(ctx, doc)
		if err == nil && hasText(nd) {
			return nd
		}
		c.logger.Warn("OCR fallback produced no text",
			logger.String("document", doc.ID),
			logger.Error(err),
		)
	}
	if partial == nil {
		return &models.NormalizedDocument{DocumentID: doc.ID}
	}
	return partial
}

func hasText(nd *models.NormalizedDocument) bool {
	if nd == nil {
		return false
	}
	for _, p := range nd.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// Split is a pure function of nd and cfg: whole pages are packed into a chunk
// while they fit, pages longer than the budget are cut at whitespace, and every
// chunk after the first repeats the last cfg.Overlap characters of the one
// before it. Chunk text never exceeds cfg.MaxChars runes.
func Split(nd *models.NormalizedDocument, cfg config.ChunkConfig) []models.Chunk {
	if !hasText(nd) || cfg.MaxChars <= 0 {
		return nil
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= cfg.MaxChars {
		overlap = 0
	}
	budget := cfg.MaxChars - overlap

	text, starts := joinPages(nd.Pages)
	// ends[i] is the offset just past page i's text
	ends := make([]int, len(nd.Pages))
	for i, p := range nd.Pages {
		ends[i] = starts[i] + len([]rune(p.Text))
	}

	var chunks []models.Chunk
	pos := 0
	for pos < len(text) {
		pos = skipSpace(text, pos)
		if pos >= len(text) {
			break
		}
		end := cutPoint(text, pos, budget, ends)

		start := pos
		if len(chunks) > 0 && overlap > 0 {
			start = max(0, pos-overlap)
		}
		body := strings.TrimSpace(string(text[pos:end]))
		if body != "" {
			chunks = append(chunks, models.Chunk{
				Index:       len(chunks),
				DocumentID:  nd.DocumentID,
				StartPage:   pageAt(nd.Pages, starts, start),
				EndPage:     pageAt(nd.Pages, starts, end-1),
				StartOffset: start,
				EndOffset:   end,
				Text:        string(text[start:end]),
			})
		}
		pos = end
	}

	var tables []models.Table
	for _, p := range nd.Pages {
		for _, t := range p.Tables {
			if t.Page == 0 {
				t.Page = p.Number
			}
			tables = append(tables, t)
		}
	}
	return AttachTables(chunks, tables)
}

// AttachTables gives each table to the first chunk that covers its page.
// Tables whose page is unknown or beyond the chunks are dropped.
func AttachTables(chunks []models.Chunk, tables []models.Table) []models.Chunk {
	for _, t := range tables {
		for i := range chunks {
			if chunks[i].CoversPage(t.Page) {
				chunks[i].Tables = append(chunks[i].Tables, t)
				break
			}
		}
	}
	return chunks
}

func joinPages(pages []models.PageText) ([]rune, []int) {
	var b strings.Builder
	starts := make([]int, len(pages))
	offset := 0
	sepLen := len([]rune(pageSep))
	for i, p := range pages {
		if i > 0 {
			b.WriteString(pageSep)
			offset += sepLen
		}
		starts[i] = offset
		b.WriteString(p.Text)
		offset += len([]rune(p.Text))
	}
	return []rune(b.String()), starts
}

// cutPoint picks the end of the chunk body starting at pos: the last page end
// inside the budget, otherwise the last line break or space in the final fifth
// of the window, otherwise a hard cut.
func cutPoint(text []rune, pos, budget int, pageEnds []int) int {
	limit := min(len(text), pos+budget)
	if limit == len(text) {
		return limit
	}

	best := -1
	for _, e := range pageEnds {
		if e > pos && e <= limit {
			best = e
		}
	}
	if best > 0 {
		return best
	}

	floor := pos + budget*4/5
	for _, sep := range []func(rune) bool{isNewline, unicode.IsSpace} {
		for i := limit - 1; i > floor; i-- {
			if sep(text[i]) {
				return i + 1
			}
		}
	}
	return limit
}

func isNewline(r rune) bool { return r == '\n' }

func skipSpace(text []rune, pos int) int {
	for pos < len(text) && unicode.IsSpace(text[pos]) {
		pos++
	}
	return pos
}

// pageAt maps a document offset to the page number containing it.
func pageAt(pages []models.PageText, starts []int, offset int) int {
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return pages[i].Number
}
