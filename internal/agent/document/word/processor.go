// Package word reads .docx files: paragraphs become page text and w:tbl
// elements become tables. Legacy binary .doc files are not supported.
package word

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/agent/document"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

const (
	MethodDocx = "docx"
	mimeDocx   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	bodyPart   = "word/document.xml"
)

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log.Named("word")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == mimeDocx
}

func (p *Processor) Process(ctx context.Context, doc *models.Document) (*models.NormalizedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a docx archive: %v", models.ErrUnsupportedFormat, doc.Name, err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == bodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s has no %s", models.ErrUnsupportedFormat, doc.Name, bodyPart)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", bodyPart, err)
	}
	defer rc.Close()

	pages, err := parseBody(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnsupportedFormat, doc.Name, err)
	}

	nd := &models.NormalizedDocument{DocumentID: doc.ID, Pages: pages, Method: MethodDocx}
	tables := 0
	empty := true
	for _, pg := range pages {
		tables += len(pg.Tables)
		if strings.TrimSpace(pg.Text) != "" {
			empty = false
		}
	}
	p.logger.Info("DOCX text extracted",
		logger.String("document", doc.ID),
		logger.Int("pages", len(pages)),
		logger.Int("tables", tables),
	)
	if empty {
		return nd, fmt.Errorf("%w: %s", document.ErrNoText, doc.Name)
	}
	return nd, nil
}

func (p *Processor) Close() error {
	return nil
}

// bodyParser walks WordprocessingML tokens. Explicit page breaks and the
// renderer's last page break markers start a new page; nested table text is
// folded into the enclosing cell.
type bodyParser struct {
	pages []models.PageText
	text  strings.Builder
	page  []models.Table

	tableDepth int
	rows       [][]string
	row        []string
	cell       strings.Builder
	inText     bool
}

func parseBody(ctx context.Context, r io.Reader) ([]models.PageText, error) {
	dec := xml.NewDecoder(r)
	bp := &bodyParser{}
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			bp.start(t)
		case xml.EndElement:
			bp.end(t)
		case xml.CharData:
			if bp.inText {
				bp.target().Write(t)
			}
		}
	}
	bp.flushPage()
	return bp.pages, nil
}

func (bp *bodyParser) target() *strings.Builder {
	if bp.tableDepth > 0 {
		return &bp.cell
	}
	return &bp.text
}

func (bp *bodyParser) start(el xml.StartElement) {
	switch el.Name.Local {
	case "tbl":
		bp.tableDepth++
		if bp.tableDepth == 1 {
			bp.rows = nil
		}
	case "tr":
		if bp.tableDepth == 1 {
			bp.row = nil
		}
	case "tc":
		if bp.tableDepth == 1 {
			bp.cell.Reset()
		}
	case "t":
		bp.inText = true
	case "tab":
		bp.target().WriteString("\t")
	case "br":
		if attr(el, "type") == "page" && bp.tableDepth == 0 {
			bp.flushPage()
			return
		}
		bp.target().WriteString("\n")
	case "lastRenderedPageBreak":
		if bp.tableDepth == 0 && strings.TrimSpace(bp.text.String()) != "" {
			bp.flushPage()
		}
	}
}

func (bp *bodyParser) end(el xml.EndElement) {
	switch el.Name.Local {
	case "t":
		bp.inText = false
	case "p":
		if bp.tableDepth > 0 {
			bp.cell.WriteString(" ")
		} else {
			bp.text.WriteString("\n")
		}
	case "tc":
		if bp.tableDepth == 1 {
			bp.row = append(bp.row, strings.Join(strings.Fields(bp.cell.String()), " "))
		}
	case "tr":
		if bp.tableDepth == 1 && len(bp.row) > 0 {
			bp.rows = append(bp.rows, bp.row)
		}
	case "tbl":
		bp.tableDepth--
		if bp.tableDepth == 0 {
			bp.closeTable()
		}
	}
}

// closeTable records the table and writes its rows into the page text so
// text-only providers still see them.
func (bp *bodyParser) closeTable() {
	if len(bp.rows) == 0 {
		return
	}
	tbl := models.Table{Headers: bp.rows[0], Rows: bp.rows[1:]}
	bp.page = append(bp.page, tbl)
	for _, r := range bp.rows {
		bp.text.WriteString(strings.Join(r, " | "))
		bp.text.WriteString("\n")
	}
	bp.rows = nil
}

func (bp *bodyParser) flushPage() {
	text := textutil.CleanText(bp.text.String())
	if text == "" && len(bp.page) == 0 {
		bp.text.Reset()
		return
	}
	num := len(bp.pages) + 1
	for i := range bp.page {
		bp.page[i].Page = num
	}
	bp.pages = append(bp.pages, models.PageText{Number: num, Text: text, Tables: bp.page})
	bp.text.Reset()
	bp.page = nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
