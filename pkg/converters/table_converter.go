package converters

import (
	"strconv"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

// TableToMarkdown renders a table as a pipe table, the layout LLMs read most
// reliably. Ragged rows are padded to the widest row.
func TableToMarkdown(t models.Table) string {
	width := len(t.Headers)
	for _, r := range t.Rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeRow(&b, t.Headers, width)
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range t.Rows {
		writeRow(&b, r, width)
	}
	return b.String()
}

// TablesToMarkdown renders tables one after another, each preceded by its page.
func TablesToMarkdown(tables []models.Table) string {
	var parts []string
	for _, t := range tables {
		md := TableToMarkdown(t)
		if md == "" {
			continue
		}
		if t.Page > 0 {
			md = "Sayfa " + strconv.Itoa(t.Page) + ":\n" + md
		}
		parts = append(parts, md)
	}
	return strings.Join(parts, "\n")
}

func writeRow(b *strings.Builder, cells []string, width int) {
	b.WriteString("|")
	for i := 0; i < width; i++ {
		cell := ""
		if i < len(cells) {
			cell = strings.ReplaceAll(strings.TrimSpace(cells[i]), "|", "/")
			cell = strings.Join(strings.Fields(cell), " ")
		}
		b.WriteString(" ")
		b.WriteString(cell)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}
