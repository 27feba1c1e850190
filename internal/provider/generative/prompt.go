package generative

import (
	"fmt"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/converters"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

const systemPrompt = `Sen Türk kamu ihale dokümanlarını (idari şartname, teknik şartname, sözleşme tasarısı) analiz eden bir uzmansın.
Yalnızca verilen metinde açıkça yazan bilgileri çıkar; tahmin etme, uydurma.
Bulamadığın alanları boş bırak veya hiç yazma.
Yanıtın tek bir JSON nesnesi olmalı, açıklama ekleme.`

// buildPrompt renders the user prompt for one chunk. When fields is non-empty
// only those paths are requested.
func buildPrompt(chunk *models.Chunk, instruction string, fields []string, maxChars int) string {
	var b strings.Builder

	if instruction != "" {
		b.WriteString(instruction)
		b.WriteString("\n\n")
	}

	b.WriteString("Aşağıdaki alanları JSON olarak, noktalı yol yapısına uygun iç içe nesneler şeklinde döndür")
	b.WriteString(" (ör. \"a.b\" → {\"a\": {\"b\": ...}}):\n")
	for _, f := range requestedFields(fields) {
		fmt.Fprintf(&b, "- %s: %s\n", f.Path, f.Description)
	}

	if lists := requestedLists(fields); len(lists) > 0 {
		b.WriteString("\nListe alanları (nesne dizisi olarak):\n")
		for _, l := range lists {
			fmt.Fprintf(&b, "- %s: %s\n", l.Path, l.Description)
		}
	}

	b.WriteString("\nSayısal alanlarda yalnızca sayı yaz (1.234.567,89 TL → 1234567.89).\n")
	fmt.Fprintf(&b, "\nMETİN (sayfa %d-%d):\n", chunk.StartPage, chunk.EndPage)
	text := chunk.Text
	if maxChars > 0 {
		text = textutil.TruncateRunes(text, maxChars)
	}
	b.WriteString(text)

	if md := converters.TablesToMarkdown(chunk.Tables); md != "" {
		b.WriteString("\n\nTABLOLAR:\n")
		b.WriteString(md)
	}
	return b.String()
}

// requestedFields resolves field paths (leaves or section prefixes such as
// "iletisim") against the catalog. Empty means the whole catalog.
func requestedFields(paths []string) []models.FieldSpec {
	if len(paths) == 0 {
		return models.Fields
	}
	var out []models.FieldSpec
	for _, f := range models.Fields {
		for _, p := range paths {
			if f.Path == p || strings.HasPrefix(f.Path, p+".") {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// requestedLists is requestedFields for list sections.
func requestedLists(paths []string) []models.ListSpec {
	if len(paths) == 0 {
		return models.Lists
	}
	var out []models.ListSpec
	for _, l := range models.Lists {
		for _, p := range paths {
			if l.Path == p || strings.HasPrefix(l.Path, p+".") {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
