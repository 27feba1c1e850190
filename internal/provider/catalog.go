package provider

import (
	"sort"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

type labelEntry struct {
	key  string
	path string
}

// labels is every catalog label, longest first so specific labels win over
// short ones contained in them ("kesin teminat oranı" before "kesin teminat").
var labels = func() []labelEntry {
	var out []labelEntry
	for _, f := range models.Fields {
		for _, l := range f.Labels {
			out = append(out, labelEntry{key: textutil.Key(l), path: f.Path})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].key) > len(out[j].key) })
	return out
}()

// FieldForLabel maps a form label or model field name onto a catalog path.
// Names that already are catalog paths (dots, slashes or double underscores as
// separators) map to themselves.
func FieldForLabel(label string) (string, bool) {
	name := strings.TrimSpace(label)
	for _, sep := range []string{"/", "__"} {
		name = strings.ReplaceAll(name, sep, ".")
	}
	if _, ok := models.FieldSpecFor(name); ok {
		return name, true
	}

	key := strings.TrimRight(textutil.Key(label), " :.")
	if key == "" {
		return "", false
	}
	for _, l := range labels {
		if key == l.key {
			return l.path, true
		}
	}
	for _, l := range labels {
		// short labels like "il" only match exactly
		if len([]rune(l.key)) > 4 && strings.Contains(key, l.key) {
			return l.path, true
		}
	}
	return "", false
}

// ListForName maps a model field name onto a catalog list path.
func ListForName(name string) (string, bool) {
	n := strings.TrimSpace(name)
	for _, sep := range []string{"/", "__"} {
		n = strings.ReplaceAll(n, sep, ".")
	}
	if _, ok := models.ListSpecFor(n); ok {
		return n, true
	}
	return "", false
}

// ItemsFromTables interprets tables whose header row matches a list's header
// aliases. A table is claimed by the list with the most matched columns, and
// only if that includes the list's key column plus one more.
func ItemsFromTables(tables []models.Table) map[string][]models.Item {
	out := make(map[string][]models.Item)
	for _, t := range tables {
		spec, columns := matchTable(t.Headers)
		if spec == nil {
			continue
		}
		for _, row := range t.Rows {
			item := make(models.Item)
			for col, field := range columns {
				if field == "" || col >= len(row) || item[field] != nil {
					continue
				}
				if v := strings.TrimSpace(row[col]); v != "" {
					item[field] = v
				}
			}
			if textutil.String(item[spec.Key]) == "" {
				continue
			}
			out[spec.Path] = append(out[spec.Path], item)
		}
	}
	return out
}

// matchTable returns the claiming list and, per column, the item field it feeds
// ("" for unmapped columns).
func matchTable(headers []string) (*models.ListSpec, []string) {
	var (
		best      *models.ListSpec
		bestCols  []string
		bestCount int
	)
	for i := range models.Lists {
		spec := &models.Lists[i]
		if len(spec.Headers) == 0 {
			continue
		}
		cols := make([]string, len(headers))
		count, hasKey := 0, false
		for col, h := range headers {
			if field, ok := headerField(spec, textutil.Key(h)); ok {
				cols[col] = field
				count++
				hasKey = hasKey || field == spec.Key
			}
		}
		if !hasKey || count < 2 {
			continue
		}
		if count > bestCount {
			best, bestCols, bestCount = spec, cols, count
		}
	}
	return best, bestCols
}

func headerField(spec *models.ListSpec, header string) (string, bool) {
	if header == "" {
		return "", false
	}
	// exact alias matches beat substring matches
	for field, aliases := range spec.Headers {
		for _, a := range aliases {
			if header == a {
				return field, true
			}
		}
	}
	var (
		bestField string
		bestLen   int
	)
	for field, aliases := range spec.Headers {
		for _, a := range aliases {
			if len([]rune(a)) <= 2 || !strings.Contains(header, a) {
				continue
			}
			if len(a) > bestLen || (len(a) == bestLen && field < bestField) {
				bestField, bestLen = field, len(a)
			}
		}
	}
	return bestField, bestField != ""
}
