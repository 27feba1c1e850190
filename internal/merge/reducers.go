package merge

import (
	"sort"
	"strings"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

// input is one analysis in tree form.
type input struct {
	source string
	tree   map[string]any
}

// reduceFunc merges one section of every input into out.
type reduceFunc func(section string, inputs []input, out *models.MergedTenderRecord)

// reducer owns one section of the record: a field prefix or a list path.
type reducer struct {
	section string
	reduce  reduceFunc
}

// reducers is the only place merge policy lives. Every catalog field and list
// must fall under exactly one section.
var reducers = []reducer{
	{"kurum", firstWins},
	{"iletisim", firstWins},
	{"yemek.kisi_sayisi", firstWins},
	{"yemek.ogun_sayisi", firstWins},

	{"tarihler", taggedDates},
	{"mali.kalemler", taggedAccumulation},
	{"cezalar", taggedAccumulation},

	{"yemek.ogunler", maxWinsKeyed},
	{"yemek.gramajlar", maxWinsKeyed},
	{"personel.pozisyonlar", maxWinsKeyed},
	{"personel.nitelikler", maxWinsKeyed},
	{"teknik_sartlar", maxWinsKeyed},

	{"teminat", objectFirstNonNull},
	{"mali.tahmini_bedel", objectFirstNonNull},
	{"yemek.servis_saatleri", objectFirstNonNull},
}

func under(path, section string) bool {
	return path == section || strings.HasPrefix(path, section+".")
}

// fieldsUnder lists the catalog scalars of a section.
func fieldsUnder(section string) []string {
	var out []string
	for _, f := range models.Fields {
		if under(f.Path, section) {
			out = append(out, f.Path)
		}
	}
	return out
}

// firstWins keeps the first non-empty value of each field. Later documents
// that disagree are kept as a conflict.
func firstWins(section string, inputs []input, out *models.MergedTenderRecord) {
	for _, path := range fieldsUnder(section) {
		resolveFirst(path, inputs, out)
	}
}

// objectFirstNonNull takes each leaf of an object from the first document
// that supplies it, independently of the other leaves. Disagreeing leaves are
// kept as conflicts.
func objectFirstNonNull(section string, inputs []input, out *models.MergedTenderRecord) {
	for _, path := range fieldsUnder(section) {
		resolveFirst(path, inputs, out)
	}
}

// resolveFirst sets path to its first non-empty value and records a conflict
// when later documents hold a different value.
func resolveFirst(path string, inputs []input, out *models.MergedTenderRecord) {
	var (
		chosen     *models.TaggedValue
		candidates []models.TaggedValue
		distinct   = make(map[string]bool)
	)
	for _, in := range inputs {
		v, ok := models.GetPath(in.tree, path)
		if !ok || models.IsEmpty(v) {
			continue
		}
		tv := models.TaggedValue{Value: v, Source: in.source}
		if chosen == nil {
			chosen = &tv
		}
		key := textutil.Key(textutil.String(v))
		if !distinct[key] {
			distinct[key] = true
			candidates = append(candidates, tv)
		}
	}
	if chosen == nil {
		return
	}
	out.Fields[path] = *chosen
	if len(candidates) > 1 {
		out.Conflicts = append(out.Conflicts, models.MergeConflict{Field: path, Chosen: *chosen, Candidates: candidates})
	}
}

// taggedAccumulation concatenates a list across documents without
// de-duplication, stamping each item with its document.
func taggedAccumulation(section string, inputs []input, out *models.MergedTenderRecord) {
	var items []models.Item
	for _, in := range inputs {
		for _, it := range models.ItemsAt(in.tree, section) {
			items = append(items, stamp(it, in.source))
		}
	}
	if len(items) > 0 {
		out.Lists[section] = items
	}
}

// taggedDates accumulates every named date field and every extra date entry
// of every document into one list.
func taggedDates(section string, inputs []input, out *models.MergedTenderRecord) {
	var items []models.Item
	for _, in := range inputs {
		for _, path := range fieldsUnder(section) {
			v, ok := models.GetPath(in.tree, path)
			if !ok || models.IsEmpty(v) {
				continue
			}
			items = append(items, models.Item{
				models.DateFieldKey: strings.TrimPrefix(path, section+"."),
				"tarih":             v,
				models.SourceKey:    in.source,
			})
		}
		for _, it := range models.ItemsAt(in.tree, section+".diger") {
			items = append(items, stamp(it, in.source))
		}
	}
	if len(items) > 0 {
		out.Lists[section] = items
	}
}

// maxWinsKeyed groups items by their key case-insensitively. A duplicate with
// a larger magnitude replaces the kept item; otherwise the first stays.
func maxWinsKeyed(section string, inputs []input, out *models.MergedTenderRecord) {
	spec, ok := models.ListSpecFor(section)
	if !ok {
		return
	}
	var (
		items []models.Item
		index = make(map[string]int)
	)
	for _, in := range inputs {
		for _, it := range models.ItemsAt(in.tree, section) {
			key := textutil.Key(textutil.String(it[spec.Key]))
			if key == "" {
				continue
			}
			i, seen := index[key]
			if !seen {
				index[key] = len(items)
				items = append(items, stamp(it, in.source))
				continue
			}
			if spec.Magnitude == "" {
				continue
			}
			a, aok := textutil.Number(it[spec.Magnitude])
			b, bok := textutil.Number(items[i][spec.Magnitude])
			if aok && (!bok || a > b) {
				items[i] = stamp(it, in.source)
			}
		}
	}
	if len(items) > 0 {
		out.Lists[section] = items
	}
}

func stamp(it models.Item, source string) models.Item {
	c := it.Clone()
	c[models.SourceKey] = source
	return c
}

// sortConflicts orders conflicts by field for stable output.
func sortConflicts(cs []models.MergeConflict) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Field < cs[j].Field })
}
