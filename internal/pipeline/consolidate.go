package pipeline

import (
	"math"
	"sort"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

// precedence breaks ties between candidates that cannot be compared by
// confidence. Generative output overrides layout OCR; the trained model
// overrides both.
func precedence(l models.Layer) int {
	switch l {
	case models.LayerLayout:
		return 1
	case models.LayerGenerative:
		return 2
	case models.LayerTrainedModel:
		return 3
	default:
		return 0
	}
}

type candidate struct {
	value    any
	conf     *float64
	layer    models.Layer
	provider string
	chunk    *int
}

// beats reports whether c should replace cur.
func (c candidate) beats(cur candidate) bool {
	if c.conf != nil && cur.conf != nil {
		return *c.conf > *cur.conf
	}
	return precedence(c.layer) > precedence(cur.layer)
}

// consolidation is a tree in AnalysisResult layout plus where each scalar came from.
type consolidation struct {
	tree       map[string]any
	provenance map[string]models.FieldSource
}

// consolidate folds provider results into one record. Results are expected in
// layer order, chunk order within a layer; equal candidates keep the earlier one.
func consolidate(results []*models.ProviderResult) consolidation {
	best := make(map[string]candidate)
	for _, res := range results {
		if res == nil {
			continue
		}
		var chunk *int
		if len(res.Chunks) == 1 {
			idx := res.Chunks[0]
			chunk = &idx
		}
		for path, fv := range res.Fields {
			spec, ok := models.FieldSpecFor(path)
			if !ok {
				continue
			}
			v, ok := coerce(spec.Kind, fv.Value)
			if !ok {
				continue
			}
			c := candidate{value: v, conf: fv.Confidence, layer: res.Layer, provider: res.Provider, chunk: chunk}
			if cur, seen := best[path]; !seen || c.beats(cur) {
				best[path] = c
			}
		}
	}

	out := consolidation{
		tree:       make(map[string]any),
		provenance: make(map[string]models.FieldSource, len(best)),
	}
	for path, c := range best {
		models.SetPath(out.tree, path, c.value)
		out.provenance[path] = models.FieldSource{Provider: c.provider, Confidence: c.conf, Chunk: c.chunk}
	}
	for _, l := range models.Lists {
		if items := mergeList(l, results); len(items) > 0 {
			models.SetPath(out.tree, l.Path, models.ItemsToAny(items))
		}
	}
	return out
}

// mergeList concatenates a list across results and de-duplicates it on the
// list's key, keeping the larger magnitude or else the richer item.
func mergeList(l models.ListSpec, results []*models.ProviderResult) []models.Item {
	var (
		items []models.Item
		index = make(map[string]int)
	)
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, raw := range res.Lists[l.Path] {
			it := normalizeItem(l, raw)
			key := textutil.Key(textutil.String(it[l.Key]))
			if key == "" {
				continue
			}
			it["kaynak"] = res.Provider
			i, seen := index[key]
			if !seen {
				index[key] = len(items)
				items = append(items, it)
				continue
			}
			if preferItem(l, it, items[i]) {
				items[i] = it
			}
		}
	}
	return items
}

func preferItem(l models.ListSpec, it, cur models.Item) bool {
	if l.Magnitude != "" {
		a, aok := it[l.Magnitude].(float64)
		b, bok := cur[l.Magnitude].(float64)
		switch {
		case aok && bok && a != b:
			return a > b
		case aok && !bok:
			return true
		case bok && !aok:
			return false
		}
	}
	return filledCount(it) > filledCount(cur)
}

func filledCount(it models.Item) int {
	n := 0
	for k, v := range it {
		if k != "kaynak" && !models.IsEmpty(v) {
			n++
		}
	}
	return n
}

// normalizeItem coerces numeric fields to numbers and everything else to
// text, dropping what cannot be represented.
func normalizeItem(l models.ListSpec, raw models.Item) models.Item {
	numeric := make(map[string]bool, len(l.Numeric))
	for _, k := range l.Numeric {
		numeric[k] = true
	}
	out := make(models.Item, len(raw))
	for k, v := range raw {
		if numeric[k] {
			if n, ok := textutil.Number(v); ok {
				out[k] = n
			}
			continue
		}
		if s := textutil.String(v); s != "" {
			out[k] = s
		}
	}
	return out
}

// coerce converts a provider value to the catalog kind. Empty or unparseable
// values are rejected.
func coerce(kind models.FieldKind, v any) (any, bool) {
	switch kind {
	case models.KindInt:
		n, ok := textutil.Number(v)
		if !ok || n == 0 {
			return nil, false
		}
		return int(math.Round(n)), true
	case models.KindNumber:
		n, ok := textutil.Number(v)
		if !ok || n == 0 {
			return nil, false
		}
		return n, true
	default:
		s := textutil.String(v)
		if s == "" {
			return nil, false
		}
		return s, true
	}
}

// fillGaps copies into tree only the values of c whose path is still empty
// there, returning the paths it filled in sorted order.
func fillGaps(tree map[string]any, provenance map[string]models.FieldSource, c consolidation) []string {
	var filled []string
	for path, src := range c.provenance {
		if !models.PathEmpty(tree, path) {
			continue
		}
		v, _ := models.GetPath(c.tree, path)
		models.SetPath(tree, path, v)
		provenance[path] = src
		filled = append(filled, path)
	}
	for _, l := range models.Lists {
		if !models.PathEmpty(tree, l.Path) || models.PathEmpty(c.tree, l.Path) {
			continue
		}
		v, _ := models.GetPath(c.tree, l.Path)
		models.SetPath(tree, l.Path, v)
		filled = append(filled, l.Path)
	}
	sort.Strings(filled)
	return filled
}
