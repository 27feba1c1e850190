package merge

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/textutil"
)

func engine() *Engine {
	e := NewEngine(logger.NewNop())
	e.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return e
}

func TestMaxWinsKeyedMeals(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", Yemek: models.Catering{Ogunler: []models.Meal{{Tur: "Kahvaltı", Miktar: 500}}}}
	doc2 := &models.AnalysisResult{DocumentID: "doc2", Yemek: models.Catering{Ogunler: []models.Meal{{Tur: "kahvaltı", Miktar: 800}}}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1, doc2})
	require.NoError(t, err)

	meals := m.Lists["yemek.ogunler"]
	require.Len(t, meals, 1)
	assert.Equal(t, textutil.Key("Kahvaltı"), textutil.Key(meals[0]["tur"].(string)))
	assert.Equal(t, 800.0, meals[0]["miktar"])
	assert.Equal(t, "doc2", meals[0][models.SourceKey])
}

func TestMergedItemsKeepProviderAndDocument(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", Yemek: models.Catering{Ogunler: []models.Meal{{Tur: "Öğle", Miktar: 900, Kaynak: "textract"}}}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1})
	require.NoError(t, err)

	meals := m.Lists["yemek.ogunler"]
	require.Len(t, meals, 1)
	assert.Equal(t, "textract", meals[0]["kaynak"])
	assert.Equal(t, "doc1", meals[0][models.SourceKey])
}

func TestMaxWinsKeepsFirstWithoutMagnitude(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", TeknikSartlar: []models.Requirement{{Sart: "HACCP belgesi"}}}
	doc2 := &models.AnalysisResult{DocumentID: "doc2", TeknikSartlar: []models.Requirement{{Sart: "haccp belgesi", Kategori: "kalite"}, {Sart: "ISO 22000"}}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1, doc2})
	require.NoError(t, err)

	reqs := m.Lists["teknik_sartlar"]
	require.Len(t, reqs, 2)
	assert.Equal(t, "doc1", reqs[0][models.SourceKey])
	assert.Equal(t, "doc2", reqs[1][models.SourceKey])
}

func TestTaggedAccumulationKeepsEverything(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", Cezalar: []models.Penalty{{Aciklama: "Geç teslim", Oran: "binde 3"}}}
	doc2 := &models.AnalysisResult{DocumentID: "doc2", Cezalar: []models.Penalty{{Aciklama: "Geç teslim", Oran: "binde 5"}}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1, doc2})
	require.NoError(t, err)
	require.Len(t, m.Lists["cezalar"], 2)
	assert.Equal(t, "doc1", m.Lists["cezalar"][0][models.SourceKey])
	assert.Equal(t, "doc2", m.Lists["cezalar"][1][models.SourceKey])
}

func TestFirstWinsRecordsConflicts(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", Kurum: models.Institution{Ad: "Ankara Üniversitesi", Il: "Ankara"}}
	doc2 := &models.AnalysisResult{DocumentID: "doc2", Kurum: models.Institution{Ad: "ANKARA ÜNİVERSİTESİ"}}
	doc3 := &models.AnalysisResult{DocumentID: "doc3", Kurum: models.Institution{Ad: "Hacettepe Üniversitesi"}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1, doc2, doc3})
	require.NoError(t, err)

	assert.Equal(t, models.TaggedValue{Value: "Ankara Üniversitesi", Source: "doc1"}, m.Fields["kurum.ad"])
	want := []models.MergeConflict{{
		Field:  "kurum.ad",
		Chosen: models.TaggedValue{Value: "Ankara Üniversitesi", Source: "doc1"},
		Candidates: []models.TaggedValue{
			{Value: "Ankara Üniversitesi", Source: "doc1"},
			{Value: "Hacettepe Üniversitesi", Source: "doc3"},
		},
	}}
	if diff := cmp.Diff(want, m.Conflicts); diff != "" {
		t.Errorf("conflicts mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectFirstNonNullPerLeaf(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", Teminat: models.Guarantees{GeciciOran: "%3"}}
	doc2 := &models.AnalysisResult{DocumentID: "doc2", Teminat: models.Guarantees{GeciciOran: "%5", KesinOran: "%6"}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1, doc2})
	require.NoError(t, err)
	assert.Equal(t, models.TaggedValue{Value: "%3", Source: "doc1"}, m.Fields["teminat.gecici_oran"])
	assert.Equal(t, models.TaggedValue{Value: "%6", Source: "doc2"}, m.Fields["teminat.kesin_oran"])
}

func TestObjectFirstNonNullRecordsConflicts(t *testing.T) {
	doc1 := &models.AnalysisResult{DocumentID: "doc1", Teminat: models.Guarantees{GeciciOran: "%3"}}
	doc2 := &models.AnalysisResult{DocumentID: "doc2", Teminat: models.Guarantees{GeciciOran: "%6"}}
	doc3 := &models.AnalysisResult{DocumentID: "doc3", Teminat: models.Guarantees{GeciciOran: "%3"}}

	m, err := engine().Merge("T1", []*models.AnalysisResult{doc1, doc2, doc3})
	require.NoError(t, err)

	assert.Equal(t, models.TaggedValue{Value: "%3", Source: "doc1"}, m.Fields["teminat.gecici_oran"])
	want := []models.MergeConflict{{
		Field:  "teminat.gecici_oran",
		Chosen: models.TaggedValue{Value: "%3", Source: "doc1"},
		Candidates: []models.TaggedValue{
			{Value: "%3", Source: "doc1"},
			{Value: "%6", Source: "doc2"},
		},
	}}
	if diff := cmp.Diff(want, m.Conflicts); diff != "" {
		t.Errorf("conflicts mismatch (-want +got):\n%s", diff)
	}
}

func sample() *models.AnalysisResult {
	return &models.AnalysisResult{
		DocumentID: "doc1",
		Kurum:      models.Institution{Ad: "Ankara Üniversitesi", IhaleKonusu: "Yemek hizmeti", IhaleKayitNo: "2024/1"},
		Iletisim:   models.Contact{Adres: "Tandoğan", Telefon: "0312", Email: "a@b.gov.tr", YetkiliKisi: "Ayşe"},
		Tarihler: models.Dates{
			IhaleTarihi: "15.01.2025 10:00",
			Sure:        "365 gün",
			Diger:       []models.DateEntry{{Tur: "yer teslimi", Tarih: "01.02.2025", Kaynak: "gemini"}},
		},
		Mali: models.Financials{
			TahminiBedel: models.Money{Tutar: 1250000, ParaBirimi: "TRY"},
			Kalemler:     []models.LineItem{{Kalem: "Öğle yemeği", Miktar: 1000, BirimFiyat: 95.5, Kaynak: "textract"}},
		},
		Yemek: models.Catering{
			KisiSayisi:     2500,
			OgunSayisi:     3,
			ServisSaatleri: models.ServiceHours{Kahvalti: "07:00"},
			Ogunler:        []models.Meal{{Tur: "Kahvaltı", Miktar: 500, Kaynak: "gemini"}},
			Gramajlar:      []models.Portion{{Malzeme: "Pirinç", Gramaj: 80, Birim: "gr"}},
		},
		Personel: models.Personnel{
			Pozisyonlar: []models.StaffPosition{{Pozisyon: "Aşçıbaşı", Adet: 2}},
			Nitelikler:  []models.Qualification{{Nitelik: "Hijyen belgesi"}},
		},
		Cezalar:       []models.Penalty{{Aciklama: "Geç teslim", Oran: "binde 3"}},
		TeknikSartlar: []models.Requirement{{Sart: "HACCP"}},
		Teminat:       models.Guarantees{KesinOran: "%6"},
		Meta:          models.Meta{ProviderUsed: []string{"textract", "gemini"}},
	}
}

func TestMergeSingletonIsIdentity(t *testing.T) {
	a := sample()
	m, err := engine().Merge("T1", []*models.AnalysisResult{a})
	require.NoError(t, err)
	assert.Empty(t, m.Conflicts)

	back, err := m.Analysis()
	require.NoError(t, err)

	want, err := a.Tree()
	require.NoError(t, err)
	got, err := back.Tree()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge([A]) != A (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"textract", "gemini"}, back.Meta.ProviderUsed)
}

func TestMergeThreeDocuments(t *testing.T) {
	idari := &models.AnalysisResult{
		DocumentID: "idari",
		Kurum:      models.Institution{Ad: "Ankara Üniversitesi Rektörlüğü"},
		Tarihler:   models.Dates{IhaleTarihi: "15.01.2025", BaslangicTarihi: "01.02.2025", BitisTarihi: "31.01.2026"},
	}
	teknik := &models.AnalysisResult{
		DocumentID: "teknik",
		Yemek:      models.Catering{Ogunler: []models.Meal{{Tur: "Kahvaltı", Miktar: 500}, {Tur: "Öğle", Miktar: 1200}}},
		Personel:   models.Personnel{Pozisyonlar: []models.StaffPosition{{Pozisyon: "Aşçı", Adet: 4}, {Pozisyon: "Garson", Adet: 6}}},
		Tarihler:   models.Dates{BaslangicTarihi: "03.02.2025"},
	}
	sozlesme := &models.AnalysisResult{
		DocumentID: "sozlesme",
		Teminat:    models.Guarantees{GeciciOran: "%3", KesinOran: "%6"},
	}
	inputs := []*models.AnalysisResult{idari, teknik, sozlesme}

	m, err := engine().Merge("IKN-2024-1", inputs)
	require.NoError(t, err)
	assert.Equal(t, []string{"idari", "teknik", "sozlesme"}, m.Documents)
	assert.Equal(t, 3, m.Meta.DocumentCount)

	assert.Equal(t, "idari", m.Fields["kurum.ad"].Source)
	assert.Equal(t, "sozlesme", m.Fields["teminat.gecici_oran"].Source)
	assert.Equal(t, "sozlesme", m.Fields["teminat.kesin_oran"].Source)
	assert.Len(t, m.Lists["yemek.ogunler"], 2)
	assert.Len(t, m.Lists["personel.pozisyonlar"], 2)
	// every date of every document is kept, tagged
	assert.Len(t, m.Lists[models.DatesPath], 4)

	back, err := m.Analysis()
	require.NoError(t, err)
	assert.Equal(t, "Ankara Üniversitesi Rektörlüğü", back.Kurum.Ad)
	assert.Equal(t, "01.02.2025", back.Tarihler.BaslangicTarihi)
	assert.Equal(t, "%3", back.Teminat.GeciciOran)
	assert.Len(t, back.Yemek.Ogunler, 2)
	assert.Len(t, back.Personel.Pozisyonlar, 2)

	assertTraceable(t, m, inputs)
}

// assertTraceable checks that every merged value exists in the document it is
// attributed to.
func assertTraceable(t *testing.T, m *models.MergedTenderRecord, inputs []*models.AnalysisResult) {
	t.Helper()
	trees := map[string]map[string]any{}
	for _, in := range inputs {
		tree, err := in.Tree()
		require.NoError(t, err)
		trees[in.DocumentID] = tree
	}

	for path, tv := range m.Fields {
		tree, ok := trees[tv.Source]
		require.True(t, ok, "unknown source %q for %s", tv.Source, path)
		v, _ := models.GetPath(tree, path)
		assert.Equal(t, v, tv.Value, path)
	}
	for path, items := range m.Lists {
		for _, it := range items {
			src, _ := it[models.SourceKey].(string)
			tree, ok := trees[src]
			require.True(t, ok, "unknown source %q in %s", src, path)
			if field, ok := it[models.DateFieldKey].(string); ok {
				v, _ := models.GetPath(tree, models.DatesPath+"."+field)
				assert.Equal(t, v, it["tarih"])
				continue
			}
			found := false
			for _, orig := range models.ItemsAt(tree, path) {
				c := it.Clone()
				delete(c, models.SourceKey)
				if cmp.Equal(map[string]any(orig), map[string]any(c)) {
					found = true
				}
			}
			assert.True(t, found, "%s item %v not in %s", path, it, src)
		}
	}
}

func TestReducerTableCoversCatalog(t *testing.T) {
	owner := func(path string) []string {
		var out []string
		for _, r := range reducers {
			if under(path, r.section) {
				out = append(out, r.section)
			}
		}
		return out
	}
	for _, f := range models.Fields {
		assert.Len(t, owner(f.Path), 1, f.Path)
	}
	for _, l := range models.Lists {
		// tarihler.diger is folded into the tarihler reducer
		assert.Len(t, owner(l.Path), 1, l.Path)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	m, err := engine().Merge("T1", nil)
	require.NoError(t, err)
	assert.Empty(t, m.Fields)
	assert.Empty(t, m.Lists)
	assert.Equal(t, 0, m.Meta.DocumentCount)
}
