package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

func complete() *models.AnalysisResult {
	return &models.AnalysisResult{
		DocumentID: "doc-1",
		Kurum: models.Institution{
			Ad:           "Ankara Üniversitesi Rektörlüğü",
			IhaleKonusu:  "Yemek hizmeti alımı",
			IhaleKayitNo: "2024/123456",
		},
		Iletisim: models.Contact{
			Adres:       "Dögol Cad. No:6 Tandoğan/Ankara",
			Telefon:     "0312 212 60 40",
			Email:       "satinalma@ankara.edu.tr",
			YetkiliKisi: "Ayşe Yılmaz",
		},
		Tarihler: models.Dates{
			Sure:            "365 takvim günü",
			BaslangicTarihi: "01.01.2025",
			BitisTarihi:     "31.12.2025",
		},
		Mali: models.Financials{TahminiBedel: models.Money{Tutar: 1250000}},
		Yemek: models.Catering{
			KisiSayisi:     2500,
			OgunSayisi:     3,
			ServisSaatleri: models.ServiceHours{Kahvalti: "07:00", Ogle: "12:00", Aksam: "18:00"},
		},
		Teminat: models.Guarantees{KesinOran: "%6"},
	}
}

func TestValidateComplete(t *testing.T) {
	r, err := Validate(complete(), SchemaV1)
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Equal(t, 1.0, r.Completeness)
	assert.Len(t, r.Filled, len(SchemaV1.Entries))
	assert.Empty(t, r.Missing)
	assert.Equal(t, "2", r.SchemaVersion)
}

func TestValidateMissingEmail(t *testing.T) {
	a := complete()
	a.Iletisim.Email = ""

	r, err := Validate(a, SchemaV1)
	require.NoError(t, err)
	assert.False(t, r.Valid)
	assert.Less(t, r.Completeness, 1.0)
	require.Len(t, r.Missing, 1)
	assert.Equal(t, "iletisim", r.Missing[0].Field)
	assert.Equal(t, "missing sub-field email", r.Missing[0].Reason)
	assert.Equal(t, []string{"iletisim.email"}, r.Missing[0].Paths)
}

func TestValidateAnyOf(t *testing.T) {
	a := complete()
	a.Teminat = models.Guarantees{GeciciOran: "%3"}
	r, err := Validate(a, SchemaV1)
	require.NoError(t, err)
	assert.True(t, r.Valid)
	for _, f := range r.Filled {
		if f.Field == "teminat" {
			assert.Equal(t, "present: gecici_oran", f.Note)
		}
	}

	a.Teminat = models.Guarantees{Aciklama: "teminat alınmayacaktır"}
	r, err = Validate(a, SchemaV1)
	require.NoError(t, err)
	require.Len(t, r.Missing, 1)
	assert.Equal(t, "teminat", r.Missing[0].Field)
	assert.Equal(t, "none of gecici_oran, kesin_oran present", r.Missing[0].Reason)
	assert.Equal(t, []string{"teminat.gecici_oran", "teminat.kesin_oran"}, r.Missing[0].Paths)
}

func TestValidateAllOfReasons(t *testing.T) {
	a := complete()
	a.Yemek.ServisSaatleri = models.ServiceHours{Ogle: "12:00"}
	a.Iletisim = models.Contact{}

	r, err := Validate(a, SchemaV1)
	require.NoError(t, err)
	reasons := map[string]string{}
	for _, m := range r.Missing {
		reasons[m.Field] = m.Reason
	}
	assert.Equal(t, "missing sub-fields kahvalti, aksam", reasons["yemek.servis_saatleri"])
	assert.Equal(t, "missing all sub-fields adres, telefon, email, yetkili_kisi", reasons["iletisim"])
}

func TestCompletenessIsFilledOverTotal(t *testing.T) {
	records := []*models.AnalysisResult{{}, complete()}
	partial := complete()
	partial.Kurum = models.Institution{}
	partial.Yemek.KisiSayisi = 0
	partial.Mali = models.Financials{}
	records = append(records, partial)

	for _, a := range records {
		r, err := Validate(a, SchemaV1)
		require.NoError(t, err)
		want := float64(len(r.Filled)) / float64(len(r.Filled)+len(r.Missing))
		assert.InDelta(t, want, r.Completeness, 1e-9)
		assert.Equal(t, r.Completeness == 1.0, r.Valid)
	}
}

func TestValidateEmptyRecord(t *testing.T) {
	r, err := Validate(&models.AnalysisResult{}, SchemaV1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Completeness)
	assert.Len(t, r.Missing, len(SchemaV1.Entries))
	assert.Contains(t, r.MissingPaths(), "mali.tahmini_bedel.tutar")
	assert.Contains(t, r.MissingPaths(), "iletisim.email")
}

func TestValidateCurrencyWithoutAmount(t *testing.T) {
	a := complete()
	a.Mali.TahminiBedel = models.Money{ParaBirimi: "TRY"}

	r, err := Validate(a, SchemaV1)
	require.NoError(t, err)
	assert.False(t, r.Valid)
	require.Len(t, r.Missing, 1)
	assert.Equal(t, "mali.tahmini_bedel", r.Missing[0].Field)
	assert.Equal(t, []string{"mali.tahmini_bedel.tutar", "mali.tahmini_bedel.metin"}, r.Missing[0].Paths)

	a.Mali.TahminiBedel.Metin = "1.250.000 TL"
	r, err = Validate(a, SchemaV1)
	require.NoError(t, err)
	assert.True(t, r.Valid)
}

func TestValidateDoesNotMutate(t *testing.T) {
	a := complete()
	before := *a
	_, err := Validate(a, SchemaV1)
	require.NoError(t, err)
	assert.Equal(t, before, *a)
}

func TestValidateTreeCustomSchema(t *testing.T) {
	s := Schema{Version: "test", Entries: []models.CriticalFieldSpec{{Field: "kurum.il", Kind: models.RequireSingle}}}
	tree := map[string]any{"kurum": map[string]any{"il": "Ankara"}}
	r := ValidateTree(tree, s)
	assert.True(t, r.Valid)

	r = ValidateTree(map[string]any{}, Schema{})
	assert.True(t, r.Valid)
	assert.Equal(t, 1.0, r.Completeness)
}
