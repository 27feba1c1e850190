package validator

import "github.com/aydarnuman/tender-analyzer/internal/models"

// Schema is a versioned critical-field table. Changing an entry means bumping
// Version so stored reports stay comparable.
type Schema struct {
	Version string
	Entries []models.CriticalFieldSpec
}

// SchemaV1 is the critical-field table every analysis is scored against.
var SchemaV1 = Schema{
	Version: "2",
	Entries: []models.CriticalFieldSpec{
		{Field: "iletisim", Kind: models.RequireAllOf, SubKeys: []string{"adres", "telefon", "email", "yetkili_kisi"}, Label: "İletişim bilgileri"},
		{Field: "teminat", Kind: models.RequireAnyOf, SubKeys: []string{"gecici_oran", "kesin_oran"}, Label: "Teminat oranları"},
		{Field: "yemek.servis_saatleri", Kind: models.RequireAllOf, SubKeys: []string{"kahvalti", "ogle", "aksam"}, Label: "Servis saatleri"},
		{Field: "mali.tahmini_bedel", Kind: models.RequireAnyOf, SubKeys: []string{"tutar", "metin"}, Label: "Tahmini bedel"},
		{Field: "kurum.ihale_konusu", Kind: models.RequireSingle, Label: "İhale konusu"},
		{Field: "kurum.ad", Kind: models.RequireSingle, Label: "İdare"},
		{Field: "kurum.ihale_kayit_no", Kind: models.RequireSingle, Label: "İhale kayıt numarası"},
		{Field: "tarihler.sure", Kind: models.RequireSingle, Label: "İşin süresi"},
		{Field: "yemek.kisi_sayisi", Kind: models.RequireSingle, Label: "Kişi sayısı"},
		{Field: "yemek.ogun_sayisi", Kind: models.RequireSingle, Label: "Öğün sayısı"},
		{Field: "tarihler.baslangic_tarihi", Kind: models.RequireSingle, Label: "Başlangıç tarihi"},
		{Field: "tarihler.bitis_tarihi", Kind: models.RequireSingle, Label: "Bitiş tarihi"},
	},
}

// Default returns the current schema.
func Default() Schema { return SchemaV1 }
