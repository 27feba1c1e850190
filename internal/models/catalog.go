package models

// FieldKind drives value coercion when provider output is folded into a record.
type FieldKind int

const (
	KindText FieldKind = iota
	KindInt
	KindNumber
)

// FieldSpec describes one scalar leaf of AnalysisResult.
type FieldSpec struct {
	Path        string
	Kind        FieldKind
	Description string
	// Labels are lowercase form labels that layout/trained providers map onto Path.
	Labels []string
}

// ListSpec describes one list section of AnalysisResult.
type ListSpec struct {
	Path string
	// Key is the item field used for case-insensitive de-duplication.
	Key string
	// Magnitude is the numeric item field compared when duplicates meet; empty when none.
	Magnitude   string
	Numeric     []string
	Description string
	// Headers maps item fields to lowercase table header aliases.
	Headers map[string][]string
}

// Fields is the catalog of scalar leaves, in prompt order.
var Fields = []FieldSpec{
	{Path: "kurum.ad", Description: "ihaleyi yapan idare / kurum adı", Labels: []string{"idarenin adı", "idare adı", "kurum", "idare"}},
	{Path: "kurum.ihale_konusu", Description: "ihale konusu işin adı", Labels: []string{"ihale konusu", "işin adı", "konu"}},
	{Path: "kurum.ihale_kayit_no", Description: "ihale kayıt numarası (İKN)", Labels: []string{"ihale kayıt numarası", "ikn", "kayıt no"}},
	{Path: "kurum.ihale_usulu", Description: "ihale usulü", Labels: []string{"ihale usulü", "usul"}},
	{Path: "kurum.il", Description: "ilin adı", Labels: []string{"il", "şehir"}},
	{Path: "iletisim.adres", Description: "idarenin adresi", Labels: []string{"adresi", "adres"}},
	{Path: "iletisim.telefon", Description: "telefon numarası", Labels: []string{"telefon numarası", "telefon", "tel"}},
	{Path: "iletisim.faks", Description: "faks numarası", Labels: []string{"faks numarası", "faks"}},
	{Path: "iletisim.email", Description: "elektronik posta adresi", Labels: []string{"elektronik posta adresi", "e-posta", "eposta", "e-mail", "email"}},
	{Path: "iletisim.yetkili_kisi", Description: "ilgili personel / yetkili kişi", Labels: []string{"ilgili personelin adı-soyadı", "yetkili kişi", "ilgili personel", "yetkili"}},
	{Path: "tarihler.ihale_tarihi", Description: "ihale tarihi ve saati", Labels: []string{"ihale tarihi", "ihale tarih ve saati"}},
	{Path: "tarihler.son_teklif_tarihi", Description: "son teklif verme tarihi", Labels: []string{"son teklif verme tarihi", "son teklif tarihi"}},
	{Path: "tarihler.baslangic_tarihi", Description: "işe başlama tarihi", Labels: []string{"işe başlama tarihi", "başlangıç tarihi"}},
	{Path: "tarihler.bitis_tarihi", Description: "işin bitiş tarihi", Labels: []string{"işin bitiş tarihi", "bitiş tarihi"}},
	{Path: "tarihler.sure", Description: "işin süresi", Labels: []string{"işin süresi", "süre"}},
	{Path: "mali.tahmini_bedel.tutar", Kind: KindNumber, Description: "yaklaşık maliyet tutarı (sayı)", Labels: []string{"yaklaşık maliyet", "tahmini bedel"}},
	{Path: "mali.tahmini_bedel.para_birimi", Description: "para birimi (TRY, EUR ...)"},
	{Path: "mali.tahmini_bedel.metin", Description: "yaklaşık maliyetin metin hali"},
	{Path: "yemek.kisi_sayisi", Kind: KindInt, Description: "günlük yemek verilecek kişi sayısı", Labels: []string{"kişi sayısı", "günlük kişi sayısı"}},
	{Path: "yemek.ogun_sayisi", Kind: KindInt, Description: "toplam öğün sayısı", Labels: []string{"öğün sayısı", "toplam öğün"}},
	{Path: "yemek.servis_saatleri.kahvalti", Description: "kahvaltı servis saati", Labels: []string{"kahvaltı saati", "kahvaltı"}},
	{Path: "yemek.servis_saatleri.ogle", Description: "öğle yemeği servis saati", Labels: []string{"öğle yemeği saati", "öğle yemeği", "öğle"}},
	{Path: "yemek.servis_saatleri.aksam", Description: "akşam yemeği servis saati", Labels: []string{"akşam yemeği saati", "akşam yemeği", "akşam"}},
	{Path: "teminat.gecici_oran", Description: "geçici teminat oranı", Labels: []string{"geçici teminat", "geçici teminat oranı"}},
	{Path: "teminat.kesin_oran", Description: "kesin teminat oranı", Labels: []string{"kesin teminat", "kesin teminat oranı"}},
	{Path: "teminat.aciklama", Description: "teminat açıklaması"},
}

// Lists is the catalog of list sections.
var Lists = []ListSpec{
	{
		Path: "yemek.ogunler", Key: "tur", Magnitude: "miktar", Numeric: []string{"miktar"},
		Description: "öğünler: tur (kahvaltı/öğle/akşam/ara öğün), miktar, birim",
		Headers: map[string][]string{
			"tur":    {"öğün", "öğün türü", "yemek türü"},
			"miktar": {"miktar", "adet", "öğün sayısı", "porsiyon"},
			"birim":  {"birim"},
		},
	},
	{
		Path: "yemek.gramajlar", Key: "malzeme", Magnitude: "gramaj", Numeric: []string{"gramaj"},
		Description: "gramaj listesi: malzeme, gramaj, birim, ogun",
		Headers: map[string][]string{
			"malzeme": {"malzeme", "malzemenin adı", "gıda maddesi"},
			"gramaj":  {"gramaj", "miktar (gr)", "gr"},
			"birim":   {"birim"},
		},
	},
	{
		Path: "personel.pozisyonlar", Key: "pozisyon", Magnitude: "adet", Numeric: []string{"adet"},
		Description: "çalıştırılacak personel: pozisyon, adet, nitelik",
		Headers: map[string][]string{
			"pozisyon": {"pozisyon", "unvan", "görev", "personel"},
			"adet":     {"adet", "sayı", "kişi sayısı"},
			"nitelik":  {"nitelik", "özellik"},
		},
	},
	{
		Path: "personel.nitelikler", Key: "nitelik",
		Description: "personel nitelikleri: nitelik, aciklama",
	},
	{
		Path: "teknik_sartlar", Key: "sart",
		Description: "teknik / kalite şartları: sart, kategori",
	},
	{
		Path: "cezalar", Key: "aciklama", Numeric: []string{"tutar"},
		Description: "cezai şartlar: aciklama, oran, tutar",
		Headers: map[string][]string{
			"aciklama": {"ceza", "aykırılık", "açıklama"},
			"oran":     {"oran", "ceza oranı"},
			"tutar":    {"tutar"},
		},
	},
	{
		Path: "mali.kalemler", Key: "kalem", Numeric: []string{"miktar", "birim_fiyat", "tutar"},
		Description: "birim fiyat cetveli kalemleri: kalem, miktar, birim, birim_fiyat, tutar",
		Headers: map[string][]string{
			"kalem":       {"iş kalemi", "kalem", "açıklama"},
			"miktar":      {"miktar"},
			"birim":       {"birim"},
			"birim_fiyat": {"birim fiyat", "teklif edilen birim fiyat"},
			"tutar":       {"tutar", "toplam"},
		},
	},
	{
		Path: "tarihler.diger", Key: "tur",
		Description: "diğer tarihler: tur, tarih, aciklama",
	},
}

// FieldSpecFor returns the catalog entry for path.
func FieldSpecFor(path string) (FieldSpec, bool) {
	for _, f := range Fields {
		if f.Path == path {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ListSpecFor returns the catalog entry for a list path.
func ListSpecFor(path string) (ListSpec, bool) {
	for _, l := range Lists {
		if l.Path == path {
			return l, true
		}
	}
	return ListSpec{}, false
}
