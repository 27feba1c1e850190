package models

import (
	"encoding/json"
	"time"
)

// PipelineVersion is the compatibility marker of the persisted AnalysisResult
// and MergedTenderRecord layout.
const PipelineVersion = "1.4.0"

// AnalysisResult is the canonical structured record for one tender document.
type AnalysisResult struct {
	DocumentID     string                 `json:"document_id"`
	Kurum          Institution            `json:"kurum"`
	Iletisim       Contact                `json:"iletisim"`
	Tarihler       Dates                  `json:"tarihler"`
	Mali           Financials             `json:"mali"`
	Yemek          Catering               `json:"yemek"`
	Personel       Personnel              `json:"personel"`
	Cezalar        []Penalty              `json:"cezalar"`
	TeknikSartlar  []Requirement          `json:"teknik_sartlar"`
	Teminat        Guarantees             `json:"teminat"`
	Provenance     map[string]FieldSource `json:"provenance,omitempty"`
	Meta           Meta                   `json:"meta"`
	CriticalFields CriticalFields         `json:"critical_fields"`
}

type Institution struct {
	Ad           string `json:"ad,omitempty"`
	IhaleKonusu  string `json:"ihale_konusu,omitempty"`
	IhaleKayitNo string `json:"ihale_kayit_no,omitempty"`
	IhaleUsulu   string `json:"ihale_usulu,omitempty"`
	Il           string `json:"il,omitempty"`
}

type Contact struct {
	Adres       string `json:"adres,omitempty"`
	Telefon     string `json:"telefon,omitempty"`
	Faks        string `json:"faks,omitempty"`
	Email       string `json:"email,omitempty"`
	YetkiliKisi string `json:"yetkili_kisi,omitempty"`
}

type Dates struct {
	IhaleTarihi     string      `json:"ihale_tarihi,omitempty"`
	SonTeklifTarihi string      `json:"son_teklif_tarihi,omitempty"`
	BaslangicTarihi string      `json:"baslangic_tarihi,omitempty"`
	BitisTarihi     string      `json:"bitis_tarihi,omitempty"`
	Sure            string      `json:"sure,omitempty"`
	Diger           []DateEntry `json:"diger,omitempty"`
}

type DateEntry struct {
	Tur      string `json:"tur"`
	Tarih    string `json:"tarih,omitempty"`
	Aciklama string `json:"aciklama,omitempty"`
	Kaynak   string `json:"kaynak,omitempty"`
}

type Money struct {
	Tutar      float64 `json:"tutar,omitempty"`
	ParaBirimi string  `json:"para_birimi,omitempty"`
	Metin      string  `json:"metin,omitempty"`
}

type Financials struct {
	TahminiBedel Money      `json:"tahmini_bedel"`
	Kalemler     []LineItem `json:"kalemler,omitempty"`
}

type LineItem struct {
	Kalem      string  `json:"kalem"`
	Miktar     float64 `json:"miktar,omitempty"`
	Birim      string  `json:"birim,omitempty"`
	BirimFiyat float64 `json:"birim_fiyat,omitempty"`
	Tutar      float64 `json:"tutar,omitempty"`
	Kaynak     string  `json:"kaynak,omitempty"`
}

type ServiceHours struct {
	Kahvalti string `json:"kahvalti,omitempty"`
	Ogle     string `json:"ogle,omitempty"`
	Aksam    string `json:"aksam,omitempty"`
}

type Catering struct {
	KisiSayisi     int          `json:"kisi_sayisi,omitempty"`
	OgunSayisi     int          `json:"ogun_sayisi,omitempty"`
	ServisSaatleri ServiceHours `json:"servis_saatleri"`
	Ogunler        []Meal       `json:"ogunler,omitempty"`
	Gramajlar      []Portion    `json:"gramajlar,omitempty"`
}

type Meal struct {
	Tur      string  `json:"tur"`
	Miktar   float64 `json:"miktar,omitempty"`
	Birim    string  `json:"birim,omitempty"`
	Aciklama string  `json:"aciklama,omitempty"`
	Kaynak   string  `json:"kaynak,omitempty"`
}

type Portion struct {
	Malzeme string  `json:"malzeme"`
	Gramaj  float64 `json:"gramaj,omitempty"`
	Birim   string  `json:"birim,omitempty"`
	Ogun    string  `json:"ogun,omitempty"`
	Kaynak  string  `json:"kaynak,omitempty"`
}

type Personnel struct {
	Pozisyonlar []StaffPosition `json:"pozisyonlar,omitempty"`
	Nitelikler  []Qualification `json:"nitelikler,omitempty"`
}

type StaffPosition struct {
	Pozisyon string  `json:"pozisyon"`
	Adet     float64 `json:"adet,omitempty"`
	Nitelik  string  `json:"nitelik,omitempty"`
	Kaynak   string  `json:"kaynak,omitempty"`
}

type Qualification struct {
	Nitelik  string `json:"nitelik"`
	Aciklama string `json:"aciklama,omitempty"`
	Kaynak   string `json:"kaynak,omitempty"`
}

type Penalty struct {
	Aciklama string  `json:"aciklama"`
	Oran     string  `json:"oran,omitempty"`
	Tutar    float64 `json:"tutar,omitempty"`
	Kaynak   string  `json:"kaynak,omitempty"`
}

type Requirement struct {
	Sart     string `json:"sart"`
	Kategori string `json:"kategori,omitempty"`
	Kaynak   string `json:"kaynak,omitempty"`
}

type Guarantees struct {
	GeciciOran string `json:"gecici_oran,omitempty"`
	KesinOran  string `json:"kesin_oran,omitempty"`
	Aciklama   string `json:"aciklama,omitempty"`
}

// FieldSource records which provider won a consolidated scalar.
type FieldSource struct {
	Provider   string   `json:"provider"`
	Confidence *float64 `json:"confidence,omitempty"`
	Chunk      *int     `json:"chunk,omitempty"`
}

type SkippedProvider struct {
	Provider string `json:"provider"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

type Meta struct {
	PipelineVersion  string            `json:"pipeline_version"`
	FileName         string            `json:"file_name,omitempty"`
	PageCount        int               `json:"page_count,omitempty"`
	TextMethod       string            `json:"text_method,omitempty"`
	ChunkCount       int               `json:"chunk_count"`
	ProviderUsed     []string          `json:"provider_used"`
	ProvidersSkipped []SkippedProvider `json:"providers_skipped,omitempty"`
	BackfillRan      bool              `json:"backfill_ran"`
	BackfillFilled   []string          `json:"backfill_filled,omitempty"`
	TimedOut         bool              `json:"timed_out,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	DurationMs       int64             `json:"duration_ms"`
}

type CriticalFields struct {
	Before *ValidationReport `json:"before,omitempty"`
	After  *ValidationReport `json:"after,omitempty"`
}

// UsedProvider appends name to ProviderUsed once.
func (m *Meta) UsedProvider(name string) {
	for _, p := range m.ProviderUsed {
		if p == name {
			return
		}
	}
	m.ProviderUsed = append(m.ProviderUsed, name)
}

// Tree returns the record's data sections as a generic JSON tree, without meta,
// provenance or validation output.
func (r *AnalysisResult) Tree() (map[string]any, error) {
	sections := *r
	sections.Meta = Meta{}
	sections.CriticalFields = CriticalFields{}
	sections.Provenance = nil
	b, err := json.Marshal(sections)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	delete(tree, "meta")
	delete(tree, "critical_fields")
	delete(tree, "provenance")
	delete(tree, "document_id")
	return tree, nil
}

// ApplyTree replaces the record's data sections with the ones in tree, keeping
// the document id, meta, provenance and validation output.
func (r *AnalysisResult) ApplyTree(tree map[string]any) error {
	b, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	var sections AnalysisResult
	if err := json.Unmarshal(b, &sections); err != nil {
		return err
	}
	sections.DocumentID = r.DocumentID
	sections.Meta = r.Meta
	sections.Provenance = r.Provenance
	sections.CriticalFields = r.CriticalFields
	*r = sections
	return nil
}
