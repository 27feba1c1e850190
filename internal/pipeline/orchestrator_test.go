package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/agent/document"
	"github.com/aydarnuman/tender-analyzer/internal/chunker"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/internal/provider/providertest"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubNormalizer struct {
	nd  *models.NormalizedDocument
	err error
}

func (s stubNormalizer) Normalize(context.Context, *models.Document) (*models.NormalizedDocument, error) {
	return s.nd, s.err
}

func testConfig() config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.Chunk = config.ChunkConfig{MaxChars: 200, Overlap: 20}
	cfg.Poll = config.PollConfig{Interval: time.Millisecond, MaxAttempts: 5}
	cfg.Generative.Workers = 2
	cfg.Timeout = 0
	return cfg
}

func pages() *models.NormalizedDocument {
	return &models.NormalizedDocument{
		DocumentID: "doc-1",
		Method:     "pdf-text",
		Pages: []models.PageText{
			{Number: 1, Text: "İdarenin adı: Ankara Üniversitesi Rektörlüğü. İhale konusu: Yemek hizmeti alımı. İKN: 2024/123456."},
			{Number: 2, Text: "Adres: Dögol Cad. No:6 Ankara. Telefon: 0312 212 60 40. İlgili personel: Ayşe Yılmaz."},
			{Number: 3, Text: "Kahvaltı 07:00, öğle 12:00, akşam 18:00. Günlük 2.500 kişi, toplam 3 öğün. Süre 365 gün."},
		},
	}
}

func testDoc() *models.Document {
	return &models.Document{ID: "doc-1", Name: "idari-sartname.pdf", Extension: ".pdf", MimeType: "application/pdf"}
}

func layoutFake() *providertest.Fake {
	return &providertest.Fake{
		ProviderName:  "textract",
		ProviderLayer: models.LayerLayout,
		Status:        providertest.Healthy(),
		PendingPolls:  1,
		Result: &models.ProviderResult{
			Provider: "textract",
			Layer:    models.LayerLayout,
			Fields: map[string]models.FieldValue{
				"kurum.ad":             {Value: "ANKARA ÜNİVERSİTESİ", Confidence: conf(0.72)},
				"kurum.ihale_kayit_no": {Value: "2024/123456", Confidence: conf(0.99)},
			},
			Tables: []models.Table{{Page: 3, Headers: []string{"Öğün", "Miktar"}, Rows: [][]string{{"Kahvaltı", "500"}}}},
			Lists:  map[string][]models.Item{"yemek.ogunler": {{"tur": "Kahvaltı", "miktar": "500"}}},
		},
	}
}

func trainedFake() *providertest.Fake {
	return &providertest.Fake{
		ProviderName:  "document-intelligence",
		ProviderLayer: models.LayerTrainedModel,
		Status:        providertest.Healthy(),
		PendingPolls:  2,
		Result: &models.ProviderResult{
			Provider: "document-intelligence",
			Layer:    models.LayerTrainedModel,
			Fields: map[string]models.FieldValue{
				"kurum.ad":         {Value: "Ankara Üniversitesi Rektörlüğü", Confidence: conf(0.93)},
				"iletisim.adres":   {Value: "Dögol Cad. No:6 Ankara", Confidence: conf(0.88)},
				"iletisim.telefon": {Value: "0312 212 60 40", Confidence: conf(0.91)},
			},
		},
	}
}

// generativeFake answers from the chunk text; backfill requests (with Fields)
// get backfillFields.
func generativeFake(backfillFields map[string]models.FieldValue) *providertest.Fake {
	return &providertest.Fake{
		ProviderName:  "gemini",
		ProviderLayer: models.LayerGenerative,
		Status:        providertest.Healthy(),
		Respond: func(p models.Payload) (*models.ProviderResult, error) {
			res := &models.ProviderResult{
				Provider: "gemini",
				Layer:    models.LayerGenerative,
				Chunks:   []int{p.Chunk.Index},
				Fields:   map[string]models.FieldValue{},
			}
			if len(p.Fields) > 0 {
				for k, v := range backfillFields {
					res.Fields[k] = v
				}
				return res, nil
			}
			res.Fields["kurum.ihale_konusu"] = models.FieldValue{Value: "Yemek hizmeti alımı"}
			res.Fields["iletisim.yetkili_kisi"] = models.FieldValue{Value: "Ayşe Yılmaz"}
			res.Fields["yemek.kisi_sayisi"] = models.FieldValue{Value: "2.500"}
			res.Fields["yemek.ogun_sayisi"] = models.FieldValue{Value: 3.0}
			res.Fields["tarihler.sure"] = models.FieldValue{Value: "365 gün"}
			res.Fields["yemek.servis_saatleri.kahvalti"] = models.FieldValue{Value: "07:00"}
			res.Fields["yemek.servis_saatleri.ogle"] = models.FieldValue{Value: "12:00"}
			res.Fields["yemek.servis_saatleri.aksam"] = models.FieldValue{Value: "18:00"}
			return res, nil
		},
	}
}

func newOrchestrator(t *testing.T, cfg config.PipelineConfig, norm stubNormalizer, ps Providers) *Orchestrator {
	t.Helper()
	var list []provider.Provider
	for _, p := range []provider.Provider{ps.Layout, ps.TrainedModel, ps.Generative} {
		if p != nil {
			list = append(list, p)
		}
	}
	log := logger.NewNop()
	monitor := provider.NewMonitor(context.Background(), list, 0, log)
	return New(cfg, validator.SchemaV1, chunker.New(cfg.Chunk, norm, log), ps, monitor, log)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// stages returns each stage once, in first-seen order.
func (r *recorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Stage
	seen := map[Stage]bool{}
	for _, e := range r.events {
		if !seen[e.Stage] {
			seen[e.Stage] = true
			out = append(out, e.Stage)
		}
	}
	return out
}

func TestAnalyzeRunsAllLayers(t *testing.T) {
	gen := generativeFake(map[string]models.FieldValue{
		"iletisim.email":            {Value: "satinalma@ankara.edu.tr"},
		"teminat.kesin_oran":        {Value: "%6"},
		"mali.tahmini_bedel.tutar":  {Value: "1.250.000 TL"},
		"kurum.ad":                  {Value: "Backfill must not overwrite"},
		"tarihler.baslangic_tarihi": {Value: "01.01.2025"},
		"tarihler.bitis_tarihi":     {Value: "31.12.2025"},
	})
	ps := Providers{Layout: layoutFake(), TrainedModel: trainedFake(), Generative: gen}
	o := newOrchestrator(t, testConfig(), stubNormalizer{nd: pages()}, ps)

	rec := &recorder{}
	res, err := o.Analyze(context.Background(), testDoc(), Options{OnProgress: rec.sink})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, []string{"textract", "document-intelligence", "gemini"}, res.Meta.ProviderUsed)
	assert.Empty(t, res.Meta.ProvidersSkipped)
	assert.Equal(t, models.PipelineVersion, res.Meta.PipelineVersion)
	assert.Equal(t, 3, res.Meta.PageCount)
	assert.Positive(t, res.Meta.ChunkCount)

	assert.Equal(t, "Ankara Üniversitesi Rektörlüğü", res.Kurum.Ad)
	assert.Equal(t, "document-intelligence", res.Provenance["kurum.ad"].Provider)
	assert.Equal(t, "2024/123456", res.Kurum.IhaleKayitNo)
	assert.Equal(t, 2500, res.Yemek.KisiSayisi)
	require.Len(t, res.Yemek.Ogunler, 1)
	assert.Equal(t, "textract", res.Yemek.Ogunler[0].Kaynak)

	before, after := res.CriticalFields.Before, res.CriticalFields.After
	require.NotNil(t, before)
	require.NotNil(t, after)
	assert.False(t, before.Valid)
	assert.True(t, res.Meta.BackfillRan)
	assert.Contains(t, res.Meta.BackfillFilled, "iletisim.email")
	assert.Equal(t, "satinalma@ankara.edu.tr", res.Iletisim.Email)
	assert.GreaterOrEqual(t, after.Completeness, before.Completeness)
	assert.True(t, after.Valid, "missing: %v", after.Missing)

	assert.Equal(t, []Stage{
		StageChunking, StageLayout, StageModel, StageGenerative, StageConsolidation,
		StageValidation, StageBackfill, StageFinalValidation, StageDone,
	}, rec.stages())
	last := 0
	for _, e := range rec.events {
		assert.GreaterOrEqual(t, e.Progress, last)
		last = e.Progress
	}
	assert.Equal(t, 100, last)

	// layout tables reach the generative layer
	var sawTable bool
	for _, p := range gen.Payloads() {
		if p.Fields == nil && len(p.Chunk.Tables) > 0 {
			sawTable = true
		}
	}
	assert.True(t, sawTable)
}

func TestAnalyzeSkipsUnhealthyTrainedModel(t *testing.T) {
	trained := trainedFake()
	trained.Status = models.Health{Configured: true, Healthy: false, Detail: "401 Unauthorized"}
	ps := Providers{Layout: layoutFake(), TrainedModel: trained, Generative: generativeFake(nil)}
	o := newOrchestrator(t, testConfig(), stubNormalizer{nd: pages()}, ps)

	res, err := o.Analyze(context.Background(), testDoc(), Options{})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, []string{"textract", "gemini"}, res.Meta.ProviderUsed)
	require.Len(t, res.Meta.ProvidersSkipped, 1)
	assert.Equal(t, models.SkippedProvider{
		Provider: "document-intelligence",
		Stage:    string(StageModel),
		Reason:   "unavailable",
		Detail:   "document-intelligence: provider unavailable: 401 Unauthorized",
	}, res.Meta.ProvidersSkipped[0])
	assert.Empty(t, trained.Payloads())

	assert.Equal(t, "ANKARA ÜNİVERSİTESİ", res.Kurum.Ad)
	for _, src := range res.Provenance {
		assert.NotEqual(t, "document-intelligence", src.Provider)
	}
	assert.Less(t, res.CriticalFields.After.Completeness, 1.0)
}

func TestAnalyzeAbsorbsProviderFailures(t *testing.T) {
	lay := layoutFake()
	lay.Fail = "InvalidS3ObjectException"
	trained := trainedFake()
	trained.PendingPolls = 100
	gen := generativeFake(nil)
	gen.SubmitErr = models.NewProviderError("gemini", models.ErrProviderError, errors.New("quota"))

	o := newOrchestrator(t, testConfig(), stubNormalizer{nd: pages()}, Providers{Layout: lay, TrainedModel: trained, Generative: gen})
	res, err := o.Analyze(context.Background(), testDoc(), Options{})
	require.NoError(t, err)

	assert.Empty(t, res.Meta.ProviderUsed)
	reasons := map[string]string{}
	for _, s := range res.Meta.ProvidersSkipped {
		reasons[s.Provider] = s.Reason
	}
	assert.Equal(t, map[string]string{"textract": "error", "document-intelligence": "timeout", "gemini": "error"}, reasons)
	assert.Equal(t, 0.0, res.CriticalFields.After.Completeness)
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {
	o := newOrchestrator(t, testConfig(), stubNormalizer{err: models.ErrUnsupportedFormat}, Providers{Generative: generativeFake(nil)})
	rec := &recorder{}
	res, err := o.Analyze(context.Background(), testDoc(), Options{OnProgress: rec.sink})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	assert.Equal(t, []Stage{StageChunking, StageFailed}, rec.stages())
}

func TestAnalyzeUsesLayoutOCRForScans(t *testing.T) {
	lay := layoutFake()
	lay.Result.PageTexts = []models.PageText{{Number: 1, Text: "Taranmış sayfa: İdarenin adı Ankara Üniversitesi"}}
	o := newOrchestrator(t, testConfig(), stubNormalizer{err: document.ErrNoText}, Providers{Layout: lay})

	res, err := o.Analyze(context.Background(), testDoc(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "layout-ocr", res.Meta.TextMethod)
	assert.Equal(t, 1, res.Meta.ChunkCount)
	assert.Equal(t, []string{"textract"}, res.Meta.ProviderUsed)
	assert.Len(t, lay.Payloads(), 1, "layout result is reused, not requested twice")
}

func TestAnalyzeScanWithoutLayoutIsUnsupported(t *testing.T) {
	lay := layoutFake()
	lay.Status = models.Health{}
	o := newOrchestrator(t, testConfig(), stubNormalizer{err: document.ErrNoText}, Providers{Layout: lay})
	_, err := o.Analyze(context.Background(), testDoc(), Options{})
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
}

func TestAnalyzeTimeoutReturnsPartialResult(t *testing.T) {
	gen := generativeFake(nil)
	gen.Delay = time.Minute
	o := newOrchestrator(t, testConfig(), stubNormalizer{nd: pages()}, Providers{Layout: layoutFake(), Generative: gen})

	res, err := o.Analyze(context.Background(), testDoc(), Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Meta.TimedOut)
	assert.Equal(t, "2024/123456", res.Kurum.IhaleKayitNo)
	assert.Equal(t, []string{"textract"}, res.Meta.ProviderUsed)
	require.NotNil(t, res.CriticalFields.After)
	assert.False(t, res.CriticalFields.After.Valid)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lay := layoutFake()
	lay.PendingPolls = 1000
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	o := newOrchestrator(t, testConfig(), stubNormalizer{nd: pages()}, Providers{Layout: lay})
	o.poller.MaxAttempts = 1000
	res, err := o.Analyze(ctx, testDoc(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Meta.TimedOut)
	assert.Empty(t, res.Meta.ProvidersSkipped, "abandoned jobs are not failures")
}

func TestHealthReport(t *testing.T) {
	trained := trainedFake()
	trained.Status = models.Health{Configured: true, Healthy: false}
	o := newOrchestrator(t, testConfig(), stubNormalizer{}, Providers{Layout: layoutFake(), TrainedModel: trained})

	rep := o.Health()
	assert.Equal(t, LayoutHealth{Configured: true, Healthy: true}, rep.LayoutProvider)
	assert.True(t, rep.TrainedModelProvider.Enabled)
	assert.False(t, rep.GenerativeProvider.Configured)
	assert.True(t, rep.Healthy())
}

func TestGenerativeResultsOrderedByChunk(t *testing.T) {
	var nd models.NormalizedDocument
	nd.DocumentID = "doc-1"
	nd.Method = "pdf-text"
	for i := 1; i <= 6; i++ {
		nd.Pages = append(nd.Pages, models.PageText{
			Number: i,
			Text:   strings.Repeat(fmt.Sprintf("Sayfa %d idari şartname metni. ", i), 12),
		})
	}

	cfg := testConfig()
	cfg.Generative.Workers = 4

	for run := 0; run < 3; run++ {
		var total int
		gen := &providertest.Fake{
			ProviderName:  "gemini",
			ProviderLayer: models.LayerGenerative,
			Status:        providertest.Healthy(),
			Respond: func(p models.Payload) (*models.ProviderResult, error) {
				res := &models.ProviderResult{
					Provider: "gemini",
					Layer:    models.LayerGenerative,
					Chunks:   []int{p.Chunk.Index},
					Fields:   map[string]models.FieldValue{},
				}
				if len(p.Fields) > 0 {
					return res, nil
				}
				// Later chunks answer first.
				time.Sleep(time.Duration(total-p.Chunk.Index) * time.Millisecond)
				res.Fields["kurum.ad"] = models.FieldValue{Value: fmt.Sprintf("chunk-%d", p.Chunk.Index)}
				return res, nil
			},
		}
		o := newOrchestrator(t, cfg, stubNormalizer{nd: &nd}, Providers{Generative: gen})
		_, chunks, err := o.chunker.Chunk(context.Background(), testDoc(), nil)
		require.NoError(t, err)
		total = len(chunks)
		require.Greater(t, total, 4)

		res, err := o.Analyze(context.Background(), testDoc(), Options{})
		require.NoError(t, err)
		assert.Equal(t, "chunk-0", res.Kurum.Ad, "run %d", run)
		require.NotNil(t, res.Provenance["kurum.ad"].Chunk)
		assert.Equal(t, 0, *res.Provenance["kurum.ad"].Chunk)
	}
}
