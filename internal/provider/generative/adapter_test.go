package generative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type stubGenerator struct {
	answer  string
	err     error
	pingErr error
	prompts []string
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

func (s *stubGenerator) Ping(context.Context) error { return s.pingErr }
func (s *stubGenerator) Close() error               { return nil }

func testChunk() *models.Chunk {
	return &models.Chunk{
		Index:     2,
		StartPage: 3,
		EndPage:   4,
		Text:      "İdarenin adı: Ankara Üniversitesi\nKahvaltı 500 öğün",
		Tables: []models.Table{{
			Page:    4,
			Headers: []string{"Öğün", "Miktar"},
			Rows:    [][]string{{"Kahvaltı", "500"}},
		}},
	}
}

func TestAdapterSubmitFlattensAnswer(t *testing.T) {
	gen := &stubGenerator{answer: `{
		"kurum": {"ad": "Ankara Üniversitesi", "il": ""},
		"iletisim": {"email": "satinalma@ankara.edu.tr"},
		"mali": {"tahmini_bedel": "1.250.000,50 TL"},
		"yemek": {"kisi_sayisi": "2.500", "ogunler": [{"tur": "Kahvaltı", "miktar": 500}, {}]}
	}`}
	a := New(gen, config.GenerativeLimits{MaxChunkChars: 1000}, logger.NewNop())

	h, err := a.Submit(context.Background(), models.Payload{Chunk: testChunk()})
	require.NoError(t, err)
	state, err := a.Poll(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, state.Status)

	res, err := a.Fetch(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "stub", res.Provider)
	assert.Equal(t, models.LayerGenerative, res.Layer)
	assert.Equal(t, []int{2}, res.Chunks)
	assert.Equal(t, []int{3, 4}, res.Pages)

	assert.Equal(t, "Ankara Üniversitesi", res.Fields["kurum.ad"].Value)
	assert.NotContains(t, res.Fields, "kurum.il")
	assert.Equal(t, "satinalma@ankara.edu.tr", res.Fields["iletisim.email"].Value)
	assert.Equal(t, 1250000.5, res.Fields["mali.tahmini_bedel.tutar"].Value)
	assert.Equal(t, "1.250.000,50 TL", res.Fields["mali.tahmini_bedel.metin"].Value)
	assert.Equal(t, "2.500", res.Fields["yemek.kisi_sayisi"].Value)
	assert.Nil(t, res.Fields["kurum.ad"].Confidence)

	require.Len(t, res.Lists["yemek.ogunler"], 1)
	assert.Equal(t, "Kahvaltı", res.Lists["yemek.ogunler"][0]["tur"])

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "METİN (sayfa 3-4)")
	assert.Contains(t, gen.prompts[0], "| Kahvaltı | 500 |")
	assert.Contains(t, gen.prompts[0], "yemek.ogunler")
}

func TestAdapterNarrowsToRequestedFields(t *testing.T) {
	gen := &stubGenerator{answer: "```json\n" + `{"kurum": {"ad": "X"}, "iletisim": {"telefon": "0312 000 00 00", "email": "a@b.c"}, "yemek": {"ogunler": [{"tur": "Öğle"}]}}` + "\n```"}
	a := New(gen, config.GenerativeLimits{}, logger.NewNop())

	h, err := a.Submit(context.Background(), models.Payload{Chunk: testChunk(), Fields: []string{"iletisim"}})
	require.NoError(t, err)

	assert.Len(t, h.Result.Fields, 2)
	assert.Contains(t, h.Result.Fields, "iletisim.telefon")
	assert.Contains(t, h.Result.Fields, "iletisim.email")
	assert.Empty(t, h.Result.Lists)

	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "iletisim.yetkili_kisi")
	assert.NotContains(t, prompt, "kurum.ad")
	assert.NotContains(t, prompt, "Liste alanları")
}

func TestAdapterRejectsMalformedAnswers(t *testing.T) {
	for name, answer := range map[string]string{
		"not json":        "Metinde ilgili bilgi bulunamadı.",
		"section scalar":  `{"kurum": "Ankara Üniversitesi"}`,
		"list not array":  `{"cezalar": "yok"}`,
		"list of scalars": `{"teknik_sartlar": ["HACCP"]}`,
		"top level array": `[{"kurum": {}}]`,
		"number for text": `{"iletisim": {"email": 5}}`,
	} {
		t.Run(name, func(t *testing.T) {
			a := New(&stubGenerator{answer: answer}, config.GenerativeLimits{}, logger.NewNop())
			_, err := a.Submit(context.Background(), models.Payload{Chunk: testChunk()})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrProviderError)
		})
	}
}

func TestAdapterGeneratorFailure(t *testing.T) {
	a := New(&stubGenerator{err: errors.New("quota exceeded")}, config.GenerativeLimits{}, logger.NewNop())
	_, err := a.Submit(context.Background(), models.Payload{Chunk: testChunk()})
	assert.ErrorIs(t, err, models.ErrProviderError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a = New(&stubGenerator{err: context.Canceled}, config.GenerativeLimits{}, logger.NewNop())
	_, err = a.Submit(ctx, models.Payload{Chunk: testChunk()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrProviderError)
}

func TestAdapterWithoutGenerator(t *testing.T) {
	a := New(nil, config.GenerativeLimits{}, logger.NewNop())
	assert.Equal(t, Name, a.Name())
	assert.False(t, a.Configured())

	h := a.HealthCheck(context.Background())
	assert.False(t, h.Configured)
	assert.False(t, h.Available())

	_, err := a.Submit(context.Background(), models.Payload{Chunk: testChunk()})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestAdapterHealth(t *testing.T) {
	a := New(&stubGenerator{}, config.GenerativeLimits{}, logger.NewNop())
	assert.True(t, a.HealthCheck(context.Background()).Available())

	a = New(&stubGenerator{pingErr: errors.New("connection refused")}, config.GenerativeLimits{}, logger.NewNop())
	h := a.HealthCheck(context.Background())
	assert.True(t, h.Configured)
	assert.False(t, h.Healthy)
	assert.Equal(t, "connection refused", h.Detail)
}

func TestBuildPromptTruncatesChunk(t *testing.T) {
	c := &models.Chunk{StartPage: 1, EndPage: 1, Text: strings.Repeat("ş", 50)}
	p := buildPrompt(c, "Sadece eksik alanları doldur.", nil, 10)
	assert.True(t, strings.HasPrefix(p, "Sadece eksik alanları doldur."))
	assert.Contains(t, p, strings.Repeat("ş", 10))
	assert.NotContains(t, p, strings.Repeat("ş", 11))
}
