package trained

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

const succeeded = `{
  "status": "succeeded",
  "analyzeResult": {
    "modelId": "ihale-v3",
    "pages": [{"pageNumber": 1}, {"pageNumber": 2}],
    "documents": [{
      "docType": "ihale-v3",
      "confidence": 0.93,
      "fields": {
        "kurum__ad": {"type": "string", "valueString": "Ankara Büyükşehir Belediyesi", "confidence": 0.97},
        "Kişi Sayısı": {"type": "integer", "valueInteger": 1200, "confidence": 0.81},
        "mali__tahmini_bedel__tutar": {"type": "currency", "valueCurrency": {"amount": 4500000, "currencyCode": "TRY"}, "confidence": 0.9},
        "teminat": {"type": "object", "valueObject": {
          "gecici_oran": {"type": "string", "content": "%3", "confidence": 0.7}
        }},
        "yemek__ogunler": {"type": "array", "valueArray": [
          {"type": "object", "valueObject": {
            "tur": {"type": "string", "valueString": "Kahvaltı"},
            "miktar": {"type": "number", "valueNumber": 500}
          }}
        ]},
        "serbest_alan": {"type": "string", "valueString": "yok sayılır"}
      }
    }]
  }
}`

type server struct {
	*httptest.Server
	polls atomic.Int32
}

func newServer(t *testing.T, pendingPolls int32, final string) *server {
	s := &server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/documentintelligence/documentModels/ihale-v3:analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get(keyHeader))
		assert.Equal(t, "2024-11-30", r.URL.Query().Get("api-version"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["base64Source"])
		w.Header().Set("Operation-Location", s.URL+"/documentintelligence/documentModels/ihale-v3/analyzeResults/op-42?api-version=2024-11-30")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/documentintelligence/documentModels/ihale-v3/analyzeResults/op-42", func(w http.ResponseWriter, r *http.Request) {
		if s.polls.Add(1) <= pendingPolls {
			w.Write([]byte(`{"status":"running"}`))
			return
		}
		w.Write([]byte(final))
	})
	mux.HandleFunc("/documentintelligence/documentModels/ihale-v3", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(keyHeader) != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"modelId":"ihale-v3"}`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newAdapter(endpoint, key string) *DocumentIntelligence {
	return New(&config.DocumentIntelligenceConfig{
		Enabled:  true,
		Endpoint: endpoint + "/",
		APIKey:   key,
		ModelID:  "ihale-v3",
	}, nil, logger.NewNop())
}

func TestAnalyzeAndPoll(t *testing.T) {
	srv := newServer(t, 2, succeeded)
	d := newAdapter(srv.URL, "secret")

	p := provider.NewPoller(config.PollConfig{Interval: time.Millisecond, MaxAttempts: 10}, logger.NewNop())
	res, err := p.Run(context.Background(), d, models.Payload{Document: models.NewDocument("sartname.pdf", []byte("%PDF"))})
	require.NoError(t, err)
	assert.Equal(t, int32(3), srv.polls.Load())

	assert.Equal(t, models.LayerTrainedModel, res.Layer)
	assert.Equal(t, []int{1, 2}, res.Pages)

	ad := res.Fields["kurum.ad"]
	assert.Equal(t, "Ankara Büyükşehir Belediyesi", ad.Value)
	require.NotNil(t, ad.Confidence)
	assert.Equal(t, 0.97, *ad.Confidence)

	assert.Equal(t, 1200.0, res.Fields["yemek.kisi_sayisi"].Value)
	assert.Equal(t, 4500000.0, res.Fields["mali.tahmini_bedel.tutar"].Value)
	assert.Equal(t, "%3", res.Fields["teminat.gecici_oran"].Value)
	assert.Len(t, res.Fields, 4)

	require.Len(t, res.Lists["yemek.ogunler"], 1)
	assert.Equal(t, models.Item{"tur": "Kahvaltı", "miktar": 500.0}, res.Lists["yemek.ogunler"][0])
	assert.True(t, strings.Contains(string(res.Raw), "ihale-v3"))
}

func TestFailedOperation(t *testing.T) {
	srv := newServer(t, 0, `{"status":"failed","error":{"code":"InvalidContent","message":"corrupted"}}`)
	d := newAdapter(srv.URL, "secret")

	p := provider.NewPoller(config.PollConfig{Interval: time.Millisecond, MaxAttempts: 3}, logger.NewNop())
	_, err := p.Run(context.Background(), d, models.Payload{Document: models.NewDocument("a.pdf", []byte("x"))})
	assert.ErrorIs(t, err, models.ErrProviderError)
	assert.Contains(t, err.Error(), "InvalidContent")
}

func TestPollingExhaustion(t *testing.T) {
	srv := newServer(t, 1000, succeeded)
	d := newAdapter(srv.URL, "secret")

	p := provider.NewPoller(config.PollConfig{Interval: time.Millisecond, MaxAttempts: 4}, logger.NewNop())
	_, err := p.Run(context.Background(), d, models.Payload{Document: models.NewDocument("a.pdf", []byte("x"))})
	assert.ErrorIs(t, err, models.ErrProviderTimeout)
	assert.Equal(t, int32(4), srv.polls.Load())
}

func TestHealthCheck(t *testing.T) {
	srv := newServer(t, 0, succeeded)

	assert.True(t, newAdapter(srv.URL, "secret").HealthCheck(context.Background()).Available())

	bad := newAdapter(srv.URL, "wrong").HealthCheck(context.Background())
	assert.True(t, bad.Configured)
	assert.False(t, bad.Healthy)

	off := New(&config.DocumentIntelligenceConfig{Enabled: true}, nil, logger.NewNop())
	assert.False(t, off.HealthCheck(context.Background()).Configured)
	assert.False(t, off.Enabled())
	assert.Equal(t, "ihale-v3", newAdapter(srv.URL, "secret").ModelID())
}

func TestOperationID(t *testing.T) {
	assert.Equal(t, "op-42", operationID("https://x/documentintelligence/documentModels/m/analyzeResults/op-42?api-version=1"))
}
