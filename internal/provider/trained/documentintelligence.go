// Package trained is the trained-model provider: a custom extraction model
// served through the Document Intelligence analyze/poll REST API.
package trained

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

const (
	Name      = "document_intelligence"
	keyHeader = "Ocp-Apim-Subscription-Key"
)

type DocumentIntelligence struct {
	cfg        config.DocumentIntelligenceConfig
	httpClient *http.Client
	logger     logger.Logger
}

func New(cfg *config.DocumentIntelligenceConfig, httpClient *http.Client, log logger.Logger) *DocumentIntelligence {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	d := &DocumentIntelligence{httpClient: httpClient, logger: log.Named(Name)}
	if cfg != nil {
		d.cfg = *cfg
		d.cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
		if d.cfg.APIVersion == "" {
			d.cfg.APIVersion = "2024-11-30"
		}
	}
	return d
}

func (d *DocumentIntelligence) Name() string        { return Name }
func (d *DocumentIntelligence) Layer() models.Layer { return models.LayerTrainedModel }

// Enabled and ModelID feed the pipeline health report.
func (d *DocumentIntelligence) Enabled() bool   { return d.cfg.Configured() }
func (d *DocumentIntelligence) ModelID() string { return d.cfg.ModelID }

func (d *DocumentIntelligence) modelURL(suffix string) string {
	q := url.Values{"api-version": {d.cfg.APIVersion}}
	return fmt.Sprintf("%s/documentintelligence/documentModels/%s%s?%s",
		d.cfg.Endpoint, url.PathEscape(d.cfg.ModelID), suffix, q.Encode())
}

// HealthCheck asks the service for the model definition.
func (d *DocumentIntelligence) HealthCheck(ctx context.Context) models.Health {
	h := models.Health{CheckedAt: time.Now()}
	if !d.cfg.Configured() {
		h.Detail = "document intelligence not configured"
		return h
	}
	h.Configured = true

	resp, err := d.do(ctx, http.MethodGet, d.modelURL(""), nil)
	if err != nil {
		h.Detail = err.Error()
		return h
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		h.Detail = fmt.Sprintf("model lookup returned %d", resp.StatusCode)
		return h
	}
	h.Healthy = true
	return h
}

func (d *DocumentIntelligence) Submit(ctx context.Context, payload models.Payload) (*models.JobHandle, error) {
	doc := payload.Document
	if doc == nil {
		return nil, provider.Errorf(Name, models.ErrProviderError, "model analysis needs a document")
	}
	if !d.cfg.Configured() {
		return nil, provider.Errorf(Name, models.ErrProviderUnavailable, "not configured")
	}

	body, err := json.Marshal(map[string]string{"base64Source": base64.StdEncoding.EncodeToString(doc.Content)})
	if err != nil {
		return nil, err
	}
	resp, err := d.do(ctx, http.MethodPost, d.modelURL(":analyze"), body)
	if err != nil {
		return nil, provider.Errorf(Name, models.ErrProviderError, "analyze request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		kind := models.ErrProviderError
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
			kind = models.ErrProviderUnavailable
		}
		return nil, provider.Errorf(Name, kind, "analyze returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)

	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return nil, provider.Errorf(Name, models.ErrProviderError, "analyze response has no Operation-Location")
	}
	d.logger.Info("Model analysis submitted",
		logger.String("document", doc.ID),
		logger.String("model", d.cfg.ModelID),
	)
	return &models.JobHandle{
		ID:          operationID(location),
		Provider:    Name,
		Location:    location,
		SubmittedAt: time.Now(),
	}, nil
}

func (d *DocumentIntelligence) Poll(ctx context.Context, h *models.JobHandle) (models.JobState, error) {
	op, raw, err := d.operation(ctx, h)
	if err != nil {
		return models.JobState{}, err
	}
	switch op.Status {
	case "succeeded":
		res, err := d.result(op, raw)
		if err != nil {
			return models.JobState{}, err
		}
		return models.JobState{Status: models.JobSucceeded, Result: res}, nil
	case "failed", "canceled":
		msg := op.Status
		if op.Error != nil {
			msg = fmt.Sprintf("%s: %s", op.Error.Code, op.Error.Message)
		}
		return models.JobState{Status: models.JobFailed, Message: msg}, nil
	default:
		return models.JobState{Status: models.JobPending}, nil
	}
}

func (d *DocumentIntelligence) Fetch(ctx context.Context, h *models.JobHandle) (*models.ProviderResult, error) {
	op, raw, err := d.operation(ctx, h)
	if err != nil {
		return nil, err
	}
	if op.Status != "succeeded" {
		return nil, fmt.Errorf("operation %s is %s", h.ID, op.Status)
	}
	return d.result(op, raw)
}

func (d *DocumentIntelligence) operation(ctx context.Context, h *models.JobHandle) (*analyzeOperation, []byte, error) {
	resp, err := d.do(ctx, http.MethodGet, h.Location, nil)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("operation poll returned %d", resp.StatusCode)
	}
	var op analyzeOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, nil, fmt.Errorf("failed to decode operation: %w", err)
	}
	return &op, raw, nil
}

func (d *DocumentIntelligence) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set(keyHeader, d.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return d.httpClient.Do(req)
}

func (d *DocumentIntelligence) result(op *analyzeOperation, raw []byte) (*models.ProviderResult, error) {
	res := &models.ProviderResult{
		Provider: Name,
		Layer:    models.LayerTrainedModel,
		Fields:   make(map[string]models.FieldValue),
		Lists:    make(map[string][]models.Item),
		Raw:      json.RawMessage(raw),
	}
	if op.AnalyzeResult == nil {
		return res, nil
	}
	for _, p := range op.AnalyzeResult.Pages {
		res.Pages = append(res.Pages, p.PageNumber)
	}
	if len(op.AnalyzeResult.Documents) == 0 {
		return res, nil
	}

	unmapped := 0
	for name, f := range op.AnalyzeResult.Documents[0].Fields {
		if path, ok := provider.ListForName(name); ok {
			res.Lists[path] = append(res.Lists[path], f.items()...)
			continue
		}
		if path, ok := provider.FieldForLabel(name); ok {
			if v := f.scalar(); v != nil {
				res.Fields[path] = models.FieldValue{Value: v, Confidence: f.Confidence}
			}
			continue
		}
		// object fields named after a section ("teminat") carry their leaves
		if f.ValueObject != nil {
			for sub, sf := range f.ValueObject {
				if path, ok := provider.FieldForLabel(name + "." + sub); ok {
					if v := sf.scalar(); v != nil {
						res.Fields[path] = models.FieldValue{Value: v, Confidence: sf.Confidence}
					}
				}
			}
			continue
		}
		unmapped++
	}
	if unmapped > 0 {
		d.logger.Debug("Model fields without a catalog path", logger.Int("count", unmapped))
	}
	return res, nil
}

// operationID is the last path segment of an Operation-Location URL.
func operationID(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	Error         *serviceError  `json:"error,omitempty"`
	AnalyzeResult *analyzeResult `json:"analyzeResult,omitempty"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analyzeResult struct {
	ModelID string `json:"modelId"`
	Pages   []struct {
		PageNumber int `json:"pageNumber"`
	} `json:"pages"`
	Documents []struct {
		DocType    string                   `json:"docType"`
		Confidence float64                  `json:"confidence"`
		Fields     map[string]documentField `json:"fields"`
	} `json:"documents"`
}

type documentField struct {
	Type          string   `json:"type"`
	Content       string   `json:"content,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	ValueString   *string  `json:"valueString,omitempty"`
	ValueNumber   *float64 `json:"valueNumber,omitempty"`
	ValueInteger  *int64   `json:"valueInteger,omitempty"`
	ValueDate     *string  `json:"valueDate,omitempty"`
	ValueTime     *string  `json:"valueTime,omitempty"`
	ValuePhone    *string  `json:"valuePhoneNumber,omitempty"`
	ValueCurrency *struct {
		Amount       float64 `json:"amount"`
		CurrencyCode string  `json:"currencyCode"`
	} `json:"valueCurrency,omitempty"`
	ValueArray  []documentField          `json:"valueArray,omitempty"`
	ValueObject map[string]documentField `json:"valueObject,omitempty"`
}

// scalar returns the typed value, falling back to the raw content.
func (f documentField) scalar() any {
	switch {
	case f.ValueString != nil:
		return *f.ValueString
	case f.ValueNumber != nil:
		return *f.ValueNumber
	case f.ValueInteger != nil:
		return float64(*f.ValueInteger)
	case f.ValueCurrency != nil:
		return f.ValueCurrency.Amount
	case f.ValueDate != nil:
		return *f.ValueDate
	case f.ValueTime != nil:
		return *f.ValueTime
	case f.ValuePhone != nil:
		return *f.ValuePhone
	case strings.TrimSpace(f.Content) != "":
		return strings.TrimSpace(f.Content)
	}
	return nil
}

func (f documentField) items() []models.Item {
	var out []models.Item
	for _, el := range f.ValueArray {
		if el.ValueObject == nil {
			continue
		}
		item := make(models.Item)
		for k, v := range el.ValueObject {
			if s := v.scalar(); s != nil {
				item[k] = s
			}
		}
		if len(item) > 0 {
			out = append(out, item)
		}
	}
	return out
}
