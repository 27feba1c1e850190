// Package layout is the layout/OCR provider: AWS Textract's asynchronous
// document analysis returning page text, tables and form key/value pairs.
package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

const (
	Name      = "textract"
	MethodOCR = "layout-ocr"
)

// API is the slice of the Textract client the adapter uses.
type API interface {
	StartDocumentAnalysis(ctx context.Context, in *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, in *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

// Stager puts documents where Textract can read them.
type Stager interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Bucket() string
}

type Textract struct {
	api           API
	stager        Stager
	enabled       bool
	minConfidence float32
	logger        logger.Logger
}

// New builds the adapter. api or stager may be nil, in which case the
// provider reports itself unconfigured.
func New(api API, stager Stager, cfg *config.TextractConfig, log logger.Logger) *Textract {
	t := &Textract{
		api:           api,
		stager:        stager,
		enabled:       cfg != nil && cfg.Enabled,
		minConfidence: 60,
		logger:        log.Named(Name),
	}
	if cfg != nil && cfg.MinConfidence > 0 {
		t.minConfidence = float32(cfg.MinConfidence)
	}
	return t
}

// NewClient builds a Textract client from static credentials, or the default
// AWS chain when none are configured.
func NewClient(ctx context.Context, cfg *config.TextractConfig) (*textract.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (t *Textract) Name() string        { return Name }
func (t *Textract) Layer() models.Layer { return models.LayerLayout }

func (t *Textract) HealthCheck(ctx context.Context) models.Health {
	h := models.Health{CheckedAt: time.Now()}
	if !t.enabled || t.api == nil || t.stager == nil {
		h.Detail = "textract not configured"
		return h
	}
	h.Configured = true
	if err := t.stager.Ping(ctx); err != nil {
		h.Detail = err.Error()
		return h
	}
	h.Healthy = true
	return h
}

func (t *Textract) Submit(ctx context.Context, payload models.Payload) (*models.JobHandle, error) {
	doc := payload.Document
	if doc == nil {
		return nil, provider.Errorf(Name, models.ErrProviderError, "layout analysis needs a document")
	}
	if t.api == nil || t.stager == nil {
		return nil, provider.Errorf(Name, models.ErrProviderUnavailable, "textract not configured")
	}

	key := fmt.Sprintf("textract/%s%s", doc.ID, doc.Extension)
	if _, err := t.stager.Store(ctx, bytes.NewReader(doc.Content), key); err != nil {
		return nil, provider.Errorf(Name, models.ErrProviderError, "stage %s: %v", key, err)
	}

	out, err := t.api.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(t.stager.Bucket()),
				Name:   aws.String(key),
			},
		},
		FeatureTypes:       []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
		ClientRequestToken: aws.String(doc.ID),
	})
	if err != nil {
		return nil, provider.Errorf(Name, models.ErrProviderError, "start analysis: %v", err)
	}

	t.logger.Info("Textract job started",
		logger.String("document", doc.ID),
		logger.String("job", aws.ToString(out.JobId)),
	)
	return &models.JobHandle{
		ID:          aws.ToString(out.JobId),
		Provider:    Name,
		Location:    key,
		SubmittedAt: time.Now(),
	}, nil
}

func (t *Textract) Poll(ctx context.Context, h *models.JobHandle) (models.JobState, error) {
	out, err := t.api.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
		JobId:      aws.String(h.ID),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return models.JobState{}, err
	}
	switch out.JobStatus {
	case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
		return models.JobState{Status: models.JobSucceeded, Message: aws.ToString(out.StatusMessage)}, nil
	case types.JobStatusFailed:
		return models.JobState{Status: models.JobFailed, Message: aws.ToString(out.StatusMessage)}, nil
	default:
		return models.JobState{Status: models.JobPending}, nil
	}
}

// Fetch pages through the job's blocks and removes the staged object.
func (t *Textract) Fetch(ctx context.Context, h *models.JobHandle) (*models.ProviderResult, error) {
	defer t.unstage(h.Location)

	var (
		blocks []types.Block
		token  *string
		pages  int32
	)
	for {
		out, err := t.api.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:     aws.String(h.ID),
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("get analysis page: %w", err)
		}
		blocks = append(blocks, out.Blocks...)
		if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
			pages = *out.DocumentMetadata.Pages
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		token = out.NextToken
	}

	res, reported := t.interpret(blocks)
	res.Raw, _ = json.Marshal(map[string]any{"jobId": h.ID, "pages": pages, "blocks": len(blocks), "confidences": reported})
	t.logger.Info("Textract job fetched",
		logger.String("job", h.ID),
		logger.Int("blocks", len(blocks)),
		logger.Int("fields", len(res.Fields)),
		logger.Int("tables", len(res.Tables)),
	)
	return res, nil
}

func (t *Textract) unstage(key string) {
	if key == "" || t.stager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.stager.Delete(ctx, key); err != nil {
		t.logger.Warn("Failed to remove staged document", logger.String("key", key), logger.Error(err))
	}
}

// interpret turns Textract blocks into page text, tables and catalog fields.
// Field confidences are scaled to 0..1; the second result keeps the 0..100
// values Textract reported, keyed by field path.
func (t *Textract) interpret(blocks []types.Block) (*models.ProviderResult, map[string]float32) {
	index := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			index[*b.Id] = b
		}
	}

	res := &models.ProviderResult{
		Provider: Name,
		Layer:    models.LayerLayout,
		Fields:   make(map[string]models.FieldValue),
	}
	reported := make(map[string]float32)

	lines := make(map[int][]string)
	for _, b := range blocks {
		switch b.BlockType {
		case types.BlockTypeLine:
			if b.Text != nil && confidence(b) >= t.minConfidence {
				lines[page(b)] = append(lines[page(b)], *b.Text)
			}
		case types.BlockTypeTable:
			if tbl, ok := buildTable(b, index); ok {
				res.Tables = append(res.Tables, tbl)
			}
		case types.BlockTypeKeyValueSet:
			if !isKey(b) {
				continue
			}
			key := childText(b, index)
			value := valueText(b, index)
			if key == "" || value == "" {
				continue
			}
			path, ok := provider.FieldForLabel(key)
			if !ok {
				continue
			}
			conf := float64(confidence(b)) / 100
			// keep the most confident reading of a repeated label
			if prev, seen := res.Fields[path]; seen && prev.Confidence != nil && *prev.Confidence >= conf {
				continue
			}
			res.Fields[path] = models.FieldValue{Value: value, Confidence: &conf}
			reported[path] = confidence(b)
		}
	}

	pageNums := make([]int, 0, len(lines))
	for p := range lines {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)
	for _, p := range pageNums {
		res.PageTexts = append(res.PageTexts, models.PageText{Number: p, Text: strings.Join(lines[p], "\n")})
		res.Pages = append(res.Pages, p)
	}
	for _, tbl := range res.Tables {
		for i := range res.PageTexts {
			if res.PageTexts[i].Number == tbl.Page {
				res.PageTexts[i].Tables = append(res.PageTexts[i].Tables, tbl)
			}
		}
	}
	res.Lists = provider.ItemsFromTables(res.Tables)
	return res, reported
}

// Normalized exposes the OCR text of a layout result in chunker form.
func Normalized(documentID string, res *models.ProviderResult) *models.NormalizedDocument {
	if res == nil {
		return nil
	}
	return &models.NormalizedDocument{DocumentID: documentID, Pages: res.PageTexts, Method: MethodOCR}
}

func buildTable(b types.Block, index map[string]types.Block) (models.Table, bool) {
	var cells []types.Block
	rows, cols := 0, 0
	for _, id := range related(b, types.RelationshipTypeChild) {
		c, ok := index[id]
		if !ok || c.BlockType != types.BlockTypeCell || c.RowIndex == nil || c.ColumnIndex == nil {
			continue
		}
		cells = append(cells, c)
		rows = max(rows, int(*c.RowIndex))
		cols = max(cols, int(*c.ColumnIndex))
	}
	if rows == 0 || cols == 0 {
		return models.Table{}, false
	}

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, c := range cells {
		grid[*c.RowIndex-1][*c.ColumnIndex-1] = childText(c, index)
	}
	return models.Table{Page: page(b), Headers: grid[0], Rows: grid[1:]}, true
}

func related(b types.Block, rel types.RelationshipType) []string {
	var ids []string
	for _, r := range b.Relationships {
		if r.Type == rel {
			ids = append(ids, r.Ids...)
		}
	}
	return ids
}

func childText(b types.Block, index map[string]types.Block) string {
	var parts []string
	for _, id := range related(b, types.RelationshipTypeChild) {
		c, ok := index[id]
		if !ok {
			continue
		}
		switch {
		case c.BlockType == types.BlockTypeWord && c.Text != nil:
			parts = append(parts, *c.Text)
		case c.BlockType == types.BlockTypeSelectionElement && c.SelectionStatus == types.SelectionStatusSelected:
			parts = append(parts, "X")
		}
	}
	return strings.Join(parts, " ")
}

func valueText(key types.Block, index map[string]types.Block) string {
	for _, id := range related(key, types.RelationshipTypeValue) {
		if v, ok := index[id]; ok {
			return childText(v, index)
		}
	}
	return ""
}

func isKey(b types.Block) bool {
	for _, e := range b.EntityTypes {
		if e == types.EntityTypeKey {
			return true
		}
	}
	return false
}

func confidence(b types.Block) float32 {
	if b.Confidence == nil {
		return 0
	}
	return *b.Confidence
}

func page(b types.Block) int {
	if b.Page == nil {
		return 1
	}
	return int(*b.Page)
}
