package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
	uploadvalidator "github.com/aydarnuman/tender-analyzer/internal/utils/validator"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/queue"
)

type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	storeErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, modified: map[string]time.Time{}}
}

func (m *memStore) Store(_ context.Context, r io.Reader, key string) (string, error) {
	if m.storeErr != nil {
		return "", m.storeErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.modified[key] = time.Now()
	return key, nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) CleanupBefore(_ context.Context, prefix string, threshold time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && m.modified[k].Before(threshold) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Bucket() string             { return "mem" }

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Task
	history    []queue.TaskStatus
	statuses   map[string]queue.TaskStatus
	enqueueErr error
}

func newFakeQueue() *fakeQueue { return &fakeQueue{statuses: map[string]queue.TaskStatus{}} }

func (q *fakeQueue) Enqueue(_ context.Context, task *queue.Task) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, id string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	return &s, nil
}

func (q *fakeQueue) CancelTask(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.statuses[id]; !ok {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	q.statuses[id] = queue.TaskStatus{TaskID: id, Status: queue.StatusCancelled}
	return nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, s *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[s.TaskID] = *s
	q.history = append(q.history, *s)
	return nil
}

type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
	events []pipeline.Event
	doc    *models.Document
}

func (f *fakeAnalyzer) Analyze(_ context.Context, doc *models.Document, opts pipeline.Options) (*models.AnalysisResult, error) {
	f.doc = doc
	for _, e := range f.events {
		opts.OnProgress(e)
	}
	if f.result != nil {
		f.result.DocumentID = doc.ID
	}
	return f.result, f.err
}

func (f *fakeAnalyzer) Health() pipeline.HealthReport {
	return pipeline.HealthReport{GenerativeProvider: pipeline.GenerativeHealth{Configured: true}}
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

func newTestService(a Analyzer) (*AnalysisService, *memStore, *fakeQueue) {
	store := newMemStore()
	q := newFakeQueue()
	s := NewService(a, q, store, uploadvalidator.NewDocumentValidator(logger.NewNop(), nil), validator.Default(), logger.NewNop(), nil)
	n := 0
	s.newTaskID = func() string { n++; return fmt.Sprintf("task-%d", n) }
	return s, store, q
}

func TestSubmitStoresAndQueues(t *testing.T) {
	s, store, q := newTestService(&fakeAnalyzer{})

	task, err := s.Submit(context.Background(), "teknik_sartname.pdf", samplePDF, map[string]string{"tenderId": "2025/123"})
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, "2025/123", task.Metadata["tenderId"])
	assert.Contains(t, store.objects, "uploads/task-1.pdf")

	require.Len(t, q.enqueued, 1)
	assert.Equal(t, queue.TaskTypeAnalyze, q.enqueued[0].Type)
	assert.Equal(t, "uploads/task-1.pdf", q.enqueued[0].Payload["fileKey"])
	assert.Equal(t, queue.StatusPending, q.statuses["task-1"].Status)
}

func TestSubmitRejectsInvalidUpload(t *testing.T) {
	s, store, q := newTestService(&fakeAnalyzer{})

	_, err := s.Submit(context.Background(), "eski.doc", []byte{0xd0, 0xcf, 0x11, 0xe0}, nil)
	require.ErrorIs(t, err, ErrInvalidUpload)

	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, uploadvalidator.CodeLegacyWord, uerr.Result.Errors[0].Code)
	assert.Empty(t, store.objects)
	assert.Empty(t, q.enqueued)
}

func TestSubmitRemovesUploadWhenEnqueueFails(t *testing.T) {
	s, store, q := newTestService(&fakeAnalyzer{})
	q.enqueueErr = errors.New("redis down")

	_, err := s.Submit(context.Background(), "ilan.pdf", samplePDF, nil)
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestHandleAnalysisStoresResultAndProgress(t *testing.T) {
	a := &fakeAnalyzer{
		result: &models.AnalysisResult{Kurum: models.Institution{Ad: "Gazi Üniversitesi"}},
		events: []pipeline.Event{
			{Stage: pipeline.StageChunking, Progress: 5},
			{Stage: pipeline.StageGenerative, Message: "chunk 1/2", Progress: 62},
			{Stage: pipeline.StageDone, Progress: 100},
		},
	}
	s, _, q := newTestService(a)
	ctx := context.Background()

	task, err := s.Submit(ctx, "ilan.pdf", samplePDF, nil)
	require.NoError(t, err)
	require.NoError(t, s.HandleAnalysis(ctx, q.enqueued[0]))

	assert.Equal(t, "ilan.pdf", a.doc.Name)
	assert.Equal(t, samplePDF, a.doc.Content)

	var stages []string
	for _, h := range q.history {
		if h.Stage != "" {
			stages = append(stages, h.Stage)
		}
	}
	assert.Equal(t, []string{"chunking", "generative_extraction", "done", "done"}, stages)

	status, err := s.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, a.doc.ID, status.DocumentID)

	got, err := s.GetResult(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gazi Üniversitesi", got.Kurum.Ad)
	assert.Equal(t, a.doc.ID, got.DocumentID)
}

func TestHandleAnalysisUnsupportedFormatFails(t *testing.T) {
	a := &fakeAnalyzer{err: fmt.Errorf("chunking: %w", models.ErrUnsupportedFormat)}
	s, _, q := newTestService(a)
	ctx := context.Background()

	task, err := s.Submit(ctx, "tarama.pdf", samplePDF, nil)
	require.NoError(t, err)

	err = s.HandleAnalysis(ctx, q.enqueued[0])
	require.ErrorIs(t, err, models.ErrUnsupportedFormat)

	status, err := s.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Equal(t, string(pipeline.StageFailed), status.Stage)

	_, err = s.GetResult(ctx, task.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHandleAnalysisCancelledKeepsPartialResult(t *testing.T) {
	a := &fakeAnalyzer{
		result: &models.AnalysisResult{Kurum: models.Institution{Ad: "Kısmi"}},
		err:    context.Canceled,
	}
	s, _, q := newTestService(a)
	ctx := context.Background()

	task, err := s.Submit(ctx, "ilan.pdf", samplePDF, nil)
	require.NoError(t, err)
	require.ErrorIs(t, s.HandleAnalysis(ctx, q.enqueued[0]), context.Canceled)

	status, err := s.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)

	got, err := s.GetResult(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kısmi", got.Kurum.Ad)
}

func TestGetResultNotReady(t *testing.T) {
	s, _, _ := newTestService(&fakeAnalyzer{})
	ctx := context.Background()

	task, err := s.Submit(ctx, "ilan.pdf", samplePDF, nil)
	require.NoError(t, err)

	_, err = s.GetResult(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = s.GetResult(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMergeStoredResults(t *testing.T) {
	ctx := context.Background()
	a := &fakeAnalyzer{}
	s, _, q := newTestService(a)

	docs := []*models.AnalysisResult{
		{Kurum: models.Institution{Ad: "Gazi Üniversitesi", IhaleKonusu: "Yemek hizmeti"}},
		{Iletisim: models.Contact{Email: "ihale@gazi.edu.tr"}, Yemek: models.Catering{KisiSayisi: 1200}},
	}
	var ids []string
	for i, d := range docs {
		content := append(append([]byte(nil), samplePDF...), byte('0'+i))
		task, err := s.Submit(ctx, fmt.Sprintf("doc%d.pdf", i), content, nil)
		require.NoError(t, err)
		a.result = d
		require.NoError(t, s.HandleAnalysis(ctx, q.enqueued[i]))
		ids = append(ids, task.ID)
	}

	out, err := s.Merge(ctx, "T-1", ids)
	require.NoError(t, err)
	assert.Equal(t, "T-1", out.Record.TenderID)
	assert.Equal(t, "Gazi Üniversitesi", out.Record.Fields["kurum.ad"].Value)
	assert.Equal(t, docs[1].DocumentID, out.Record.Fields["iletisim.email"].Source)
	require.NotNil(t, out.Validation)
	assert.Greater(t, out.Validation.Completeness, 0.0)
	assert.False(t, out.Validation.Valid)

	_, err = s.Merge(ctx, "T-1", []string{ids[0], "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRevalidate(t *testing.T) {
	s, _, _ := newTestService(&fakeAnalyzer{})
	report, err := s.Revalidate(&models.AnalysisResult{Kurum: models.Institution{Ad: "Gazi"}})
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, validator.Default().Version, report.SchemaVersion)

	_, err = s.Revalidate(nil)
	assert.Error(t, err)
}

func TestCancelAndCleanup(t *testing.T) {
	s, store, _ := newTestService(&fakeAnalyzer{})
	ctx := context.Background()

	task, err := s.Submit(ctx, "ilan.pdf", samplePDF, nil)
	require.NoError(t, err)
	require.NoError(t, s.CancelTask(ctx, task.ID))
	assert.ErrorIs(t, s.CancelTask(ctx, "unknown"), models.ErrNotFound)

	s.now = func() time.Time { return time.Now().Add(30 * 24 * time.Hour) }
	n, err := s.CleanupTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, store.objects)
}
