package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type stubProcessor struct{ pages []models.PageText }

func (s *stubProcessor) CanProcess(string) bool { return true }

func (s *stubProcessor) Process(_ context.Context, doc *models.Document) (*models.NormalizedDocument, error) {
	return &models.NormalizedDocument{DocumentID: doc.ID, Pages: s.pages, Method: "stub"}, nil
}

func (s *stubProcessor) Close() error { return nil }

func TestGetProcessorRejectsLegacyWord(t *testing.T) {
	f, err := NewProcessorFactory(logger.NewNop())
	require.NoError(t, err)

	_, err = f.GetProcessor(".doc")
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = f.GetProcessor(".xlsx")
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	p, err := f.GetProcessor(".PDF")
	require.NoError(t, err)
	assert.True(t, p.CanProcess("application/pdf"))
}

func TestNormalizeUsesRegisteredProcessor(t *testing.T) {
	f, err := NewProcessorFactory(logger.NewNop())
	require.NoError(t, err)
	stub := &stubProcessor{pages: []models.PageText{{Number: 1, Text: "ihale"}}}
	f.Register(stub, "application/pdf")

	nd, err := f.Normalize(context.Background(), models.NewDocument("a.pdf", []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, "stub", nd.Method)
	assert.Equal(t, "ihale", nd.Pages[0].Text)
}
