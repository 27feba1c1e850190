package handlers

import (
	"github.com/aydarnuman/tender-analyzer/internal/service/analysis"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type Handlers struct {
	Analysis *AnalysisHandler
	Health   *HealthHandler
}

func NewHandlers(
	analysisService analysis.AnalysisProcessor,
	maxUploadSize int64,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Analysis: NewAnalysisHandler(analysisService, maxUploadSize, log),
		Health:   NewHealthHandler(analysisService),
	}
}
