package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
)

type healthSource interface {
	Health() pipeline.HealthReport
}

type HealthHandler struct {
	source healthSource
}

func NewHealthHandler(source healthSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// Health answers 503 when no extraction layer can run.
func (h *HealthHandler) Health(c *gin.Context) {
	rep := h.source.Health()
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    http.StatusText(status),
		"providers": rep,
	})
}
