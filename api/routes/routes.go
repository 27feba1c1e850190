package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/aydarnuman/tender-analyzer/api/handlers"
	"github.com/aydarnuman/tender-analyzer/api/middleware"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestLogger(log), middleware.CORS())

	r.GET("/health", h.Health.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Health)

	analyses := v1.Group("/analyses")
	{
		analyses.POST("", h.Analysis.Analyze)
		analyses.POST("/batch", h.Analysis.AnalyzeBatch)
		analyses.GET("/:taskId", h.Analysis.GetStatus)
		analyses.GET("/:taskId/result", h.Analysis.GetResult)
		analyses.DELETE("/:taskId", h.Analysis.CancelTask)
		analyses.POST("/validate", h.Analysis.Validate)
	}

	v1.POST("/tenders/merge", h.Analysis.Merge)
}
