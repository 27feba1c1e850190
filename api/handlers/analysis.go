package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/service/analysis"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type AnalysisHandler struct {
	service       analysis.AnalysisProcessor
	maxUploadSize int64
	logger        logger.Logger
}

// ProcessResponse 定义处理响应结构
type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// MergeRequest names the analysed documents of one tender, in merge order.
type MergeRequest struct {
	TenderID string   `json:"tenderId" binding:"required"`
	TaskIDs  []string `json:"taskIds" binding:"required,min=1"`
}

func NewAnalysisHandler(service analysis.AnalysisProcessor, maxUploadSize int64, log logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
		logger:        log.Named("http"),
	}
}

// Analyze queues one uploaded tender document.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	resp, err := h.submit(c, header)
	if err != nil {
		h.handleServiceError(c, "Failed to queue analysis", err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// AnalyzeBatch 批量处理文档. Files are queued in form order; the first
// failure stops the batch and the tasks queued so far are returned with it.
func (h *AnalysisHandler) AnalyzeBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	responses := make([]ProcessResponse, 0, len(files))
	for _, header := range files {
		resp, err := h.submit(c, header)
		if err != nil {
			status, msg := statusFor(err)
			h.logger.Warn("Batch upload stopped",
				logger.String("filename", header.Filename),
				logger.Error(err),
			)
			c.JSON(status, gin.H{
				"message": fmt.Sprintf("%s: %s", msg, header.Filename),
				"error":   err.Error(),
				"tasks":   responses,
			})
			return
		}
		responses = append(responses, *resp)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d documents", len(files)),
		"tasks":   responses,
	})
}

func (h *AnalysisHandler) submit(c *gin.Context, header *multipart.FileHeader) (*ProcessResponse, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	meta := map[string]string{}
	if tenderID := c.PostForm("tenderId"); tenderID != "" {
		meta["tenderId"] = tenderID
	}

	task, err := h.service.Submit(c.Request.Context(), header.Filename, content, meta)
	if err != nil {
		return nil, err
	}
	return &ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetStatus 获取处理状态
func (h *AnalysisHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleServiceError(c, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GetResult returns the stored analysis. With ?download=1 it is sent as an
// attachment.
func (h *AnalysisHandler) GetResult(c *gin.Context) {
	taskID := c.Param("taskId")
	result, err := h.service.GetResult(c.Request.Context(), taskID)
	if err != nil {
		h.handleServiceError(c, "Failed to get result", err)
		return
	}
	if c.Query("download") != "" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=analysis_%s.json", taskID))
	}
	c.JSON(http.StatusOK, result)
}

// CancelTask 取消处理任务
func (h *AnalysisHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleServiceError(c, "Failed to cancel task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// Validate re-scores a posted analysis against the current schema.
func (h *AnalysisHandler) Validate(c *gin.Context) {
	var result models.AnalysisResult
	if err := c.ShouldBindJSON(&result); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid analysis body", err)
		return
	}
	report, err := h.service.Revalidate(&result)
	if err != nil {
		h.handleServiceError(c, "Failed to validate", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Merge fuses stored analyses into one tender record.
func (h *AnalysisHandler) Merge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid merge request", err)
		return
	}
	out, err := h.service.Merge(c.Request.Context(), req.TenderID, req.TaskIDs)
	if err != nil {
		h.handleServiceError(c, "Failed to merge", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrInvalidUpload):
		return http.StatusBadRequest, "Invalid document"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, analysis.ErrNotReady):
		return http.StatusConflict, "Analysis not finished"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func (h *AnalysisHandler) handleServiceError(c *gin.Context, message string, err error) {
	status, _ := statusFor(err)
	var uerr *analysis.UploadError
	if errors.As(err, &uerr) && uerr.Result != nil {
		c.JSON(status, ErrorResponse{Error: err.Error(), Message: message, Details: uerr.Result.Errors})
		return
	}
	h.handleError(c, status, message, err)
}

// handleError 统一错误处理
func (h *AnalysisHandler) handleError(c *gin.Context, status int, message string, err error) {
	fields := []logger.Field{logger.String("path", c.Request.URL.Path), logger.Int("status", status)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Info(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
