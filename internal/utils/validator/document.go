// Package validator checks uploads before they are stored and queued.
package validator

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MinDimension int                 // 图片最小尺寸
	MaxDimension int                 // 图片最大尺寸
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

const (
	CodeTooLarge        = "FILE_TOO_LARGE"
	CodeEmpty           = "EMPTY_FILE"
	CodeInvalidType     = "INVALID_FILE_TYPE"
	CodeLegacyWord      = "UNSUPPORTED_FORMAT"
	CodeInvalidMime     = "INVALID_MIME_TYPE"
	CodeCorrupt         = "CORRUPT_FILE"
	CodeImageDimensions = "INVALID_DIMENSIONS"
)

// DefaultConfig accepts the formats the normalizers read. TIFF has no
// content sniffing signature, so octet-stream is allowed for it.
func DefaultConfig(maxFileSize int64) *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: maxFileSize,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".docx": {"application/zip", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			".tif":  {"image/tiff", "application/octet-stream"},
			".tiff": {"image/tiff", "application/octet-stream"},
		},
		MinDimension: 100,
		MaxDimension: 10000,
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig(50 << 20)
	}
	return &DocumentValidator{
		logger: log.Named("upload-validator"),
		config: config,
	}
}

// Validate checks one upload held in memory.
func (v *DocumentValidator) Validate(filename string, content []byte) *ValidationResult {
	sum := sha256.Sum256(content)
	info := FileInfo{
		Filename:  filepath.Base(filename),
		Size:      int64(len(content)),
		Extension: strings.ToLower(filepath.Ext(filename)),
		MimeType:  http.DetectContentType(content),
		Hash:      hex.EncodeToString(sum[:]),
	}
	result := &ValidationResult{IsValid: true, FileInfo: info}

	errs := v.performBasicValidation(info)
	if len(errs) == 0 {
		errs = append(errs, v.validateMimeType(info)...)
	}
	if len(errs) == 0 {
		errs = append(errs, v.performTypeSpecificValidation(content, info)...)
	}
	if len(errs) > 0 {
		result.IsValid = false
		result.Errors = errs
		v.logger.Info("Upload rejected",
			logger.String("filename", info.Filename),
			logger.String("code", errs[0].Code),
		)
	}
	return result
}

// ValidateFile reads a multipart upload, bounded by the size limit, and
// validates it. The content is returned for storing.
func (v *DocumentValidator) ValidateFile(header *multipart.FileHeader) (*ValidationResult, []byte, error) {
	if header.Size > v.config.MaxFileSize {
		return &ValidationResult{
			FileInfo: FileInfo{
				Filename:  filepath.Base(header.Filename),
				Size:      header.Size,
				Extension: strings.ToLower(filepath.Ext(header.Filename)),
			},
			Errors: []ValidationError{tooLarge(v.config.MaxFileSize)},
		}, nil, nil
	}

	f, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, v.config.MaxFileSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return v.Validate(header.Filename, content), content, nil
}

// ValidateFiles 批量验证文件
func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			result, _, err := v.ValidateFile(file)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size == 0 {
		errs = append(errs, ValidationError{Code: CodeEmpty, Message: "File is empty", Field: "size"})
	}
	if info.Size > v.config.MaxFileSize {
		errs = append(errs, tooLarge(v.config.MaxFileSize))
	}

	switch _, ok := v.config.AllowedTypes[info.Extension]; {
	case info.Extension == ".doc":
		errs = append(errs, ValidationError{
			Code:    CodeLegacyWord,
			Message: "Legacy .doc files are not supported, convert to .docx or .pdf",
			Field:   "extension",
		})
	case !ok:
		errs = append(errs, ValidationError{
			Code:    CodeInvalidType,
			Message: fmt.Sprintf("File type %s is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

// MIME类型验证
func (v *DocumentValidator) validateMimeType(info FileInfo) []ValidationError {
	detected, _, _ := strings.Cut(info.MimeType, ";")
	if slices.Contains(v.config.AllowedTypes[info.Extension], detected) {
		return nil
	}
	return []ValidationError{{
		Code:    CodeInvalidMime,
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", detected, info.Extension),
		Field:   "mimeType",
	}}
}

// 特定类型验证
func (v *DocumentValidator) performTypeSpecificValidation(content []byte, info FileInfo) []ValidationError {
	switch info.Extension {
	case ".pdf":
		if !bytes.HasPrefix(content, []byte("%PDF-")) {
			return []ValidationError{{Code: CodeCorrupt, Message: "Missing PDF header"}}
		}
	case ".docx":
		return validateWord(content)
	case ".jpg", ".jpeg", ".png":
		return v.validateImage(content)
	}
	return nil
}

func validateWord(content []byte) []ValidationError {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return []ValidationError{{Code: CodeCorrupt, Message: "Not a valid .docx archive"}}
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return nil
		}
	}
	return []ValidationError{{Code: CodeCorrupt, Message: "Archive has no word/document.xml"}}
}

func (v *DocumentValidator) validateImage(content []byte) []ValidationError {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return []ValidationError{{Code: CodeCorrupt, Message: "Image cannot be decoded"}}
	}
	short, long := min(cfg.Width, cfg.Height), max(cfg.Width, cfg.Height)
	if short < v.config.MinDimension || (v.config.MaxDimension > 0 && long > v.config.MaxDimension) {
		return []ValidationError{{
			Code:    CodeImageDimensions,
			Message: fmt.Sprintf("Image is %dx%d, allowed range is %d-%d px", cfg.Width, cfg.Height, v.config.MinDimension, v.config.MaxDimension),
		}}
	}
	return nil
}

func tooLarge(limit int64) ValidationError {
	return ValidationError{
		Code:    CodeTooLarge,
		Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", limit),
		Field:   "size",
	}
}
