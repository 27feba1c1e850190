package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// FileType 文件类型
type FileType string

const (
	PDF   FileType = "pdf"
	Image FileType = "image"
	Word  FileType = "word"
)

// Document is the immutable input handed to the pipeline.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Content   []byte `json:"-"`
	Extension string `json:"extension"`
	MimeType  string `json:"mimeType"`
	PageCount int    `json:"pageCount,omitempty"`
}

// NewDocument builds a Document whose ID is derived from its bytes, so the same
// file always gets the same identifier.
func NewDocument(name string, content []byte) *Document {
	hash := sha256.Sum256(content)
	ext := strings.ToLower(filepath.Ext(name))
	return &Document{
		ID:        hex.EncodeToString(hash[:])[:12],
		Name:      filepath.Base(name),
		Content:   content,
		Extension: ext,
		MimeType:  MimeTypeFor(ext),
	}
}

var extToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MimeTypeFor maps a lowercase extension (with dot) to its MIME type.
func MimeTypeFor(ext string) string {
	return extToMIME[strings.ToLower(ext)]
}

// Table is an ordered grid of cells with an optional header row.
type Table struct {
	Page    int        `json:"page,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// PageText is one page of normalized text plus the tables found on it.
type PageText struct {
	Number int     `json:"number"`
	Text   string  `json:"text"`
	Tables []Table `json:"tables,omitempty"`
}

// NormalizedDocument is what the text normalizers produce for the chunker.
type NormalizedDocument struct {
	DocumentID string     `json:"documentId"`
	Pages      []PageText `json:"pages"`
	// Method records how the text was obtained: pdf-text, docx, image-ocr, layout-ocr.
	Method string `json:"method"`
}

// Chunk is an ordered, bounded slice of a document's normalized text.
type Chunk struct {
	Index       int     `json:"index"`
	DocumentID  string  `json:"documentId"`
	StartPage   int     `json:"startPage"`
	EndPage     int     `json:"endPage"`
	StartOffset int     `json:"startOffset"`
	EndOffset   int     `json:"endOffset"`
	Text        string  `json:"text"`
	Tables      []Table `json:"tables,omitempty"`
}

// CoversPage reports whether the chunk spans the given page number.
func (c Chunk) CoversPage(page int) bool {
	return page >= c.StartPage && page <= c.EndPage
}

// ProcessingTask is the API view of one queued analysis.
type ProcessingTask struct {
	ID         string            `json:"id"`
	Status     ProcessingStatus  `json:"status"`
	Type       string            `json:"type"`
	Priority   int               `json:"priority"`
	Progress   int               `json:"progress"`
	DocumentID string            `json:"documentId,omitempty"`
	Stage      string            `json:"stage,omitempty"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
