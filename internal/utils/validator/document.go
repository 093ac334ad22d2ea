package validator

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

// Validation error codes.
const (
	CodeFileEmpty       = "FILE_EMPTY"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeInvalidMimeType = "INVALID_MIME_TYPE"
	CodeInvalidPDF      = "INVALID_PDF"
	CodeTooManyPages    = "TOO_MANY_PAGES"
	CodeInvalidDocx     = "INVALID_DOCX"
)

const docxMainPart = "word/document.xml"

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MaxPageCount int                 // PDF最大页数
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
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mimeType"`
	ContentType string `json:"contentType,omitempty"`
	Extension   string `json:"extension"`
	Hash        string `json:"hash"`
	Pages       int    `json:"pages,omitempty"`
}

// DefaultConfig accepts PDF and DOCX up to 50MB.
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".docx": {"application/zip", string(analysis.ContentTypeDOCX)},
		},
		MaxPageCount: 2000,
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// Supported reports whether name has an extension the pipeline analyzes.
// Objects failing this check are skipped rather than rejected.
func (v *DocumentValidator) Supported(name string) bool {
	if _, err := analysis.ResolveContentType(name); err != nil {
		return false
	}
	_, ok := v.config.AllowedTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ValidateFile 验证单个上传文件
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	if file.Size > v.config.MaxFileSize {
		return v.Validate(file.Filename, nil, file.Size), nil
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return v.Validate(file.Filename, data, int64(len(data))), nil
}

// ValidateFiles 批量验证文件
func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var g errgroup.Group

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			result, err := v.ValidateFile(file)
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

// Validate checks name and data. size is the declared size and is only
// consulted when data is nil.
func (v *DocumentValidator) Validate(name string, data []byte, size int64) *ValidationResult {
	if data != nil {
		size = int64(len(data))
	}
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  name,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(name)),
		},
	}

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.fail(errs...)
		return result
	}
	if ct, err := analysis.ResolveContentType(name); err == nil {
		result.FileInfo.ContentType = ct.String()
	}

	sum := sha256.Sum256(data)
	result.FileInfo.Hash = hex.EncodeToString(sum[:])
	result.FileInfo.MimeType = http.DetectContentType(data)

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.fail(errs...)
		return result
	}

	switch result.FileInfo.Extension {
	case ".pdf":
		pages, errs := v.validatePDF(data)
		result.FileInfo.Pages = pages
		result.fail(errs...)
	case ".docx":
		result.fail(v.validateWord(data)...)
	}

	if !result.IsValid {
		v.logger.Debug("Document rejected",
			logger.String("filename", name),
			logger.Any("errors", result.Errors),
		)
	}
	return result
}

func (r *ValidationResult) fail(errs ...ValidationError) {
	if len(errs) == 0 {
		return
	}
	r.IsValid = false
	r.Errors = append(r.Errors, errs...)
}

// Error joins the validation messages.
func (r *ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errors []ValidationError

	if fileInfo.Size == 0 {
		errors = append(errors, ValidationError{
			Code:    CodeFileEmpty,
			Message: "File is empty",
			Field:   "size",
		})
	}

	if fileInfo.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	if !v.Supported(fileInfo.Filename) {
		errors = append(errors, ValidationError{
			Code:    CodeInvalidFileType,
			Message: fmt.Sprintf("File type %s is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errors
}

// MIME类型验证
func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	for _, mime := range v.config.AllowedTypes[fileInfo.Extension] {
		if mime == fileInfo.MimeType {
			return nil
		}
	}
	return []ValidationError{{
		Code:    CodeInvalidMimeType,
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

// validatePDF parses the cross reference table and counts pages.
func (v *DocumentValidator) validatePDF(data []byte) (int, []ValidationError) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, []ValidationError{{
			Code:    CodeInvalidPDF,
			Message: fmt.Sprintf("Unreadable PDF: %v", err),
			Field:   "content",
		}}
	}

	pages := reader.NumPage()
	if pages <= 0 {
		return 0, []ValidationError{{
			Code:    CodeInvalidPDF,
			Message: "PDF has no pages",
			Field:   "content",
		}}
	}
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		return pages, []ValidationError{{
			Code:    CodeTooManyPages,
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount),
			Field:   "pages",
		}}
	}
	return pages, nil
}

// validateWord checks the package is a zip holding the main document part.
func (v *DocumentValidator) validateWord(data []byte) []ValidationError {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return []ValidationError{{
			Code:    CodeInvalidDocx,
			Message: fmt.Sprintf("Unreadable DOCX package: %v", err),
			Field:   "content",
		}}
	}
	for _, f := range zr.File {
		if f.Name == docxMainPart {
			return nil
		}
	}
	return []ValidationError{{
		Code:    CodeInvalidDocx,
		Message: "DOCX package has no " + docxMainPart,
		Field:   "content",
	}}
}
