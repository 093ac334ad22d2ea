package models

import (
	"time"
)

// FileType 文件类型
type FileType string

const (
	PDF  FileType = "pdf"
	Word FileType = "docx"
)

// DocumentMetadata 文档元数据
type DocumentMetadata struct {
	FileName    string   `json:"fileName"`
	FileType    FileType `json:"fileType"`
	FileSize    int64    `json:"fileSize"`
	MimeType    string   `json:"mimeType"`
	Pages       int      `json:"pages,omitempty"`
	Hash        string   `json:"hash,omitempty"`
	Bucket      string   `json:"bucket"`
	Key         string   `json:"key"`
	Source      string   `json:"source,omitempty"`
	Model       string   `json:"model,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
}

type ProcessingTask struct {
	ID              string            `json:"id"`
	Status          ProcessingStatus  `json:"status"`
	Type            string            `json:"type"`
	Priority        int               `json:"priority"`
	Progress        float64           `json:"progress"`
	Attempt         int               `json:"attempt,omitempty"`
	MaxAttempts     int               `json:"maxAttempts,omitempty"`
	OperationStatus string            `json:"operationStatus,omitempty"`
	ResultKey       string            `json:"resultKey,omitempty"`
	ErrorKind       string            `json:"errorKind,omitempty"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusPolling   ProcessingStatus = "polling"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)

// Terminal reports whether the task will not change state again.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
