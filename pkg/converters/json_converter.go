package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/models"
)

// DocumentConverter 定义文档转换器接口
type DocumentConverter interface {
	Convert(result *analysis.Result, meta models.DocumentMetadata) (*ProcessedDocument, error)
}

// ProcessedDocument is what a completed task stores under its result key.
type ProcessedDocument struct {
	TaskID      string           `json:"taskId"`
	Status      string           `json:"status"`
	Content     []ChunkContent   `json:"content"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
	// Result is the analysis payload exactly as the service returned it.
	Result json.RawMessage `json:"result"`
}

// ChunkContent 定义文档块内容
type ChunkContent struct {
	Text     string                 `json:"text"`
	Position int                    `json:"position"`
	Type     string                 `json:"type"` // "document", "table", "field"
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentMetadata 定义文档元数据
type DocumentMetadata struct {
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	FileSize     int64  `json:"fileSize"`
	PageCount    int    `json:"pageCount,omitempty"`
	TableCount   int    `json:"tableCount,omitempty"`
	FieldCount   int    `json:"fieldCount,omitempty"`
	ModelID      string `json:"modelId,omitempty"`
	APIVersion   string `json:"apiVersion,omitempty"`
	Handle       string `json:"handle,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	ProcessingMs int64  `json:"processingMs"`
}

// JSONConverter 实现文档转换器
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

type tableSummary struct {
	RowCount    int `json:"rowCount"`
	ColumnCount int `json:"columnCount"`
}

type kvSummary struct {
	Key struct {
		Content string `json:"content"`
	} `json:"key"`
	Value *struct {
		Content string `json:"content"`
	} `json:"value"`
}

func (c *JSONConverter) Convert(result *analysis.Result, meta models.DocumentMetadata) (*ProcessedDocument, error) {
	if result == nil {
		return nil, fmt.Errorf("no analysis result to convert")
	}

	raw := result.Raw()
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return nil, fmt.Errorf("failed to marshal analysis result: %w", err)
		}
	}

	doc := &ProcessedDocument{
		Status:      "completed",
		ProcessedAt: time.Now(),
		Content:     make([]ChunkContent, 0, 1+len(result.Tables)+len(result.KeyValuePairs)),
		Result:      raw,
		Metadata: DocumentMetadata{
			FileName:   meta.FileName,
			FileType:   string(meta.FileType),
			FileSize:   meta.FileSize,
			PageCount:  len(result.Pages),
			TableCount: len(result.Tables),
			FieldCount: len(result.KeyValuePairs),
			ModelID:    result.ModelID,
			APIVersion: result.APIVersion,
		},
	}
	if doc.Metadata.PageCount == 0 {
		doc.Metadata.PageCount = meta.Pages
	}

	position := 1
	if result.Content != "" {
		doc.Content = append(doc.Content, ChunkContent{
			Text:     result.Content,
			Position: position,
			Type:     "document",
		})
		position++
	}

	for i, rawTable := range result.Tables {
		var t tableSummary
		if err := json.Unmarshal(rawTable, &t); err != nil {
			return nil, fmt.Errorf("failed to decode table %d: %w", i, err)
		}
		doc.Content = append(doc.Content, ChunkContent{
			Position: position,
			Type:     "table",
			Metadata: map[string]interface{}{
				"index":       i,
				"rowCount":    t.RowCount,
				"columnCount": t.ColumnCount,
			},
		})
		position++
	}

	for i, rawPair := range result.KeyValuePairs {
		var kv kvSummary
		if err := json.Unmarshal(rawPair, &kv); err != nil {
			return nil, fmt.Errorf("failed to decode key value pair %d: %w", i, err)
		}
		chunk := ChunkContent{
			Text:     kv.Key.Content,
			Position: position,
			Type:     "field",
			Metadata: map[string]interface{}{"key": kv.Key.Content},
		}
		if kv.Value != nil {
			chunk.Text = kv.Key.Content + " " + kv.Value.Content
			chunk.Metadata["value"] = kv.Value.Content
		}
		doc.Content = append(doc.Content, chunk)
		position++
	}

	return doc, nil
}
