package textract

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

type page struct {
	PageNumber int `json:"pageNumber"`
}

type cell struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}

type table struct {
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Cells       []cell `json:"cells"`
}

type element struct {
	Content string `json:"content"`
}

type keyValuePair struct {
	Key   element `json:"key"`
	Value element `json:"value"`
}

type warning struct {
	ErrorCode string  `json:"errorCode"`
	Pages     []int32 `json:"pages,omitempty"`
}

type result struct {
	APIVersion    string         `json:"apiVersion,omitempty"`
	ModelID       string         `json:"modelId"`
	Content       string         `json:"content"`
	Pages         []page         `json:"pages"`
	Tables        []table        `json:"tables,omitempty"`
	KeyValuePairs []keyValuePair `json:"keyValuePairs,omitempty"`
	Warnings      []warning      `json:"warnings,omitempty"`
}

// buildResult folds Textract blocks into the analysis result layout.
func (b *Backend) buildResult(out *textract.GetDocumentAnalysisOutput, blocks []types.Block) (json.RawMessage, error) {
	index := make(map[string]types.Block, len(blocks))
	for _, block := range blocks {
		if block.Id != nil {
			index[*block.Id] = block
		}
	}

	res := result{
		APIVersion: aws.ToString(out.AnalyzeDocumentModelVersion),
		ModelID:    "textract",
		Content:    strings.Join(b.processBlocks(blocks), "\n"),
		Pages:      []page{},
	}

	pageCount := 0
	if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
		pageCount = int(*out.DocumentMetadata.Pages)
	}
	for i := 1; i <= pageCount; i++ {
		res.Pages = append(res.Pages, page{PageNumber: i})
	}

	res.Tables = processTables(blocks, index)
	res.KeyValuePairs = processForms(blocks, index)

	for _, w := range out.Warnings {
		res.Warnings = append(res.Warnings, warning{ErrorCode: aws.ToString(w.ErrorCode), Pages: w.Pages})
	}

	return json.Marshal(res)
}

// processBlocks returns the text of every LINE block above the confidence floor.
func (b *Backend) processBlocks(blocks []types.Block) []string {
	var texts []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < b.config.MinConfidence {
			continue
		}
		texts = append(texts, *block.Text)
	}
	return texts
}

func processTables(blocks []types.Block, index map[string]types.Block) []table {
	var tables []table
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeTable {
			continue
		}

		t := table{}
		for _, rel := range block.Relationships {
			if rel.Type != types.RelationshipTypeChild {
				continue
			}
			for _, id := range rel.Ids {
				c, ok := index[id]
				if !ok || c.BlockType != types.BlockTypeCell {
					continue
				}
				row := int(aws.ToInt32(c.RowIndex))
				col := int(aws.ToInt32(c.ColumnIndex))
				if row > t.RowCount {
					t.RowCount = row
				}
				if col > t.ColumnCount {
					t.ColumnCount = col
				}
				t.Cells = append(t.Cells, cell{
					RowIndex:    row,
					ColumnIndex: col,
					Content:     getTextFromRelationships(c.Relationships, index),
				})
			}
		}
		tables = append(tables, t)
	}
	return tables
}

func processForms(blocks []types.Block, index map[string]types.Block) []keyValuePair {
	var pairs []keyValuePair
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeKeyValueSet || !isKey(block) {
			continue
		}

		key := getTextFromRelationships(block.Relationships, index)
		value := getValueFromKeyBlock(block, index)
		if key == "" {
			continue
		}
		pairs = append(pairs, keyValuePair{
			Key:   element{Content: key},
			Value: element{Content: value},
		})
	}
	return pairs
}

func isKey(block types.Block) bool {
	for _, et := range block.EntityTypes {
		if et == types.EntityTypeKey {
			return true
		}
	}
	return false
}

func getTextFromRelationships(relationships []types.Relationship, index map[string]types.Block) string {
	var words []string
	for _, rel := range relationships {
		if rel.Type != types.RelationshipTypeChild {
			continue
		}
		for _, id := range rel.Ids {
			if child, ok := index[id]; ok && child.Text != nil {
				words = append(words, *child.Text)
			}
		}
	}
	return strings.Join(words, " ")
}

func getValueFromKeyBlock(keyBlock types.Block, index map[string]types.Block) string {
	for _, rel := range keyBlock.Relationships {
		if rel.Type != types.RelationshipTypeValue {
			continue
		}
		for _, id := range rel.Ids {
			if valueBlock, ok := index[id]; ok {
				return getTextFromRelationships(valueBlock.Relationships, index)
			}
		}
	}
	return ""
}
