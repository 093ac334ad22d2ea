package converters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/models"
)

func TestConvertSummarizesResult(t *testing.T) {
	payload := `{
		"modelId": "prebuilt-layout",
		"content": "Invoice 42",
		"pages": [{"pageNumber": 1}, {"pageNumber": 2}],
		"tables": [{"rowCount": 2, "columnCount": 3, "cells": []}],
		"keyValuePairs": [{"key": {"content": "Total"}, "value": {"content": "12.00"}}, {"key": {"content": "Signed"}}],
		"styles": []
	}`
	var res analysis.Result
	require.NoError(t, json.Unmarshal([]byte(payload), &res))

	doc, err := NewJSONConverter().Convert(&res, models.DocumentMetadata{FileName: "invoice.pdf", FileType: models.PDF, FileSize: 10})
	require.NoError(t, err)

	assert.Equal(t, "completed", doc.Status)
	assert.Equal(t, 2, doc.Metadata.PageCount)
	assert.Equal(t, 1, doc.Metadata.TableCount)
	assert.Equal(t, 2, doc.Metadata.FieldCount)
	assert.Equal(t, "prebuilt-layout", doc.Metadata.ModelID)
	assert.Equal(t, "invoice.pdf", doc.Metadata.FileName)
	assert.JSONEq(t, payload, string(doc.Result))

	require.Len(t, doc.Content, 4)
	assert.Equal(t, "document", doc.Content[0].Type)
	assert.Equal(t, "table", doc.Content[1].Type)
	assert.Equal(t, 3, doc.Content[1].Metadata["columnCount"])
	assert.Equal(t, "Total 12.00", doc.Content[2].Text)
	assert.Equal(t, "Signed", doc.Content[3].Text)
	assert.Equal(t, 4, doc.Content[3].Position)
}

func TestConvertNilResult(t *testing.T) {
	_, err := NewJSONConverter().Convert(nil, models.DocumentMetadata{})
	assert.Error(t, err)
}

func TestConvertFallsBackToPageCountFromValidation(t *testing.T) {
	res := &analysis.Result{Content: "x"}
	doc, err := NewJSONConverter().Convert(res, models.DocumentMetadata{Pages: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, doc.Metadata.PageCount)
	assert.JSONEq(t, `{"content":"x"}`, string(doc.Result))
}
