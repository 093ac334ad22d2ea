package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result is the analysis payload of a succeeded operation. The commonly used
// top level fields are decoded; every other field is kept verbatim in Extra
// and written back out by MarshalJSON.
type Result struct {
	APIVersion    string            `json:"apiVersion,omitempty"`
	ModelID       string            `json:"modelId,omitempty"`
	Content       string            `json:"content"`
	Pages         []json.RawMessage `json:"pages,omitempty"`
	Tables        []json.RawMessage `json:"tables,omitempty"`
	KeyValuePairs []json.RawMessage `json:"keyValuePairs,omitempty"`
	Documents     []json.RawMessage `json:"documents,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	raw json.RawMessage
}

var resultFields = map[string]bool{
	"apiVersion":    true,
	"modelId":       true,
	"content":       true,
	"pages":         true,
	"tables":        true,
	"keyValuePairs": true,
	"documents":     true,
}

// Raw returns the payload exactly as received.
func (r *Result) Raw() json.RawMessage {
	return r.raw
}

// UnmarshalJSON requires a JSON object.
func (r *Result) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("analysis result must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("failed to decode analysis result: %w", err)
	}

	type plain Result
	var known plain
	if err := json.Unmarshal(trimmed, &known); err != nil {
		return fmt.Errorf("failed to decode analysis result: %w", err)
	}

	*r = Result(known)
	for k, v := range fields {
		if resultFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	r.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// MarshalJSON merges the known fields with Extra.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	known, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(r.Extra)+len(resultFields))
	for k, v := range r.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
