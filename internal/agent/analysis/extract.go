package analysis

import (
	"bytes"
	"errors"
)

// Extract decodes the analysis payload of a succeeded observation. The payload
// is passed through untouched.
func Extract(obs *Observation) (*Result, error) {
	if obs == nil {
		return nil, &Error{Kind: KindProtocolViolation, Step: StepExtract, Err: errors.New("no observation")}
	}
	payload := bytes.TrimSpace(obs.Result)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, &Error{
			Kind:   KindProtocolViolation,
			Step:   StepExtract,
			Detail: obs.Raw,
			Err:    errors.New("succeeded operation carried no analysis result"),
		}
	}

	var result Result
	if err := result.UnmarshalJSON(payload); err != nil {
		return nil, &Error{Kind: KindProtocolViolation, Step: StepExtract, Detail: obs.Raw, Err: err}
	}
	return &result, nil
}
