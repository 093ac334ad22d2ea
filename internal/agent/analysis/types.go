// Package analysis implements the asynchronous document analysis client:
// submit a document, track the returned operation handle, poll it until a
// terminal status is observed and hand back the analysis payload.
//
// The protocol details of a concrete service live in a Backend (see the
// docintel and textract subpackages); this package owns the state machine,
// the error taxonomy and the lifecycle events.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
)

// ContentType is the MIME type a document is submitted with.
type ContentType string

const (
	ContentTypePDF  ContentType = "application/pdf"
	ContentTypeDOCX ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

func (c ContentType) String() string { return string(c) }

// ObjectRef locates a document in an object store.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (o ObjectRef) String() string {
	return o.Bucket + "/" + o.Key
}

// Document is the unit of work handed to Analyze. Content is not retained
// after submission.
type Document struct {
	Name    string
	Content []byte
	// Source is optional; backends that analyze objects in place need it.
	Source *ObjectRef
}

// Handle identifies a server side long-running operation.
type Handle string

func (h Handle) String() string { return string(h) }

// Status is the classified state of an operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps a service reported status onto Status. Anything it does
// not recognize is StatusUnknown, which the poller treats as non-terminal.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "notstarted", "in_progress":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Observation is one poll response.
type Observation struct {
	Status    Status
	RawStatus string
	// Result holds the analysis payload once Status is succeeded.
	Result json.RawMessage
	// Error holds the service error object when Status is failed.
	Error json.RawMessage
	// Raw is the complete response payload.
	Raw json.RawMessage
}

// SubmitRequest carries everything a backend needs to start an operation.
type SubmitRequest struct {
	Document    Document
	ContentType ContentType
	Model       string
	AccessToken string
}

// Backend speaks one analysis service protocol.
//
// Submit starts an operation and must return a *Error of kind
// SubmissionFailed, ProtocolViolation, UnsupportedDocumentType or Cancelled
// on failure. Inspect queries the handle once and must return a *Error of kind
// PollingTransportFailed, ProtocolViolation or Cancelled on failure.
type Backend interface {
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)
	Inspect(ctx context.Context, handle Handle, accessToken string) (*Observation, error)
}

// TokenProvider supplies bearer tokens for the analysis service.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}
