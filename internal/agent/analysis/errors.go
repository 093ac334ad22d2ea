package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an analysis failure.
type Kind string

const (
	KindUnsupportedDocumentType Kind = "unsupported_document_type"
	KindCredentialUnavailable   Kind = "credential_unavailable"
	KindSubmissionFailed        Kind = "submission_failed"
	KindProtocolViolation       Kind = "protocol_violation"
	KindPollingTransportFailed  Kind = "polling_transport_failed"
	KindServerReportedFailure   Kind = "server_reported_failure"
	KindPollingTimeout          Kind = "polling_timeout"
	KindCancelled               Kind = "cancelled"
)

// Step names the pipeline stage that produced an error.
type Step string

const (
	StepResolve   Step = "resolve"
	StepAuthorize Step = "authorize"
	StepSubmit    Step = "submit"
	StepPoll      Step = "poll"
	StepExtract   Step = "extract"
)

// Sentinels for errors.Is.
var (
	ErrUnsupportedDocumentType = errors.New("unsupported document type")
	ErrCredentialUnavailable   = errors.New("credential unavailable")
	ErrSubmissionFailed        = errors.New("submission failed")
	ErrProtocolViolation       = errors.New("protocol violation")
	ErrPollingTransportFailed  = errors.New("polling transport failed")
	ErrServerReportedFailure   = errors.New("server reported failure")
	ErrPollingTimeout          = errors.New("polling timed out")
	ErrCancelled               = errors.New("analysis cancelled")
)

var kindSentinels = map[Kind]error{
	KindUnsupportedDocumentType: ErrUnsupportedDocumentType,
	KindCredentialUnavailable:   ErrCredentialUnavailable,
	KindSubmissionFailed:        ErrSubmissionFailed,
	KindProtocolViolation:       ErrProtocolViolation,
	KindPollingTransportFailed:  ErrPollingTransportFailed,
	KindServerReportedFailure:   ErrServerReportedFailure,
	KindPollingTimeout:          ErrPollingTimeout,
	KindCancelled:               ErrCancelled,
}

// Error is the structured failure returned by Analyze. Only the fields
// relevant to Kind are populated.
type Error struct {
	Kind Kind
	Step Step

	// HTTP status and body of the failing response, when there was one.
	StatusCode int
	Body       string

	// Detail is the error object (or whole payload) a failed operation reported.
	Detail json.RawMessage

	Handle      Handle
	Attempts    int
	MaxAttempts int

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Step))
	b.WriteString(": ")
	switch sentinel, ok := kindSentinels[e.Kind]; {
	case ok:
		b.WriteString(sentinel.Error())
	case e.Kind != "":
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("unknown error")
	}

	switch e.Kind {
	case KindSubmissionFailed, KindPollingTransportFailed:
		if e.StatusCode != 0 {
			fmt.Fprintf(&b, ": status %d", e.StatusCode)
		}
		if e.Body != "" {
			fmt.Fprintf(&b, ": %s", e.Body)
		}
	case KindServerReportedFailure:
		if len(e.Detail) > 0 {
			fmt.Fprintf(&b, ": %s", string(e.Detail))
		}
	case KindPollingTimeout:
		fmt.Fprintf(&b, " after %d/%d attempts", e.Attempts, e.MaxAttempts)
	case KindCancelled:
		if e.Attempts > 0 {
			fmt.Fprintf(&b, " after %d attempts", e.Attempts)
		}
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Retryable reports whether re-running the whole analysis may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUnsupportedDocumentType, KindProtocolViolation, KindServerReportedFailure:
		return false
	}
	return true
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// classify turns an arbitrary error from step into an *Error, keeping an
// existing *Error untouched apart from filling in a missing step.
func classify(ctx context.Context, step Step, fallback Kind, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Step == "" {
			ae.Step = step
		}
		return ae
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Step: step, Err: err}
	}
	return &Error{Kind: fallback, Step: step, Err: err}
}
