package analysis

import "time"

// SubmissionStarted is emitted right before the document is sent.
type SubmissionStarted struct {
	Document    string
	ContentType ContentType
	Model       string
	Size        int
}

// OperationAccepted is emitted once the service returned a handle.
type OperationAccepted struct {
	Document string
	Handle   Handle
}

// PollAttempt is emitted after every successful status inspection.
type PollAttempt struct {
	Document    string
	Handle      Handle
	Attempt     int
	MaxAttempts int
	Status      Status
	RawStatus   string
}

// Succeeded is emitted when a result was extracted.
type Succeeded struct {
	Document string
	Handle   Handle
	Attempts int
	Elapsed  time.Duration
}

// Failed is emitted for every error Analyze returns.
type Failed struct {
	Document string
	Err      *Error
	Elapsed  time.Duration
}

// EventSink receives lifecycle events. Implementations must be safe for
// concurrent use when shared between clients.
type EventSink interface {
	OnSubmissionStarted(SubmissionStarted)
	OnOperationAccepted(OperationAccepted)
	OnPollAttempt(PollAttempt)
	OnSucceeded(Succeeded)
	OnFailed(Failed)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnSubmissionStarted(SubmissionStarted) {}
func (NopSink) OnOperationAccepted(OperationAccepted) {}
func (NopSink) OnPollAttempt(PollAttempt)             {}
func (NopSink) OnSucceeded(Succeeded)                 {}
func (NopSink) OnFailed(Failed)                       {}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) OnSubmissionStarted(e SubmissionStarted) {
	for _, s := range m {
		s.OnSubmissionStarted(e)
	}
}

func (m MultiSink) OnOperationAccepted(e OperationAccepted) {
	for _, s := range m {
		s.OnOperationAccepted(e)
	}
}

func (m MultiSink) OnPollAttempt(e PollAttempt) {
	for _, s := range m {
		s.OnPollAttempt(e)
	}
}

func (m MultiSink) OnSucceeded(e Succeeded) {
	for _, s := range m {
		s.OnSucceeded(e)
	}
}

func (m MultiSink) OnFailed(e Failed) {
	for _, s := range m {
		s.OnFailed(e)
	}
}
