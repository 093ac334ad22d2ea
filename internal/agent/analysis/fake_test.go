package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// scriptedBackend replays a fixed sequence of inspection outcomes.
type scriptedBackend struct {
	mu          sync.Mutex
	handle      Handle
	submitErr   error
	inspections []inspectStep
	submitted   []SubmitRequest
	inspected   int
	tokens      []string
}

type inspectStep struct {
	obs *Observation
	err error
}

func (b *scriptedBackend) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, req)
	if b.submitErr != nil {
		return "", b.submitErr
	}
	return b.handle, nil
}

func (b *scriptedBackend) Inspect(ctx context.Context, handle Handle, token string) (*Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = append(b.tokens, token)
	if b.inspected >= len(b.inspections) {
		b.inspected++
		return running(), nil
	}
	step := b.inspections[b.inspected]
	b.inspected++
	return step.obs, step.err
}

func (b *scriptedBackend) inspectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inspected
}

func running() *Observation {
	return &Observation{Status: StatusRunning, RawStatus: "running", Raw: json.RawMessage(`{"status":"running"}`)}
}

func succeeded(result string) *Observation {
	raw := `{"status":"succeeded","result":` + result + `}`
	return &Observation{
		Status:    StatusSucceeded,
		RawStatus: "succeeded",
		Result:    json.RawMessage(result),
		Raw:       json.RawMessage(raw),
	}
}

func failed(errObj string) *Observation {
	obs := &Observation{Status: StatusFailed, RawStatus: "failed", Raw: json.RawMessage(`{"status":"failed"}`)}
	if errObj != "" {
		obs.Error = json.RawMessage(errObj)
		obs.Raw = json.RawMessage(`{"status":"failed","error":` + errObj + `}`)
	}
	return obs
}

func steps(obs ...*Observation) []inspectStep {
	out := make([]inspectStep, len(obs))
	for i, o := range obs {
		out[i] = inspectStep{obs: o}
	}
	return out
}

// waitRecorder records requested waits without sleeping.
type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *waitRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waits)
}

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

// recordingSink keeps the names of received events in order.
type recordingSink struct {
	mu       sync.Mutex
	events   []string
	attempts []PollAttempt
	failed   *Failed
	success  *Succeeded
}

func (s *recordingSink) add(name string) {
	s.mu.Lock()
	s.events = append(s.events, name)
	s.mu.Unlock()
}

func (s *recordingSink) OnSubmissionStarted(SubmissionStarted) { s.add("submission_started") }
func (s *recordingSink) OnOperationAccepted(OperationAccepted) { s.add("operation_accepted") }

func (s *recordingSink) OnPollAttempt(e PollAttempt) {
	s.add("poll_attempt")
	s.mu.Lock()
	s.attempts = append(s.attempts, e)
	s.mu.Unlock()
}

func (s *recordingSink) OnSucceeded(e Succeeded) {
	s.add("succeeded")
	s.mu.Lock()
	s.success = &e
	s.mu.Unlock()
}

func (s *recordingSink) OnFailed(e Failed) {
	s.add("failed")
	s.mu.Lock()
	s.failed = &e
	s.mu.Unlock()
}

var errBoom = errors.New("boom")
