package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, b Backend, w *waitRecorder, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{WithWaitFunc(w.Wait)}, opts...)
	c, err := NewClient(b, Config{PollInterval: 2 * time.Second, MaxAttempts: 5}, opts...)
	require.NoError(t, err)
	return c
}

func pdfDoc() Document {
	return Document{Name: "report.pdf", Content: []byte("%PDF-1.7")}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(&scriptedBackend{}, Config{})
	require.NoError(t, err)

	cfg := c.Config()
	assert.Equal(t, DefaultProjectName, cfg.ProjectName)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.NotNil(t, cfg.Backoff)
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(nil, Config{})
	assert.Error(t, err)

	_, err = NewClient(&scriptedBackend{}, Config{PollInterval: -time.Second})
	assert.Error(t, err)

	_, err = NewClient(&scriptedBackend{}, Config{MaxAttempts: -1})
	assert.Error(t, err)
}

func TestAnalyzeSuccess(t *testing.T) {
	b := &scriptedBackend{
		handle: "https://svc/operations/1",
		inspections: steps(running(), running(), succeeded(`{"content":"hello","modelId":"m"}`)),
	}
	w := &waitRecorder{}
	sink := &recordingSink{}
	c := newTestClient(t, b, w, WithEventSink(sink))

	res, err := c.Analyze(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, "m", res.ModelID)

	require.Len(t, b.submitted, 1)
	assert.Equal(t, ContentTypePDF, b.submitted[0].ContentType)
	assert.Equal(t, DefaultProjectName, b.submitted[0].Model)
	assert.Equal(t, 3, b.inspectCount())
	assert.Equal(t, 2, w.count())

	assert.Equal(t, []string{
		"submission_started",
		"operation_accepted",
		"poll_attempt",
		"poll_attempt",
		"poll_attempt",
		"succeeded",
	}, sink.events)
	require.NotNil(t, sink.success)
	assert.Equal(t, 3, sink.success.Attempts)
	assert.Equal(t, Handle("https://svc/operations/1"), sink.success.Handle)
	assert.Equal(t, 5, sink.attempts[0].MaxAttempts)
}

func TestAnalyzeUnsupportedTypeNeverSubmits(t *testing.T) {
	b := &scriptedBackend{handle: "h"}
	sink := &recordingSink{}
	c := newTestClient(t, b, &waitRecorder{}, WithEventSink(sink))

	_, err := c.Analyze(context.Background(), Document{Name: "notes.txt", Content: []byte("x")})
	require.ErrorIs(t, err, ErrUnsupportedDocumentType)
	assert.Empty(t, b.submitted)
	assert.Equal(t, []string{"failed"}, sink.events)
	assert.Equal(t, StepResolve, sink.failed.Err.Step)
}

func TestAnalyzeSubmissionFailureNeverPolls(t *testing.T) {
	b := &scriptedBackend{submitErr: &Error{Kind: KindSubmissionFailed, StatusCode: 401, Body: "denied"}}
	w := &waitRecorder{}
	c := newTestClient(t, b, w)

	_, err := c.Analyze(context.Background(), pdfDoc())

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindSubmissionFailed, ae.Kind)
	assert.Equal(t, StepSubmit, ae.Step)
	assert.Equal(t, 401, ae.StatusCode)
	assert.Equal(t, "denied", ae.Body)
	assert.Equal(t, 0, b.inspectCount())
	assert.Equal(t, 0, w.count())
}

func TestAnalyzeEmptyHandleIsProtocolViolation(t *testing.T) {
	b := &scriptedBackend{}
	c := newTestClient(t, b, &waitRecorder{})

	_, err := c.Analyze(context.Background(), pdfDoc())

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindProtocolViolation, ae.Kind)
	assert.Equal(t, StepSubmit, ae.Step)
	assert.Equal(t, 0, b.inspectCount())
}

func TestAnalyzeServerFailure(t *testing.T) {
	b := &scriptedBackend{handle: "h", inspections: steps(running(), running(), failed(`{"code":"X"}`))}
	sink := &recordingSink{}
	c := newTestClient(t, b, &waitRecorder{}, WithEventSink(sink))

	_, err := c.Analyze(context.Background(), pdfDoc())

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindServerReportedFailure, ae.Kind)
	assert.JSONEq(t, `{"code":"X"}`, string(ae.Detail))
	assert.Equal(t, 3, b.inspectCount())
	assert.Equal(t, "failed", sink.events[len(sink.events)-1])
	assert.False(t, ae.Retryable())
}

func TestAnalyzeTimeout(t *testing.T) {
	b := &scriptedBackend{handle: "h"}
	w := &waitRecorder{}
	c := newTestClient(t, b, w)

	_, err := c.Analyze(context.Background(), pdfDoc())

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindPollingTimeout, ae.Kind)
	assert.Equal(t, 5, ae.Attempts)
	assert.Equal(t, 5, b.inspectCount())
	assert.Equal(t, 4, w.count())
	assert.True(t, ae.Retryable())
}

func TestAnalyzeMissingResult(t *testing.T) {
	b := &scriptedBackend{handle: "h", inspections: steps(&Observation{Status: StatusSucceeded, RawStatus: "succeeded"})}
	c := newTestClient(t, b, &waitRecorder{})

	_, err := c.Analyze(context.Background(), pdfDoc())

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindProtocolViolation, ae.Kind)
	assert.Equal(t, StepExtract, ae.Step)
	assert.Equal(t, Handle("h"), ae.Handle)
	assert.Equal(t, 1, ae.Attempts)
}

func TestAnalyzeTokenForwarded(t *testing.T) {
	b := &scriptedBackend{handle: "h", inspections: steps(running(), succeeded(`{}`))}
	tokens := &staticTokens{token: "tok"}
	c := newTestClient(t, b, &waitRecorder{}, WithTokenProvider(tokens))

	_, err := c.Analyze(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "tok", b.submitted[0].AccessToken)
	assert.Equal(t, []string{"tok", "tok"}, b.tokens)
	assert.Equal(t, 1, tokens.calls)
}

func TestAnalyzeCredentialFailure(t *testing.T) {
	b := &scriptedBackend{handle: "h"}
	c := newTestClient(t, b, &waitRecorder{}, WithTokenProvider(&staticTokens{err: errBoom}))

	_, err := c.Analyze(context.Background(), pdfDoc())

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindCredentialUnavailable, ae.Kind)
	assert.Equal(t, StepAuthorize, ae.Step)
	assert.Empty(t, b.submitted)
}

func TestAnalyzeWithModelAndCallSink(t *testing.T) {
	b := &scriptedBackend{handle: "h", inspections: steps(succeeded(`{}`))}
	clientSink := &recordingSink{}
	callSink := &recordingSink{}
	c := newTestClient(t, b, &waitRecorder{}, WithEventSink(clientSink))

	_, err := c.Analyze(context.Background(), pdfDoc(), WithModel("prebuilt-layout"), WithSink(callSink))
	require.NoError(t, err)
	assert.Equal(t, "prebuilt-layout", b.submitted[0].Model)
	assert.Equal(t, clientSink.events, callSink.events)
	assert.NotEmpty(t, callSink.events)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &scriptedBackend{handle: "h"}
	w := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	c, err := NewClient(b, Config{MaxAttempts: 10}, WithWaitFunc(w))
	require.NoError(t, err)

	_, err = c.Analyze(ctx, pdfDoc())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, b.inspectCount())
}

func TestAnalyzeIsIdempotentAcrossRuns(t *testing.T) {
	tests := []struct {
		name     string
		backend  func() *scriptedBackend
		wantKind Kind
	}{
		{
			name: "success",
			backend: func() *scriptedBackend {
				return &scriptedBackend{handle: "h", inspections: steps(running(), succeeded(`{"content":"same","modelId":"m"}`))}
			},
		},
		{
			name: "server failure",
			backend: func() *scriptedBackend {
				return &scriptedBackend{handle: "h", inspections: steps(running(), failed(`{"code":"X"}`))}
			},
			wantKind: KindServerReportedFailure,
		},
		{
			name: "submission failure",
			backend: func() *scriptedBackend {
				return &scriptedBackend{submitErr: &Error{Kind: KindSubmissionFailed, Step: StepSubmit, StatusCode: 400}}
			},
			wantKind: KindSubmissionFailed,
		},
		{
			name:     "timeout",
			backend:  func() *scriptedBackend { return &scriptedBackend{handle: "h"} },
			wantKind: KindPollingTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := pdfDoc()
			var results []*Result
			var kinds []Kind
			for run := 0; run < 2; run++ {
				c := newTestClient(t, tt.backend(), &waitRecorder{})
				res, err := c.Analyze(context.Background(), doc)
				results = append(results, res)
				kinds = append(kinds, KindOf(err))
			}

			assert.Equal(t, tt.wantKind, kinds[0])
			assert.Equal(t, kinds[0], kinds[1])
			assert.Equal(t, results[0], results[1])
			if tt.wantKind == "" {
				require.NotNil(t, results[0])
				assert.Equal(t, "same", results[0].Content)
			}
		})
	}
}

func TestAnalyzeConcurrentCallsAreIndependent(t *testing.T) {
	c, err := NewClient(&perCallBackend{}, Config{MaxAttempts: 5}, WithWaitFunc((&waitRecorder{}).Wait))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Analyze(context.Background(), pdfDoc())
			assert.NoError(t, err)
			assert.Equal(t, "done", res.Content)
		}()
	}
	wg.Wait()
}

// perCallBackend succeeds on the second inspection of every handle it issued.
type perCallBackend struct {
	mu          sync.Mutex
	next        int
	inspections map[Handle]int
}

func (b *perCallBackend) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return Handle("op-" + string(rune('a'+b.next))), nil
}

func (b *perCallBackend) Inspect(ctx context.Context, h Handle, _ string) (*Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inspections == nil {
		b.inspections = make(map[Handle]int)
	}
	b.inspections[h]++
	if b.inspections[h] < 2 {
		return running(), nil
	}
	return succeeded(`{"content":"done"}`), nil
}
