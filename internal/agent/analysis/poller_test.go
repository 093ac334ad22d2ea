package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(max int, w *waitRecorder) *Poller {
	return &Poller{
		MaxAttempts: max,
		Backoff:     ConstantBackoff(2 * time.Second),
		Wait:        w.Wait,
	}
}

func TestPollSucceedsAfterRunning(t *testing.T) {
	for _, k := range []int{0, 1, 4} {
		w := &waitRecorder{}
		var inspections []*Observation
		for i := 0; i < k; i++ {
			inspections = append(inspections, running())
		}
		inspections = append(inspections, succeeded(`{"content":"hi"}`))
		b := &scriptedBackend{inspections: steps(inspections...)}

		obs, err := newTestPoller(10, w).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
			return b.Inspect(ctx, "h", "")
		})
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, obs.Status)
		assert.Equal(t, k+1, b.inspectCount())
		assert.Equal(t, k, w.count())
		for _, d := range w.waits {
			assert.Equal(t, 2*time.Second, d)
		}
	}
}

func TestPollTimesOut(t *testing.T) {
	w := &waitRecorder{}
	b := &scriptedBackend{}

	_, err := newTestPoller(3, w).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})
	require.Error(t, err)

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindPollingTimeout, ae.Kind)
	assert.Equal(t, 3, ae.Attempts)
	assert.Equal(t, 3, ae.MaxAttempts)
	assert.Equal(t, Handle("h"), ae.Handle)
	assert.Equal(t, 3, b.inspectCount())
	// no wait after the final attempt
	assert.Equal(t, 2, w.count())
}

func TestPollUnknownStatusKeepsPolling(t *testing.T) {
	w := &waitRecorder{}
	unknown := &Observation{Status: StatusUnknown, RawStatus: "canceled"}
	b := &scriptedBackend{inspections: steps(unknown, unknown, succeeded(`{}`))}

	obs, err := newTestPoller(5, w).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, obs.Status)
	assert.Equal(t, 3, b.inspectCount())
}

func TestPollServerReportedFailure(t *testing.T) {
	w := &waitRecorder{}
	b := &scriptedBackend{inspections: steps(running(), running(), failed(`{"code":"X"}`), succeeded(`{}`))}

	_, err := newTestPoller(10, w).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})
	require.Error(t, err)

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindServerReportedFailure, ae.Kind)
	assert.JSONEq(t, `{"code":"X"}`, string(ae.Detail))
	assert.Equal(t, 3, ae.Attempts)
	assert.Equal(t, 3, b.inspectCount())
	assert.Equal(t, 2, w.count())
}

func TestPollFailureWithoutErrorObjectUsesPayload(t *testing.T) {
	b := &scriptedBackend{inspections: steps(failed(""))}

	_, err := newTestPoller(3, &waitRecorder{}).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.JSONEq(t, `{"status":"failed"}`, string(ae.Detail))
}

func TestPollTransportFailure(t *testing.T) {
	transport := &Error{Kind: KindPollingTransportFailed, StatusCode: 500, Body: "oops"}
	b := &scriptedBackend{inspections: []inspectStep{{obs: running()}, {err: transport}}}

	_, err := newTestPoller(10, &waitRecorder{}).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindPollingTransportFailed, ae.Kind)
	assert.Equal(t, StepPoll, ae.Step)
	assert.Equal(t, 500, ae.StatusCode)
	assert.Equal(t, "oops", ae.Body)
	assert.Equal(t, 2, ae.Attempts)
}

func TestPollPlainErrorBecomesTransportFailure(t *testing.T) {
	_, err := newTestPoller(3, &waitRecorder{}).Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return nil, errBoom
	})

	assert.Equal(t, KindPollingTransportFailed, KindOf(err))
	assert.ErrorIs(t, err, errBoom)
}

func TestPollCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &scriptedBackend{}
	p := &Poller{
		MaxAttempts: 10,
		Backoff:     ConstantBackoff(time.Hour),
		Wait: func(ctx context.Context, d time.Duration) error {
			cancel()
			return timerWait(ctx, d)
		},
	}

	_, err := p.Poll(ctx, "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindCancelled, ae.Kind)
	assert.Equal(t, 1, ae.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.inspectCount())
}

func TestPollCancelledBeforeFirstInspect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &scriptedBackend{}

	_, err := newTestPoller(3, &waitRecorder{}).Poll(ctx, "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})

	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, 0, b.inspectCount())
}

func TestPollOnAttemptSeesEveryStatus(t *testing.T) {
	b := &scriptedBackend{inspections: steps(running(), succeeded(`{}`))}
	var seen []Status
	p := newTestPoller(5, &waitRecorder{})
	p.OnAttempt = func(attempt int, obs *Observation) {
		assert.Equal(t, len(seen)+1, attempt)
		seen = append(seen, obs.Status)
	}

	_, err := p.Poll(context.Background(), "h", func(ctx context.Context) (*Observation, error) {
		return b.Inspect(ctx, "h", "")
	})
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusRunning, StatusSucceeded}, seen)
}

func TestExponentialBackoffBounded(t *testing.T) {
	backoff := ExponentialBackoff(100*time.Millisecond, time.Second)
	for attempt := 1; attempt <= 20; attempt++ {
		d := backoff(attempt)
		assert.LessOrEqual(t, d, time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
	assert.GreaterOrEqual(t, backoff(10), 800*time.Millisecond)
}

func TestTimerWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, timerWait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, timerWait(context.Background(), time.Millisecond))
}

func TestExtract(t *testing.T) {
	res, err := Extract(succeeded(`{"content":"hello","pages":[{"pageNumber":1}],"custom":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Len(t, res.Pages, 1)
	assert.JSONEq(t, `{"a":1}`, string(res.Extra["custom"]))

	for _, payload := range []string{"", "null", "[1,2]", `"text"`} {
		obs := &Observation{Status: StatusSucceeded, Result: json.RawMessage(payload), Raw: json.RawMessage(`{"status":"succeeded"}`)}
		_, err := Extract(obs)
		var ae *Error
		require.True(t, errors.As(err, &ae), payload)
		assert.Equal(t, KindProtocolViolation, ae.Kind)
		assert.Equal(t, StepExtract, ae.Step)
	}
}
