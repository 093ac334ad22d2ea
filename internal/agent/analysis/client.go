package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultProjectName is the model analyzed against when none is configured.
const DefaultProjectName = "function-to-content"

// Config holds the polling and model settings of a Client.
type Config struct {
	ProjectName  string
	PollInterval time.Duration
	MaxAttempts  int
	// Backoff overrides the constant PollInterval wait when set.
	Backoff BackoffFunc
}

// Client runs the resolve, authorize, submit, poll, extract pipeline.
// A Client is safe for concurrent use; every Analyze call owns its state.
type Client struct {
	backend Backend
	tokens  TokenProvider
	sink    EventSink
	wait    WaitFunc
	cfg     Config
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTokenProvider sets the source of bearer tokens. Without one, backends
// receive an empty token and are expected to authenticate on their own.
func WithTokenProvider(tp TokenProvider) ClientOption {
	return func(c *Client) { c.tokens = tp }
}

// WithEventSink sets the sink receiving lifecycle events of every call.
func WithEventSink(s EventSink) ClientOption {
	return func(c *Client) { c.sink = s }
}

// WithWaitFunc replaces the timer used between poll attempts.
func WithWaitFunc(w WaitFunc) ClientOption {
	return func(c *Client) { c.wait = w }
}

// NewClient validates cfg and returns a Client using backend.
func NewClient(backend Backend, cfg Config, opts ...ClientOption) (*Client, error) {
	if backend == nil {
		return nil, errors.New("analysis backend is required")
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = DefaultProjectName
	}
	if cfg.PollInterval < 0 {
		return nil, fmt.Errorf("poll interval must not be negative: %s", cfg.PollInterval)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must not be negative: %d", cfg.MaxAttempts)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ConstantBackoff(cfg.PollInterval)
	}

	c := &Client{
		backend: backend,
		sink:    NopSink{},
		wait:    timerWait,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

type analyzeOptions struct {
	model string
	sink  EventSink
}

// AnalyzeOption adjusts a single Analyze call.
type AnalyzeOption func(*analyzeOptions)

// WithModel analyzes against model instead of the configured project.
func WithModel(model string) AnalyzeOption {
	return func(o *analyzeOptions) { o.model = model }
}

// WithSink adds a sink for this call only, after the client sink.
func WithSink(s EventSink) AnalyzeOption {
	return func(o *analyzeOptions) { o.sink = s }
}

// Analyze submits doc and waits for its analysis result. Every failure is
// an *Error carrying the step that produced it.
func (c *Client) Analyze(ctx context.Context, doc Document, opts ...AnalyzeOption) (*Result, error) {
	o := analyzeOptions{model: c.cfg.ProjectName}
	for _, opt := range opts {
		opt(&o)
	}
	sink := c.sink
	if o.sink != nil {
		sink = MultiSink{c.sink, o.sink}
	}

	started := time.Now()
	result, handle, attempts, err := c.run(ctx, doc, o.model, sink)
	if err != nil {
		ae := classify(ctx, "", KindSubmissionFailed, err)
		sink.OnFailed(Failed{Document: doc.Name, Err: ae, Elapsed: time.Since(started)})
		return nil, ae
	}

	sink.OnSucceeded(Succeeded{
		Document: doc.Name,
		Handle:   handle,
		Attempts: attempts,
		Elapsed:  time.Since(started),
	})
	return result, nil
}

func (c *Client) run(ctx context.Context, doc Document, model string, sink EventSink) (*Result, Handle, int, error) {
	contentType, err := ResolveContentType(doc.Name)
	if err != nil {
		return nil, "", 0, err
	}

	var token string
	if c.tokens != nil {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, "", 0, classify(ctx, StepAuthorize, KindCredentialUnavailable, err)
		}
	}

	sink.OnSubmissionStarted(SubmissionStarted{
		Document:    doc.Name,
		ContentType: contentType,
		Model:       model,
		Size:        len(doc.Content),
	})

	handle, err := c.backend.Submit(ctx, SubmitRequest{
		Document:    doc,
		ContentType: contentType,
		Model:       model,
		AccessToken: token,
	})
	if err != nil {
		return nil, "", 0, classify(ctx, StepSubmit, KindSubmissionFailed, err)
	}
	if handle == "" {
		return nil, "", 0, &Error{
			Kind: KindProtocolViolation,
			Step: StepSubmit,
			Err:  errors.New("backend returned an empty operation handle"),
		}
	}
	sink.OnOperationAccepted(OperationAccepted{Document: doc.Name, Handle: handle})

	attempts := 0
	poller := &Poller{
		MaxAttempts: c.cfg.MaxAttempts,
		Backoff:     c.cfg.Backoff,
		Wait:        c.wait,
		OnAttempt: func(attempt int, obs *Observation) {
			attempts = attempt
			sink.OnPollAttempt(PollAttempt{
				Document:    doc.Name,
				Handle:      handle,
				Attempt:     attempt,
				MaxAttempts: c.cfg.MaxAttempts,
				Status:      obs.Status,
				RawStatus:   obs.RawStatus,
			})
		},
	}

	obs, err := poller.Poll(ctx, handle, func(ctx context.Context) (*Observation, error) {
		return c.backend.Inspect(ctx, handle, token)
	})
	if err != nil {
		return nil, handle, attempts, err
	}

	result, err := Extract(obs)
	if err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			ae.Handle = handle
			ae.Attempts = attempts
		}
		return nil, handle, attempts, err
	}
	return result, handle, attempts, nil
}
