// Package docintel talks to the Document Intelligence analyze API over HTTP:
// the document is POSTed to a model scoped analyze endpoint and the returned
// Operation-Location is polled with GET.
package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
)

const (
	DefaultAPIVersion = "2024-07-31-preview"

	// OperationLocationHeader carries the polling URI of an accepted request.
	OperationLocationHeader = "Operation-Location"

	maxErrorBody = 64 << 10
)

// Config configures the HTTP backend.
type Config struct {
	Endpoint   string
	APIVersion string
	HTTPClient *http.Client
}

// Backend implements analysis.Backend.
type Backend struct {
	endpoint   string
	apiVersion string
	httpClient *http.Client
}

// New returns a Backend for cfg.Endpoint.
func New(cfg Config) (*Backend, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("document intelligence endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid document intelligence endpoint: %w", err)
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Backend{
		endpoint:   endpoint,
		apiVersion: apiVersion,
		httpClient: httpClient,
	}, nil
}

// AnalyzeURL returns the submission URL for model.
func (b *Backend) AnalyzeURL(model string) string {
	return fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		b.endpoint, url.PathEscape(model), url.QueryEscape(b.apiVersion))
}

// Submit sends the document and returns the Operation-Location handle.
func (b *Backend) Submit(ctx context.Context, req analysis.SubmitRequest) (analysis.Handle, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.AnalyzeURL(req.Model), bytes.NewReader(req.Document.Content))
	if err != nil {
		return "", &analysis.Error{Kind: analysis.KindSubmissionFailed, Step: analysis.StepSubmit, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", req.ContentType.String())
	setBearer(httpReq, req.AccessToken)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, analysis.KindSubmissionFailed, analysis.StepSubmit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &analysis.Error{
			Kind:       analysis.KindSubmissionFailed,
			Step:       analysis.StepSubmit,
			StatusCode: resp.StatusCode,
			Body:       readBody(resp.Body),
		}
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	location := strings.TrimSpace(resp.Header.Get(OperationLocationHeader))
	if location == "" {
		return "", &analysis.Error{
			Kind:       analysis.KindProtocolViolation,
			Step:       analysis.StepSubmit,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("no %s header in response", strings.ToLower(OperationLocationHeader)),
		}
	}
	return analysis.Handle(location), nil
}

// operationResponse is the polling payload.
type operationResponse struct {
	Status        string          `json:"status"`
	AnalyzeResult json.RawMessage `json:"analyzeResult,omitempty"`
	Error         json.RawMessage `json:"error,omitempty"`
}

// Inspect GETs the operation once.
func (b *Backend) Inspect(ctx context.Context, handle analysis.Handle, accessToken string) (*analysis.Observation, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.String(), nil)
	if err != nil {
		return nil, &analysis.Error{Kind: analysis.KindProtocolViolation, Step: analysis.StepPoll, Err: fmt.Errorf("invalid operation location: %w", err)}
	}
	setBearer(httpReq, accessToken)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, analysis.KindPollingTransportFailed, analysis.StepPoll, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &analysis.Error{
			Kind:       analysis.KindPollingTransportFailed,
			Step:       analysis.StepPoll,
			StatusCode: resp.StatusCode,
			Body:       readBody(resp.Body),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, analysis.KindPollingTransportFailed, analysis.StepPoll, fmt.Errorf("failed to read response: %w", err))
	}

	var payload operationResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &analysis.Error{
			Kind:       analysis.KindProtocolViolation,
			Step:       analysis.StepPoll,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw)),
			Err:        fmt.Errorf("failed to decode operation status: %w", err),
		}
	}

	return &analysis.Observation{
		Status:    analysis.ParseStatus(payload.Status),
		RawStatus: payload.Status,
		Result:    payload.AnalyzeResult,
		Error:     payload.Error,
		Raw:       raw,
	}, nil
}

func setBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func transportError(ctx context.Context, kind analysis.Kind, step analysis.Step, err error) *analysis.Error {
	if ctx.Err() != nil {
		return &analysis.Error{Kind: analysis.KindCancelled, Step: step, Err: err}
	}
	return &analysis.Error{Kind: kind, Step: step, Err: err}
}

func readBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(body)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

var _ analysis.Backend = (*Backend)(nil)
