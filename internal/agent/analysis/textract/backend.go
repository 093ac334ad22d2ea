// Package textract runs asynchronous AWS Textract document analysis jobs
// behind the analysis.Backend interface. Documents are analyzed in place, so
// they must carry an S3 ObjectRef.
package textract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

// API is the subset of the Textract client used by Backend.
type API interface {
	StartDocumentAnalysis(ctx context.Context, params *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, params *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

type Config struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
	FeatureTypes  []types.FeatureType
}

type Backend struct {
	client API
	logger logger.Logger
	config *Config
}

// New builds a Textract client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg *Config, log logger.Logger) (*Backend, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return NewWithClient(textract.NewFromConfig(awsCfg), cfg, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, cfg *Config, log logger.Logger) *Backend {
	if cfg == nil {
		cfg = &Config{}
	}
	if len(cfg.FeatureTypes) == 0 {
		cfg.FeatureTypes = []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms}
	}
	return &Backend{
		client: client,
		logger: log.Named("textract"),
		config: cfg,
	}
}

// Submit starts a document analysis job for the document's S3 object.
func (b *Backend) Submit(ctx context.Context, req analysis.SubmitRequest) (analysis.Handle, error) {
	if req.ContentType != analysis.ContentTypePDF {
		return "", &analysis.Error{
			Kind: analysis.KindUnsupportedDocumentType,
			Step: analysis.StepSubmit,
			Err:  fmt.Errorf("textract cannot analyze %s", req.ContentType),
		}
	}
	src := req.Document.Source
	if src == nil || src.Bucket == "" || src.Key == "" {
		return "", &analysis.Error{
			Kind: analysis.KindUnsupportedDocumentType,
			Step: analysis.StepSubmit,
			Err:  errors.New("textract requires the document to be stored in S3"),
		}
	}

	input := &textract.StartDocumentAnalysisInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(src.Bucket),
				Name:   aws.String(src.Key),
			},
		},
		FeatureTypes: b.config.FeatureTypes,
	}
	if req.Model != "" {
		input.JobTag = aws.String(req.Model)
	}

	out, err := b.client.StartDocumentAnalysis(ctx, input)
	if err != nil {
		return "", apiError(ctx, analysis.KindSubmissionFailed, analysis.StepSubmit, err)
	}

	jobID := aws.ToString(out.JobId)
	if jobID == "" {
		return "", &analysis.Error{
			Kind: analysis.KindProtocolViolation,
			Step: analysis.StepSubmit,
			Err:  errors.New("textract returned no job id"),
		}
	}

	b.logger.Debug("Textract job started",
		logger.String("jobId", jobID),
		logger.String("object", src.String()),
	)
	return analysis.Handle(jobID), nil
}

// Inspect reads the job status; once the job finished, every result page is
// fetched and folded into a single analysis result.
func (b *Backend) Inspect(ctx context.Context, handle analysis.Handle, _ string) (*analysis.Observation, error) {
	out, err := b.client.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
		JobId:      aws.String(handle.String()),
		MaxResults: aws.Int32(1000),
	})
	if err != nil {
		return nil, apiError(ctx, analysis.KindPollingTransportFailed, analysis.StepPoll, err)
	}

	rawStatus := string(out.JobStatus)
	summary, _ := json.Marshal(map[string]string{
		"jobId":         handle.String(),
		"status":        rawStatus,
		"statusMessage": aws.ToString(out.StatusMessage),
	})
	obs := &analysis.Observation{
		Status:    analysis.ParseStatus(rawStatus),
		RawStatus: rawStatus,
		Raw:       summary,
	}

	switch out.JobStatus {
	case types.JobStatusFailed:
		obs.Error, _ = json.Marshal(map[string]string{
			"code":    string(out.JobStatus),
			"message": aws.ToString(out.StatusMessage),
		})
		return obs, nil
	case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
		obs.Status = analysis.StatusSucceeded
	default:
		return obs, nil
	}

	blocks := out.Blocks
	next := out.NextToken
	for next != nil {
		page, err := b.client.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:      aws.String(handle.String()),
			MaxResults: aws.Int32(1000),
			NextToken:  next,
		})
		if err != nil {
			return nil, apiError(ctx, analysis.KindPollingTransportFailed, analysis.StepPoll, err)
		}
		blocks = append(blocks, page.Blocks...)
		next = page.NextToken
	}

	result, err := b.buildResult(out, blocks)
	if err != nil {
		return nil, &analysis.Error{Kind: analysis.KindProtocolViolation, Step: analysis.StepPoll, Err: err}
	}
	obs.Result = result
	return obs, nil
}

// apiError classifies an SDK error, keeping the HTTP status and the service
// error code when the SDK exposes them.
func apiError(ctx context.Context, kind analysis.Kind, step analysis.Step, err error) *analysis.Error {
	if ctx.Err() != nil {
		return &analysis.Error{Kind: analysis.KindCancelled, Step: step, Err: err}
	}

	ae := &analysis.Error{Kind: kind, Step: step, Err: err}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		ae.StatusCode = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ae.Body = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	}
	return ae
}

var _ analysis.Backend = (*Backend)(nil)
