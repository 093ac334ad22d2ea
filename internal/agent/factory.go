// Package agent assembles the analysis client from configuration.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-analyzer/config"
	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/agent/analysis/docintel"
	"github.com/feichai0017/document-analyzer/internal/agent/analysis/textract"
	"github.com/feichai0017/document-analyzer/internal/credentials"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

// NewAnalyzer builds the client for the backend named by cfg.Analyzer.Backend.
func NewAnalyzer(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...analysis.ClientOption) (*analysis.Client, error) {
	backend, tokens, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if tokens != nil {
		opts = append([]analysis.ClientOption{analysis.WithTokenProvider(tokens)}, opts...)
	}

	client, err := analysis.NewClient(backend, analysis.Config{
		ProjectName:  cfg.Analyzer.ProjectName,
		PollInterval: cfg.Analyzer.PollInterval,
		MaxAttempts:  cfg.Analyzer.MaxAttempts,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}

	log.Info("Analyzer ready",
		logger.String("backend", cfg.Analyzer.Backend),
		logger.String("project", client.Config().ProjectName),
		logger.Duration("pollInterval", client.Config().PollInterval),
		logger.Int("maxAttempts", client.Config().MaxAttempts),
	)
	return client, nil
}

func newBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (analysis.Backend, analysis.TokenProvider, error) {
	switch cfg.Analyzer.Backend {
	case config.BackendDocIntel:
		backend, err := docintel.New(docintel.Config{
			Endpoint:   cfg.Analyzer.Endpoint,
			APIVersion: cfg.Analyzer.APIVersion,
			HTTPClient: &http.Client{Timeout: cfg.Analyzer.RequestTimeout},
		})
		if err != nil {
			return nil, nil, err
		}
		tokens, err := credentials.New(ctx, credentials.Config{
			TenantID:     cfg.Credentials.TenantID,
			ClientID:     cfg.Credentials.ClientID,
			ClientSecret: cfg.Credentials.ClientSecret,
			TokenURL:     cfg.Credentials.TokenURL,
			Scope:        cfg.Credentials.Scope,
			AccessToken:  cfg.Credentials.AccessToken,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure credentials: %w", err)
		}
		return backend, tokens, nil

	case config.BackendTextract:
		features, err := FeatureTypes(cfg.Textract.FeatureTypes)
		if err != nil {
			return nil, nil, err
		}
		region := cfg.Textract.Region
		if region == "" {
			region = cfg.Storage.S3.Region
		}
		backend, err := textract.New(ctx, &textract.Config{
			Region:        region,
			AccessKey:     cfg.Textract.AccessKey,
			SecretKey:     cfg.Textract.SecretKey,
			MinConfidence: cfg.Textract.MinConfidence,
			FeatureTypes:  features,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create textract backend: %w", err)
		}
		return backend, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported analyzer backend: %q", cfg.Analyzer.Backend)
}

// FeatureTypes parses Textract feature names such as "tables" or "FORMS".
func FeatureTypes(names []string) ([]types.FeatureType, error) {
	known := types.FeatureType("").Values()
	out := make([]types.FeatureType, 0, len(names))
	for _, name := range names {
		ft := types.FeatureType(strings.ToUpper(strings.TrimSpace(name)))
		if !slices.Contains(known, ft) {
			return nil, fmt.Errorf("unknown textract feature type: %q", name)
		}
		out = append(out, ft)
	}
	return out, nil
}
