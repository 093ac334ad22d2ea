package config

import (
	"fmt"
	"time"
)

const (
	BackendDocIntel = "docintel"
	BackendTextract = "textract"
)

// AnalyzerConfig selects and configures the analysis backend.
type AnalyzerConfig struct {
	Backend        string        `yaml:"backend"`
	Endpoint       string        `yaml:"endpoint"`
	ProjectName    string        `yaml:"projectName"`
	APIVersion     string        `yaml:"apiVersion"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

func (c *AnalyzerConfig) applyEnv() error {
	envString("ANALYZER_BACKEND", &c.Backend)
	envString("CONTENT_UNDERSTANDING_ENDPOINT", &c.Endpoint)
	envString("CONTENT_UNDERSTANDING_PROJECT", &c.ProjectName)
	envString("CONTENT_UNDERSTANDING_API_VERSION", &c.APIVersion)
	return firstErr(
		envDuration("ANALYZER_POLL_INTERVAL", &c.PollInterval),
		envInt("ANALYZER_MAX_ATTEMPTS", &c.MaxAttempts),
		envDuration("ANALYZER_REQUEST_TIMEOUT", &c.RequestTimeout),
	)
}

func (c *AnalyzerConfig) validate() error {
	switch c.Backend {
	case BackendDocIntel:
		if c.Endpoint == "" {
			return fmt.Errorf("CONTENT_UNDERSTANDING_ENDPOINT environment variable is not set")
		}
	case BackendTextract:
	default:
		return fmt.Errorf("unsupported analyzer backend: %q", c.Backend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("analyzer poll interval must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("analyzer max attempts must be positive")
	}
	return nil
}

// CredentialsConfig configures bearer token acquisition.
type CredentialsConfig struct {
	TenantID     string `yaml:"tenantId"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	TokenURL     string `yaml:"tokenUrl"`
	Scope        string `yaml:"scope"`
	AccessToken  string `yaml:"accessToken"`
}

func (c *CredentialsConfig) applyEnv() {
	envString("AZURE_TENANT_ID", &c.TenantID)
	envString("AZURE_CLIENT_ID", &c.ClientID)
	envString("AZURE_CLIENT_SECRET", &c.ClientSecret)
	envString("AZURE_TOKEN_URL", &c.TokenURL)
	envString("ANALYZER_SCOPE", &c.Scope)
	envString("ANALYZER_ACCESS_TOKEN", &c.AccessToken)
}

// TextractConfig configures the Textract backend.
type TextractConfig struct {
	Region        string   `yaml:"region"`
	AccessKey     string   `yaml:"accessKey"`
	SecretKey     string   `yaml:"secretKey"`
	MinConfidence float32  `yaml:"minConfidence"`
	FeatureTypes  []string `yaml:"featureTypes"`
}

func (c *TextractConfig) applyEnv() error {
	envString("AWS_REGION", &c.Region)
	envString("AWS_ACCESS_KEY", &c.AccessKey)
	envString("AWS_SECRET_KEY", &c.SecretKey)
	envList("TEXTRACT_FEATURES", &c.FeatureTypes)
	return envFloat32("TEXTRACT_MIN_CONFIDENCE", &c.MinConfidence)
}
