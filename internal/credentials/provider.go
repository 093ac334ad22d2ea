// Package credentials supplies bearer tokens for the analysis service.
//
// Tokens come from an oauth2.TokenSource wrapped in oauth2.ReuseTokenSource,
// so one Provider can be shared by concurrent analyses and only refreshes
// when the cached token is about to expire.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CognitiveServicesScope is the audience of the analysis service.
const CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

const tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL overrides the tenant token endpoint.
	TokenURL string
	Scope    string
	// AccessToken, when set, is used as is and never refreshed.
	AccessToken string
}

// Provider adapts an oauth2.TokenSource to analysis.TokenProvider.
type Provider struct {
	source oauth2.TokenSource
}

// New picks a static token when one is configured, otherwise the client
// credentials grant.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.AccessToken != "" {
		return NewStatic(cfg.AccessToken), nil
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required without a static access token")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.TenantID == "" {
			return nil, errors.New("tenant id is required to derive the token url")
		}
		tokenURL = fmt.Sprintf(tokenURLFormat, cfg.TenantID)
	}
	scope := cfg.Scope
	if scope == "" {
		scope = CognitiveServicesScope
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return FromTokenSource(cc.TokenSource(ctx)), nil
}

// NewStatic always returns token.
func NewStatic(token string) *Provider {
	return &Provider{source: oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})}
}

// FromTokenSource caches tokens from ts until they expire.
func FromTokenSource(ts oauth2.TokenSource) *Provider {
	return &Provider{source: oauth2.ReuseTokenSource(nil, ts)}
}

// Token returns a valid access token.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to acquire access token: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", errors.New("token source returned an empty access token")
	}
	return tok.AccessToken, nil
}
