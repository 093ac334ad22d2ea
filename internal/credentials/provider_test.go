package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestStaticToken(t *testing.T) {
	p, err := New(context.Background(), Config{AccessToken: "static"})
	require.NoError(t, err)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", tok)
}

func TestNewRequiresClientCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{TenantID: "t"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	assert.Error(t, err)
}

func TestClientCredentialsAreCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "id", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		assert.Equal(t, CognitiveServicesScope, r.Form.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "issued", tok)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), Config{ClientID: "id", ClientSecret: "bad", TokenURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Token(context.Background())
	assert.Error(t, err)
}

func TestEmptyTokenRejected(t *testing.T) {
	p := FromTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: " "}))

	_, err := p.Token(context.Background())
	assert.Error(t, err)
}

func TestTokenHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStatic("x").Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
