package oauth

import (
	"net/url"
	"testing"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorizationURL(t *testing.T) {
	tests := []struct {
		name        string
		config      AuthorizationConfig
		state       string
		expectState bool
	}{
		{
			name: "plain values",
			config: AuthorizationConfig{
				AuthURL:     AuthorizeURL(DefaultProviderBaseURL),
				ClientID:    "client-123",
				Scope:       "mcp:read mcp:write",
				RedirectURL: "http://localhost:3000/oauth/callback",
			},
			state:       "state-abc",
			expectState: true,
		},
		{
			name: "values needing encoding",
			config: AuthorizationConfig{
				AuthURL:     "https://provider.example/v1/oauth/authorize",
				ClientID:    "client id&x=1",
				Scope:       "read:pages write",
				RedirectURL: "https://app.example/oauth/callback?next=/chat&tab=notion",
			},
			state:       "",
			expectState: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := BuildAuthorizationURL(tt.config, tt.state)
			require.NoError(t, err)

			parsed, err := url.Parse(raw)
			require.NoError(t, err)

			expectedBase, err := url.Parse(tt.config.AuthURL)
			require.NoError(t, err)

			assert.Equal(t, expectedBase.Host, parsed.Host)
			assert.Equal(t, expectedBase.Path, parsed.Path)

			query := parsed.Query()
			assert.Equal(t, []string{tt.config.ClientID}, query["client_id"])
			assert.Equal(t, []string{tt.config.Scope}, query["scope"])
			assert.Equal(t, []string{tt.config.RedirectURL}, query["redirect_uri"])
			assert.Equal(t, []string{"code"}, query["response_type"])
			assert.Equal(t, []string{"user"}, query["owner"])

			if tt.expectState {
				assert.Equal(t, tt.state, query.Get("state"))
			} else {
				assert.NotContains(t, query, "state")
			}
		})
	}
}

func TestBuildAuthorizationURL_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		config AuthorizationConfig
	}{
		{
			name: "missing client id",
			config: AuthorizationConfig{
				AuthURL:     AuthorizeURL(DefaultProviderBaseURL),
				RedirectURL: "http://localhost:3000/oauth/callback",
			},
		},
		{
			name: "missing redirect url",
			config: AuthorizationConfig{
				AuthURL:  AuthorizeURL(DefaultProviderBaseURL),
				ClientID: "client-123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAuthorizationURL(tt.config, "state")
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestEndpointHelpers(t *testing.T) {
	assert.Equal(t, "https://api.notion.com/v1/oauth/authorize", AuthorizeURL("https://api.notion.com/"))
	assert.Equal(t, "https://api.notion.com/v1/oauth/token", TokenURL("https://api.notion.com"))
}
