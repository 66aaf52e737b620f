package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/rs/zerolog/log"
)

const (
	DefaultExchangeTimeout = 10 * time.Second

	maxTokenResponseSize = 1 << 20
)

type ExchangeConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

func (c ExchangeConfig) Validate() error {
	var missing []string

	if strings.TrimSpace(c.TokenURL) == "" {
		missing = append(missing, "token url")
	}

	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}

	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "client secret")
	}

	if strings.TrimSpace(c.RedirectURL) == "" {
		missing = append(missing, "redirect url")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	return nil
}

type ExchangeOption func(*TokenExchangeClient)

func WithHTTPClient(httpClient *http.Client) ExchangeOption {
	return func(c *TokenExchangeClient) {
		c.httpClient = httpClient
	}
}

// TokenExchangeClient trades a one-time authorization code for tokens. It
// never retries: codes are single-use, so a failed exchange ends the attempt.
type TokenExchangeClient struct {
	config     ExchangeConfig
	httpClient *http.Client
}

func NewTokenExchangeClient(config ExchangeConfig, options ...ExchangeOption) (*TokenExchangeClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultExchangeTimeout
	}

	client := &TokenExchangeClient{
		config:     config,
		httpClient: &http.Client{},
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

type exchangeRequest struct {
	GrantType   string `json:"grant_type"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken          string `json:"access_token"`
	TokenType            string `json:"token_type"`
	RefreshToken         string `json:"refresh_token"`
	ExpiresIn            int64  `json:"expires_in"`
	Scope                string `json:"scope"`
	BotID                string `json:"bot_id"`
	WorkspaceID          string `json:"workspace_id"`
	WorkspaceName        string `json:"workspace_name"`
	WorkspaceIcon        string `json:"workspace_icon"`
	DuplicatedTemplateID string `json:"duplicated_template_id"`
	RequestID            string `json:"request_id"`
	Owner                struct {
		Type string `json:"type"`
		User *struct {
			Object    string `json:"object"`
			ID        string `json:"id"`
			Name      string `json:"name"`
			AvatarURL string `json:"avatar_url"`
			Type      string `json:"type"`
			Person    *struct {
				Email string `json:"email"`
			} `json:"person"`
		} `json:"user"`
	} `json:"owner"`
}

// AuthorizationCode extracts the code from the URL the provider redirected to.
func AuthorizationCode(redirectURL string) (string, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid redirect URL: %v", domain.ErrMissingCode, err)
	}

	query := parsed.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		return "", fmt.Errorf("%w: provider returned %s", domain.ErrMissingCode, providerErr)
	}

	code := query.Get("code")
	if code == "" {
		return "", domain.ErrMissingCode
	}

	return code, nil
}

// Exchange takes the full callback URL, validates it carries a code and posts
// the code to the token endpoint.
func (c *TokenExchangeClient) Exchange(ctx context.Context, redirectURL string) (*domain.TokenSet, error) {
	code, err := AuthorizationCode(redirectURL)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(exchangeRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: c.config.RedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("token_url", c.config.TokenURL).Msg("Exchanging authorization code for tokens")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExchangeRejectedError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, &domain.ExchangeRejectedError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.ExchangeRejectedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return parseTokenResponse(respBody)
}

func parseTokenResponse(body []byte) (*domain.TokenSet, error) {
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.ExchangeRejectedError{Err: fmt.Errorf("failed to parse token response: %w", err)}
	}

	if parsed.AccessToken == "" {
		return nil, &domain.ExchangeRejectedError{Err: fmt.Errorf("token response has no access_token")}
	}

	tokens := &domain.TokenSet{
		AccessToken:          domain.NewSecretToken(parsed.AccessToken),
		RefreshToken:         domain.NewSecretToken(parsed.RefreshToken),
		TokenType:            parsed.TokenType,
		ExpiresIn:            parsed.ExpiresIn,
		Scope:                parsed.Scope,
		BotID:                parsed.BotID,
		WorkspaceID:          parsed.WorkspaceID,
		WorkspaceName:        parsed.WorkspaceName,
		WorkspaceIcon:        parsed.WorkspaceIcon,
		DuplicatedTemplateID: parsed.DuplicatedTemplateID,
		RequestID:            parsed.RequestID,
		Owner: domain.ConnectionOwner{
			Type: parsed.Owner.Type,
		},
		Raw: body,
	}

	if user := parsed.Owner.User; user != nil {
		tokens.Owner.ID = user.ID
		tokens.Owner.Name = user.Name
		tokens.Owner.AvatarURL = user.AvatarURL
		tokens.Owner.UserType = user.Type

		if user.Person != nil {
			tokens.Owner.Email = user.Person.Email
		}
	}

	return tokens, nil
}
