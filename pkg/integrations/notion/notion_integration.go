package notionintegration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/studyhub/connector/pkg/domain"

	"golang.org/x/oauth2"
)

const (
	NotionAPIVersion = "2022-06-28"
	NotionAPIBaseURL = "https://api.notion.com"

	maxResponseSize = 8 << 20
)

// APIError is a non-2xx answer from the Notion API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Notion API error (status %d): %s", e.StatusCode, e.Body)
}

type ClientConfig struct {
	BaseURL       string
	NotionVersion string
}

// NotionClient issues Notion API calls on behalf of a connection's token.
type NotionClient struct {
	config     ClientConfig
	httpClient *http.Client
}

type ClientOption func(*NotionClient)

// WithHTTPClient sets the base client that carries requests. Bearer
// authentication is layered on top of its transport.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *NotionClient) {
		c.httpClient = httpClient
	}
}

func NewNotionClient(config ClientConfig, options ...ClientOption) *NotionClient {
	if config.BaseURL == "" {
		config.BaseURL = NotionAPIBaseURL
	}

	if config.NotionVersion == "" {
		config.NotionVersion = NotionAPIVersion
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	client := &NotionClient{
		config:     config,
		httpClient: &http.Client{},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

func (c *NotionClient) authorizedClient(ctx context.Context, accessToken domain.SecretToken) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken.Value(),
		TokenType:   "Bearer",
	}))
}

func (c *NotionClient) makeRequest(ctx context.Context, accessToken domain.SecretToken, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+"/v1"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.config.NotionVersion)

	resp, err := c.authorizedClient(ctx, accessToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
