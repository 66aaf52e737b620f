package notionintegration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studyhub/connector/pkg/domain"
)

type NotionConnectionTester struct {
	client *NotionClient
}

func NewNotionConnectionTester(client *NotionClient) *NotionConnectionTester {
	return &NotionConnectionTester{
		client: client,
	}
}

// TestConnection checks that the stored token is still accepted by Notion.
func (c *NotionConnectionTester) TestConnection(ctx context.Context, accessToken domain.SecretToken) (bool, error) {
	if accessToken.IsEmpty() {
		return false, domain.ErrNotConnected
	}

	respBody, err := c.client.makeRequest(ctx, accessToken, "GET", "/users/me", nil)
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Notion: %w", err)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &user); err != nil {
		return false, fmt.Errorf("failed to parse user response: %w", err)
	}

	if user.ID == "" {
		return false, fmt.Errorf("notion API returned invalid user data")
	}

	return true, nil
}
