package cli

import (
	"errors"
	"fmt"
	"testing"

	notionintegration "github.com/studyhub/connector/pkg/integrations/notion"

	"github.com/stretchr/testify/assert"
)

func TestDescribeTokenCheck(t *testing.T) {
	tests := []struct {
		name     string
		valid    bool
		err      error
		expected string
	}{
		{
			name:     "accepted",
			valid:    true,
			expected: "valid",
		},
		{
			name:     "provider refused the token",
			err:      fmt.Errorf("failed to authenticate with Notion: %w", &notionintegration.APIError{StatusCode: 401}),
			expected: "rejected",
		},
		{
			name:     "network failure",
			err:      fmt.Errorf("failed to authenticate with Notion: %w", errors.New("dial tcp: connection refused")),
			expected: "unknown",
		},
		{
			name:     "unexpected response body",
			err:      errors.New("notion API returned invalid user data"),
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, describeTokenCheck(tt.valid, tt.err))
		})
	}
}
