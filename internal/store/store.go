// Package store holds the pieces shared by the ConnectionStore backends.
package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const redactedValue = "[REDACTED]"

var secretResponseFields = []string{"access_token", "refresh_token"}

// RedactRawResponse returns a copy of a provider token response with every
// credential value replaced, suitable for the diagnostic column. Invalid JSON
// is dropped rather than stored.
func RedactRawResponse(raw []byte) []byte {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil
	}

	out := append([]byte(nil), raw...)
	for _, field := range secretResponseFields {
		if !gjson.GetBytes(out, field).Exists() {
			continue
		}

		redacted, err := sjson.SetBytes(out, field, redactedValue)
		if err != nil {
			return nil
		}
		out = redacted
	}

	return out
}

// ConnectionFromTokens maps a token exchange result to the row a store upserts.
func ConnectionFromTokens(userID string, tokens domain.TokenSet, now time.Time) domain.Connection {
	now = now.UTC()

	return domain.Connection{
		UserID:               userID,
		WorkspaceID:          tokens.WorkspaceID,
		AccessToken:          tokens.AccessToken,
		RefreshToken:         tokens.RefreshToken,
		TokenType:            tokens.TokenType,
		BotID:                tokens.BotID,
		WorkspaceName:        tokens.WorkspaceName,
		WorkspaceIcon:        tokens.WorkspaceIcon,
		Owner:                tokens.Owner,
		DuplicatedTemplateID: tokens.DuplicatedTemplateID,
		RequestID:            tokens.RequestID,
		RawResponse:          RedactRawResponse(tokens.Raw),
		DiscoveryStatus:      domain.DiscoveryStatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// ValidateConnection rejects rows that would break the store invariants.
func ValidateConnection(conn domain.Connection) error {
	if strings.TrimSpace(conn.UserID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrPersistence)
	}

	if conn.AccessToken.IsEmpty() {
		return fmt.Errorf("%w: access token is required", domain.ErrPersistence)
	}

	return nil
}

// NormalizeResources attributes resources to userID and drops entries without
// a provider id. Later duplicates of the same id win.
func NormalizeResources(userID string, resources []domain.DiscoveredResource, now time.Time) []domain.DiscoveredResource {
	indexByID := make(map[string]int, len(resources))
	normalized := make([]domain.DiscoveredResource, 0, len(resources))

	for _, resource := range resources {
		if resource.ResourceID == "" {
			continue
		}

		resource.UserID = userID
		if strings.TrimSpace(resource.Name) == "" {
			resource.Name = domain.UntitledResourceName
		}
		if resource.DiscoveredAt.IsZero() {
			resource.DiscoveredAt = now
		}
		resource.DiscoveredAt = resource.DiscoveredAt.UTC()

		if i, ok := indexByID[resource.ResourceID]; ok {
			normalized[i] = resource
			continue
		}

		indexByID[resource.ResourceID] = len(normalized)
		normalized = append(normalized, resource)
	}

	return normalized
}

// TableName applies an optional prefix the way all backends do.
func TableName(prefix, name string) string {
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, name)
	}
	return name
}
