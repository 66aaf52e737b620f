package store

import (
	"testing"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestRedactRawResponse(t *testing.T) {
	raw := []byte(`{"access_token":"secret-a","refresh_token":"secret-r","workspace_id":"wsA","owner":{"type":"user"}}`)

	redacted := RedactRawResponse(raw)
	require.NotNil(t, redacted)

	assert.Equal(t, redactedValue, gjson.GetBytes(redacted, "access_token").String())
	assert.Equal(t, redactedValue, gjson.GetBytes(redacted, "refresh_token").String())
	assert.Equal(t, "wsA", gjson.GetBytes(redacted, "workspace_id").String())
	assert.Equal(t, "user", gjson.GetBytes(redacted, "owner.type").String())
	assert.NotContains(t, string(redacted), "secret-")

	assert.Contains(t, string(raw), "secret-a", "input must not be modified")
}

func TestRedactRawResponse_InvalidInput(t *testing.T) {
	assert.Nil(t, RedactRawResponse(nil))
	assert.Nil(t, RedactRawResponse([]byte("not json")))
}

func TestConnectionFromTokens(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	conn := ConnectionFromTokens("user-1", domain.TokenSet{
		AccessToken:   domain.NewSecretToken("tok"),
		TokenType:     "bearer",
		WorkspaceID:   "wsA",
		WorkspaceName: "Notes",
		Raw:           []byte(`{"access_token":"tok"}`),
	}, now)

	assert.Equal(t, "user-1", conn.UserID)
	assert.Equal(t, "wsA", conn.WorkspaceID)
	assert.Equal(t, "tok", conn.AccessToken.Value())
	assert.Equal(t, domain.DiscoveryStatusPending, conn.DiscoveryStatus)
	assert.Equal(t, now, conn.UpdatedAt)
	assert.JSONEq(t, `{"access_token":"[REDACTED]"}`, string(conn.RawResponse))
}

func TestNormalizeResources(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	resources := NormalizeResources("user-1", []domain.DiscoveredResource{
		{ResourceID: "p1", Name: "First"},
		{ResourceID: "", Name: "dropped"},
		{ResourceID: "p2", Name: "  "},
		{ResourceID: "p1", Name: "First renamed", UserID: "someone-else"},
	}, now)

	assert.Equal(t, []domain.DiscoveredResource{
		{UserID: "user-1", ResourceID: "p1", Name: "First renamed", DiscoveredAt: now},
		{UserID: "user-1", ResourceID: "p2", Name: domain.UntitledResourceName, DiscoveredAt: now},
	}, resources)
}

func TestValidateConnection(t *testing.T) {
	assert.ErrorIs(t, ValidateConnection(domain.Connection{AccessToken: domain.NewSecretToken("t")}), domain.ErrPersistence)
	assert.ErrorIs(t, ValidateConnection(domain.Connection{UserID: "u"}), domain.ErrPersistence)
	assert.NoError(t, ValidateConnection(domain.Connection{UserID: "u", AccessToken: domain.NewSecretToken("t")}))
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "connections", TableName("", "connections"))
	assert.Equal(t, "study_connections", TableName("study", "connections"))
}
