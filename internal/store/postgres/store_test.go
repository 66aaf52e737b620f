package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/studyhub/connector/internal/testcontainers"
	"github.com/studyhub/connector/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, Opts{DSN: testcontainers.PostgresDSN(t), TablePrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func tokenSet(accessToken, workspaceID string) domain.TokenSet {
	return domain.TokenSet{
		AccessToken:   domain.NewSecretToken(accessToken),
		TokenType:     "bearer",
		WorkspaceID:   workspaceID,
		WorkspaceName: "Workspace " + workspaceID,
		Owner:         domain.ConnectionOwner{Type: "user", ID: "notion-user", Email: "ada@example.com"},
		Raw:           []byte(fmt.Sprintf(`{"access_token":%q,"workspace_id":%q}`, accessToken, workspaceID)),
	}
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), Opts{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStore_Integration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("token is absent before the first grant", func(t *testing.T) {
		_, err := s.GetAccessToken(ctx, "user-absent")
		assert.ErrorIs(t, err, domain.ErrNotConnected)
	})

	t.Run("upsert keeps a single row per workspace", func(t *testing.T) {
		first, err := s.SaveConnection(ctx, "user-1", tokenSet("first", "wsA"))
		require.NoError(t, err)

		second, err := s.SaveConnection(ctx, "user-1", tokenSet("tok123", "wsA"))
		require.NoError(t, err)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		connections, err := s.ListConnections(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, connections, 1)
		assert.Equal(t, "tok123", connections[0].AccessToken.Value())
		assert.Equal(t, "ada@example.com", connections[0].Owner.Email)
		assert.JSONEq(t, `{"access_token":"[REDACTED]","workspace_id":"wsA"}`, string(connections[0].RawResponse))

		token, err := s.GetAccessToken(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "tok123", token.Value())
	})

	t.Run("discovery status and resources", func(t *testing.T) {
		require.NoError(t, s.SetDiscoveryStatus(ctx, "user-1", "wsA", domain.DiscoveryStatusDiscovered))

		conn, err := s.GetConnection(ctx, "user-1", "wsA")
		require.NoError(t, err)
		assert.Equal(t, domain.DiscoveryStatusDiscovered, conn.DiscoveryStatus)

		resources := []domain.DiscoveredResource{
			{WorkspaceID: "wsA", ResourceID: "p1", Name: "Biology"},
			{WorkspaceID: "wsA", ResourceID: "p2"},
		}
		require.NoError(t, s.SaveDiscoveredResources(ctx, "user-1", resources))
		require.NoError(t, s.SaveDiscoveredResources(ctx, "user-1", resources))

		listed, err := s.ListDiscoveredResources(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, "Biology", listed[0].Name)
		assert.Equal(t, domain.UntitledResourceName, listed[1].Name)
	})

	t.Run("concurrent upserts", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.SaveConnection(ctx, "user-2", tokenSet(fmt.Sprintf("tok-%d", i), "wsB"))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		connections, err := s.ListConnections(ctx, "user-2")
		require.NoError(t, err)
		assert.Len(t, connections, 1)
	})

	t.Run("delete removes connections and resources", func(t *testing.T) {
		deleted, err := s.DeleteConnections(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = s.GetAccessToken(ctx, "user-1")
		assert.ErrorIs(t, err, domain.ErrNotConnected)

		resources, err := s.ListDiscoveredResources(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, resources)

		err = s.SetDiscoveryStatus(ctx, "user-1", "wsA", domain.DiscoveryStatusDegraded)
		assert.ErrorIs(t, err, domain.ErrNotConnected)
	})
}
