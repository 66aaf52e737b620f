package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), MemoryPath, "")
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
		BotID:         "bot-" + workspaceID,
		Owner:         domain.ConnectionOwner{Type: "user", ID: "notion-user", Email: "ada@example.com"},
		Raw:           []byte(fmt.Sprintf(`{"access_token":%q,"workspace_id":%q}`, accessToken, workspaceID)),
	}
}

func TestStore_GetAccessTokenBeforeAndAfterSave(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetAccessToken(ctx, "user-1")
	require.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = s.SaveConnection(ctx, "user-1", tokenSet("tok123", "wsA"))
	require.NoError(t, err)

	token, err := s.GetAccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token.Value())
}

func TestStore_SaveConnectionUpsertsPerWorkspace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.SaveConnection(ctx, "user-1", tokenSet("first", "wsA"))
	require.NoError(t, err)

	second, err := s.SaveConnection(ctx, "user-1", tokenSet("second", "wsA"))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	connections, err := s.ListConnections(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, connections, 1)

	conn := connections[0]
	assert.Equal(t, "wsA", conn.WorkspaceID)
	assert.Equal(t, "second", conn.AccessToken.Value())
	assert.Equal(t, "Workspace wsA", conn.WorkspaceName)
	assert.Equal(t, "ada@example.com", conn.Owner.Email)
	assert.Equal(t, domain.DiscoveryStatusPending, conn.DiscoveryStatus)
	assert.JSONEq(t, `{"access_token":"[REDACTED]","workspace_id":"wsA"}`, string(conn.RawResponse))
}

func TestStore_GetAccessTokenPrefersMostRecentConnection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.SaveConnection(ctx, "user-1", tokenSet("older", "wsA"))
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	_, err = s.SaveConnection(ctx, "user-1", tokenSet("newer", "wsB"))
	require.NoError(t, err)

	token, err := s.GetAccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "newer", token.Value())

	connections, err := s.ListConnections(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, connections, 2)
	assert.Equal(t, "wsB", connections[0].WorkspaceID)
}

func TestStore_SaveConnectionRejectsEmptyToken(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveConnection(context.Background(), "user-1", tokenSet("", "wsA"))
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestStore_GetConnection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetConnection(ctx, "user-1", "wsA")
	require.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = s.SaveConnection(ctx, "user-1", tokenSet("tok", "wsA"))
	require.NoError(t, err)

	conn, err := s.GetConnection(ctx, "user-1", "wsA")
	require.NoError(t, err)
	assert.Equal(t, "tok", conn.AccessToken.Value())
	assert.Equal(t, "bot-wsA", conn.BotID)
}

func TestStore_DiscoveryStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.SetDiscoveryStatus(ctx, "user-1", "wsA", domain.DiscoveryStatusDiscovered)
	require.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = s.SaveConnection(ctx, "user-1", tokenSet("tok", "wsA"))
	require.NoError(t, err)

	require.NoError(t, s.SetDiscoveryStatus(ctx, "user-1", "wsA", domain.DiscoveryStatusDegraded))

	conn, err := s.GetConnection(ctx, "user-1", "wsA")
	require.NoError(t, err)
	assert.Equal(t, domain.DiscoveryStatusDegraded, conn.DiscoveryStatus)

	// A new grant starts discovery over.
	_, err = s.SaveConnection(ctx, "user-1", tokenSet("tok2", "wsA"))
	require.NoError(t, err)

	conn, err = s.GetConnection(ctx, "user-1", "wsA")
	require.NoError(t, err)
	assert.Equal(t, domain.DiscoveryStatusPending, conn.DiscoveryStatus)
}

func TestStore_SaveDiscoveredResources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	resources := []domain.DiscoveredResource{
		{WorkspaceID: "wsA", ResourceID: "p1", Name: "Biology"},
		{WorkspaceID: "wsA", ResourceID: "p2", Name: ""},
		{WorkspaceID: "wsA", ResourceID: "p3", Name: "Algebra", URL: "https://notion.so/p3"},
	}

	require.NoError(t, s.SaveDiscoveredResources(ctx, "user-1", resources))
	// Running discovery again refreshes rows instead of duplicating them.
	require.NoError(t, s.SaveDiscoveredResources(ctx, "user-1", resources))

	listed, err := s.ListDiscoveredResources(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)

	names := make([]string, 0, len(listed))
	for _, resource := range listed {
		assert.Equal(t, "user-1", resource.UserID)
		names = append(names, resource.Name)
	}
	assert.Equal(t, []string{"Algebra", "Biology", domain.UntitledResourceName}, names)

	other, err := s.ListDiscoveredResources(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_DeleteConnections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SaveConnection(ctx, "user-1", tokenSet("a", "wsA"))
	require.NoError(t, err)
	_, err = s.SaveConnection(ctx, "user-1", tokenSet("b", "wsB"))
	require.NoError(t, err)
	_, err = s.SaveConnection(ctx, "user-2", tokenSet("c", "wsA"))
	require.NoError(t, err)
	require.NoError(t, s.SaveDiscoveredResources(ctx, "user-1", []domain.DiscoveredResource{{ResourceID: "p1", Name: "x"}}))

	deleted, err := s.DeleteConnections(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = s.GetAccessToken(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	resources, err := s.ListDiscoveredResources(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, resources)

	token, err := s.GetAccessToken(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "c", token.Value())
}

func TestStore_ConcurrentUpsertsLeaveOneRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SaveConnection(ctx, "user-1", tokenSet(fmt.Sprintf("tok-%d", i), "wsA"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	connections, err := s.ListConnections(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, connections, 1)
}

func TestStore_OpenFileWithPrefix(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "connector.db")

	s, err := Open(ctx, path, "study")
	require.NoError(t, err)

	_, err = s.SaveConnection(ctx, "user-1", tokenSet("tok", "wsA"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, "study")
	require.NoError(t, err)
	defer reopened.Close()

	token, err := reopened.GetAccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.Value())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ", "")
	assert.Error(t, err)
}
