package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studyhub/connector/internal/store/sqlite"
	"github.com/studyhub/connector/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu       sync.Mutex
	pages    []domain.ListedResource
	err      error
	block    bool
	received []string
}

func (f *fakeLister) ListPages(ctx context.Context, token domain.SecretToken) ([]domain.ListedResource, error) {
	f.mu.Lock()
	f.received = append(f.received, token.Value())
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return f.pages, f.err
}

func (f *fakeLister) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func newConnectedStore(t *testing.T) (*sqlite.Store, domain.Connection) {
	t.Helper()

	ctx := context.Background()
	s, err := sqlite.Open(ctx, sqlite.MemoryPath, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	conn, err := s.SaveConnection(ctx, "user-1", domain.TokenSet{
		AccessToken: domain.NewSecretToken("tok123"),
		WorkspaceID: "wsA",
	})
	require.NoError(t, err)

	return s, conn
}

func TestAgent_Discover(t *testing.T) {
	ctx := context.Background()
	s, conn := newConnectedStore(t)

	lister := &fakeLister{pages: []domain.ListedResource{
		{ID: "p1", Object: "page", Name: "Biology", URL: "https://notion.so/p1"},
		{ID: "p2", Object: "page", Name: ""},
		{ID: "d1", Object: "database", Name: "Tasks"},
		{ID: "p3", Object: "page", Name: "Algebra"},
		{ID: "ds1", Object: "data_source", Name: "Reading list"},
	}}

	agent := NewAgent(AgentDependencies{Lister: lister, Store: s})

	resources, err := agent.Discover(ctx, "user-1", conn)
	require.NoError(t, err)
	require.Len(t, resources, 3)
	assert.Equal(t, []string{"tok123"}, lister.tokens())

	stored, err := s.ListDiscoveredResources(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 3)

	names := []string{}
	for _, resource := range stored {
		assert.Equal(t, "user-1", resource.UserID)
		assert.Equal(t, "wsA", resource.WorkspaceID)
		names = append(names, resource.Name)
	}
	assert.ElementsMatch(t, []string{"Biology", "Algebra", domain.UntitledResourceName}, names)

	saved, err := s.GetConnection(ctx, "user-1", "wsA")
	require.NoError(t, err)
	assert.Equal(t, domain.DiscoveryStatusDiscovered, saved.DiscoveryStatus)
}

func TestAgent_DiscoverDegraded(t *testing.T) {
	tests := []struct {
		name    string
		lister  *fakeLister
		timeout time.Duration
	}{
		{
			name:   "provider error",
			lister: &fakeLister{err: errors.New("notion API error (status 401)")},
		},
		{
			name:    "timeout",
			lister:  &fakeLister{block: true},
			timeout: 20 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, conn := newConnectedStore(t)

			agent := NewAgent(AgentDependencies{Lister: tt.lister, Store: s, Timeout: tt.timeout})

			resources, err := agent.Discover(ctx, "user-1", conn)
			assert.ErrorIs(t, err, domain.ErrDiscoveryDegraded)
			assert.Nil(t, resources)

			// The connection survives a failed discovery.
			token, err := s.GetAccessToken(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, "tok123", token.Value())

			saved, err := s.GetConnection(ctx, "user-1", "wsA")
			require.NoError(t, err)
			assert.Equal(t, domain.DiscoveryStatusDegraded, saved.DiscoveryStatus)
		})
	}
}

func TestAgent_Run(t *testing.T) {
	ctx := context.Background()
	s, _ := newConnectedStore(t)
	lister := &fakeLister{pages: []domain.ListedResource{{ID: "p1", Object: "page", Name: "Notes"}}}

	agent := NewAgent(AgentDependencies{Lister: lister, Store: s})

	require.NoError(t, agent.Run(ctx, domain.DiscoveryJob{UserID: "user-1", WorkspaceID: "wsA"}))
	assert.Equal(t, []string{"tok123"}, lister.tokens())

	err := agent.Run(ctx, domain.DiscoveryJob{UserID: "user-2", WorkspaceID: "wsA"})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestResourcesFromListing(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	resources := ResourcesFromListing("wsA", []domain.ListedResource{
		{ID: "p1", Object: "page", Name: "Physics"},
		{ID: "", Object: "page", Name: "no id"},
		{ID: "db", Object: "database", Name: "Tasks"},
		{ID: "p2", Object: "page"},
	}, now)

	assert.Equal(t, []domain.DiscoveredResource{
		{WorkspaceID: "wsA", ResourceID: "p1", Name: "Physics", DiscoveredAt: now},
		{WorkspaceID: "wsA", ResourceID: "p2", Name: domain.UntitledResourceName, DiscoveredAt: now},
	}, resources)
}
