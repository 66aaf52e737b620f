// Package discovery enumerates the pages a new connection can reach and
// records them for the chat UI.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout = 10 * time.Second

	pageObject = "page"

	// statusWriteTimeout bounds the degraded status write, which may run after
	// the discovery context already expired.
	statusWriteTimeout = 5 * time.Second
)

// JobRunner runs one discovery job to completion.
type JobRunner interface {
	Run(ctx context.Context, job domain.DiscoveryJob) error
}

type Agent struct {
	lister  domain.ResourceLister
	store   domain.ConnectionStore
	timeout time.Duration
	now     func() time.Time
}

type AgentDependencies struct {
	Lister  domain.ResourceLister
	Store   domain.ConnectionStore
	Timeout time.Duration
}

var _ JobRunner = (*Agent)(nil)

func NewAgent(deps AgentDependencies) *Agent {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Agent{
		lister:  deps.Lister,
		store:   deps.Store,
		timeout: timeout,
		now:     time.Now,
	}
}

// Run loads the connection named by job and discovers its resources. The
// token is read from the store so it never travels with the job.
func (a *Agent) Run(ctx context.Context, job domain.DiscoveryJob) error {
	conn, err := a.store.GetConnection(ctx, job.UserID, job.WorkspaceID)
	if err != nil {
		return fmt.Errorf("failed to load connection for discovery: %w", err)
	}

	resources, err := a.Discover(ctx, job.UserID, conn)
	if err != nil {
		return err
	}

	log.Info().
		Str("attempt_id", job.AttemptID).
		Str("user_id", job.UserID).
		Str("workspace_id", job.WorkspaceID).
		Int("resources", len(resources)).
		Msg("Resource discovery completed")

	return nil
}

// Discover lists the pages visible to conn and stores them for userID. Any
// failure marks the connection degraded and returns ErrDiscoveryDegraded;
// the connection itself stays valid.
func (a *Agent) Discover(ctx context.Context, userID string, conn domain.Connection) ([]domain.DiscoveredResource, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	listed, err := a.lister.ListPages(ctx, conn.AccessToken)
	if err != nil {
		return nil, a.degrade(ctx, userID, conn.WorkspaceID, fmt.Errorf("list pages: %w", err))
	}

	resources := ResourcesFromListing(conn.WorkspaceID, listed, a.now())

	if err := a.store.SaveDiscoveredResources(ctx, userID, resources); err != nil {
		return nil, a.degrade(ctx, userID, conn.WorkspaceID, err)
	}

	if err := a.store.SetDiscoveryStatus(ctx, userID, conn.WorkspaceID, domain.DiscoveryStatusDiscovered); err != nil {
		return nil, a.degrade(ctx, userID, conn.WorkspaceID, err)
	}

	return resources, nil
}

func (a *Agent) degrade(ctx context.Context, userID, workspaceID string, cause error) error {
	log.Warn().
		Err(cause).
		Str("user_id", userID).
		Str("workspace_id", workspaceID).
		Msg("Resource discovery degraded")

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := a.store.SetDiscoveryStatus(statusCtx, userID, workspaceID, domain.DiscoveryStatusDegraded); err != nil && !errors.Is(err, domain.ErrNotConnected) {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to record degraded discovery status")
	}

	return fmt.Errorf("%w: %w", domain.ErrDiscoveryDegraded, cause)
}

// ResourcesFromListing keeps the page objects of a listing and names them.
func ResourcesFromListing(workspaceID string, listed []domain.ListedResource, now time.Time) []domain.DiscoveredResource {
	resources := make([]domain.DiscoveredResource, 0, len(listed))

	for _, item := range listed {
		if item.Object != pageObject || item.ID == "" {
			continue
		}

		name := item.Name
		if name == "" {
			name = domain.UntitledResourceName
		}

		resources = append(resources, domain.DiscoveredResource{
			WorkspaceID:  workspaceID,
			ResourceID:   item.ID,
			Name:         name,
			URL:          item.URL,
			DiscoveredAt: now.UTC(),
		})
	}

	return resources
}
