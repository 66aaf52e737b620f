package managers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/studyhub/connector/internal/oauthstate"
	"github.com/studyhub/connector/pkg/domain"
	"github.com/studyhub/connector/pkg/oauth"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// TokenExchanger redeems the authorization code carried by a redirect URL.
type TokenExchanger interface {
	Exchange(ctx context.Context, redirectURL string) (*domain.TokenSet, error)
}

// AuthorizationRequest is what a user needs to start connecting a workspace.
type AuthorizationRequest struct {
	URL       string    `json:"authorization_url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CallbackResult is the outcome of the synchronous part of a connection
// attempt. State is Failed, Discovering, or DiscoveryDegraded when the
// discovery job could not be dispatched.
type CallbackResult struct {
	AttemptID     string
	UserID        string
	WorkspaceID   string
	WorkspaceName string
	State         domain.AttemptState
	DiscoveryErr  error
}

// StartupStatus reports whether an operator account is already connected.
type StartupStatus struct {
	Authorized    bool
	Authorization *AuthorizationRequest
}

type ConnectionManager struct {
	authConfig oauth.AuthorizationConfig
	exchanger  TokenExchanger
	store      domain.ConnectionStore
	states     domain.StateStore
	dispatcher domain.DiscoveryDispatcher
	stateTTL   time.Duration
	now        func() time.Time
}

type ConnectionManagerDependencies struct {
	AuthConfig oauth.AuthorizationConfig
	Exchanger  TokenExchanger
	Store      domain.ConnectionStore
	StateStore domain.StateStore
	Dispatcher domain.DiscoveryDispatcher
	StateTTL   time.Duration
}

func NewConnectionManager(deps ConnectionManagerDependencies) (*ConnectionManager, error) {
	if err := deps.AuthConfig.Validate(); err != nil {
		return nil, err
	}

	if deps.Exchanger == nil || deps.Store == nil || deps.StateStore == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("%w: connection manager is missing a dependency", domain.ErrConfiguration)
	}

	stateTTL := deps.StateTTL
	if stateTTL <= 0 {
		stateTTL = oauthstate.DefaultTTL
	}

	return &ConnectionManager{
		authConfig: deps.AuthConfig,
		exchanger:  deps.Exchanger,
		store:      deps.Store,
		states:     deps.StateStore,
		dispatcher: deps.Dispatcher,
		stateTTL:   stateTTL,
		now:        time.Now,
	}, nil
}

// StartAuthorization issues a state for userID and returns the provider URL
// the user must visit.
func (m *ConnectionManager) StartAuthorization(ctx context.Context, userID string) (AuthorizationRequest, error) {
	state, err := oauthstate.NewState(userID, m.now(), m.stateTTL)
	if err != nil {
		return AuthorizationRequest{}, err
	}

	authURL, err := oauth.BuildAuthorizationURL(m.authConfig, state.State)
	if err != nil {
		return AuthorizationRequest{}, err
	}

	if err := m.states.Save(ctx, state); err != nil {
		return AuthorizationRequest{}, fmt.Errorf("failed to save authorization state: %w", err)
	}

	log.Debug().Str("user_id", userID).Time("expires_at", state.ExpiresAt).Msg("Authorization started")

	return AuthorizationRequest{
		URL:       authURL,
		State:     state.State,
		ExpiresAt: state.ExpiresAt,
	}, nil
}

// HandleCallback resolves the user from the redirect's state and completes
// the attempt. The state is required because it is the only link between the
// redirect and a user, so a bare `?code=` redirect fails with
// ErrInvalidState. An unknown or reused state fails before any exchange.
// Callers that already know the user, such as the CLI, use
// CompleteAuthorization, which needs only the code.
func (m *ConnectionManager) HandleCallback(ctx context.Context, redirectURL string) (CallbackResult, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return CallbackResult{State: domain.AttemptStateFailed}, fmt.Errorf("%w: invalid redirect URL", domain.ErrMissingCode)
	}

	stateValue := parsed.Query().Get("state")
	if stateValue == "" {
		return CallbackResult{State: domain.AttemptStateFailed}, fmt.Errorf("%w: redirect carries no state", domain.ErrInvalidState)
	}

	state, err := m.states.Consume(ctx, stateValue)
	if err != nil {
		return CallbackResult{State: domain.AttemptStateFailed}, err
	}

	return m.CompleteAuthorization(ctx, state.UserID, redirectURL)
}

// CompleteAuthorization exchanges the code in redirectURL, stores the
// connection for userID and dispatches resource discovery. A dispatch failure
// leaves the connection in place and is reported through DiscoveryErr.
func (m *ConnectionManager) CompleteAuthorization(ctx context.Context, userID, redirectURL string) (CallbackResult, error) {
	result := CallbackResult{
		AttemptID: xid.New().String(),
		UserID:    userID,
		State:     domain.AttemptStateExchanging,
	}

	logger := log.With().Str("attempt_id", result.AttemptID).Str("user_id", userID).Logger()

	tokens, err := m.exchanger.Exchange(ctx, redirectURL)
	if err != nil {
		result.State = domain.AttemptStateFailed
		logger.Warn().Err(err).Msg("Token exchange failed")
		return result, err
	}

	conn, err := m.store.SaveConnection(ctx, userID, *tokens)
	if err != nil {
		result.State = domain.AttemptStateFailed
		logger.Error().Err(err).Msg("Failed to save connection")
		return result, err
	}

	result.State = domain.AttemptStateConnected
	result.WorkspaceID = conn.WorkspaceID
	result.WorkspaceName = conn.WorkspaceName

	logger.Info().
		Str("workspace_id", conn.WorkspaceID).
		Str("workspace_name", conn.WorkspaceName).
		Msg("Workspace connected")

	job := domain.DiscoveryJob{
		UserID:      userID,
		WorkspaceID: conn.WorkspaceID,
		AttemptID:   result.AttemptID,
	}

	if err := m.dispatcher.Dispatch(ctx, job); err != nil {
		result.State = domain.AttemptStateDiscoveryDegraded
		result.DiscoveryErr = fmt.Errorf("%w: %w", domain.ErrDiscoveryDegraded, err)
		logger.Warn().Err(err).Msg("Failed to dispatch resource discovery")

		if statusErr := m.store.SetDiscoveryStatus(ctx, userID, conn.WorkspaceID, domain.DiscoveryStatusDegraded); statusErr != nil {
			logger.Error().Err(statusErr).Msg("Failed to record degraded discovery status")
		}

		return result, nil
	}

	result.State = domain.AttemptStateDiscovering

	return result, nil
}

func (m *ConnectionManager) GetAccessToken(ctx context.Context, userID string) (domain.SecretToken, error) {
	return m.store.GetAccessToken(ctx, userID)
}

func (m *ConnectionManager) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	return m.store.ListConnections(ctx, userID)
}

func (m *ConnectionManager) ListResources(ctx context.Context, userID string) ([]domain.DiscoveredResource, error) {
	return m.store.ListDiscoveredResources(ctx, userID)
}

// Disconnect removes every connection and discovered resource of userID.
func (m *ConnectionManager) Disconnect(ctx context.Context, userID string) (int64, error) {
	deleted, err := m.store.DeleteConnections(ctx, userID)
	if err != nil {
		return 0, err
	}

	log.Info().Str("user_id", userID).Int64("connections", deleted).Msg("User disconnected")

	return deleted, nil
}

// CheckAuthorization reports whether userID already holds a token. When it
// does not, a fresh authorization request is issued for it.
func (m *ConnectionManager) CheckAuthorization(ctx context.Context, userID string) (StartupStatus, error) {
	_, err := m.store.GetAccessToken(ctx, userID)
	if err == nil {
		return StartupStatus{Authorized: true}, nil
	}

	if !errors.Is(err, domain.ErrNotConnected) {
		return StartupStatus{}, err
	}

	request, err := m.StartAuthorization(ctx, userID)
	if err != nil {
		return StartupStatus{}, err
	}

	return StartupStatus{Authorization: &request}, nil
}
