package domain

import (
	"context"
	"time"
)

type DiscoveryStatus string

const (
	DiscoveryStatusPending    DiscoveryStatus = "pending"
	DiscoveryStatusDiscovered DiscoveryStatus = "discovered"
	DiscoveryStatusDegraded   DiscoveryStatus = "degraded"
)

// UntitledResourceName is used when the provider returns a resource without a title.
const UntitledResourceName = "Untitled"

type ConnectionOwner struct {
	Type      string `json:"type,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	UserType  string `json:"user_type,omitempty"`
	Email     string `json:"email,omitempty"`
}

// TokenSet is the parsed result of a successful token exchange.
type TokenSet struct {
	AccessToken          SecretToken
	RefreshToken         SecretToken
	TokenType            string
	ExpiresIn            int64
	Scope                string
	BotID                string
	WorkspaceID          string
	WorkspaceName        string
	WorkspaceIcon        string
	Owner                ConnectionOwner
	DuplicatedTemplateID string
	RequestID            string

	// Raw is the provider response body as received, secrets included.
	// Stores must redact it before persisting.
	Raw []byte
}

// Connection is one granted authorization for a (user, workspace) pair.
type Connection struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`

	AccessToken  SecretToken `json:"-"`
	RefreshToken SecretToken `json:"-"`
	TokenType    string      `json:"token_type"`

	BotID                string          `json:"bot_id,omitempty"`
	WorkspaceName        string          `json:"workspace_name,omitempty"`
	WorkspaceIcon        string          `json:"workspace_icon,omitempty"`
	Owner                ConnectionOwner `json:"owner"`
	DuplicatedTemplateID string          `json:"duplicated_template_id,omitempty"`
	RequestID            string          `json:"request_id,omitempty"`
	RawResponse          []byte          `json:"-"`

	DiscoveryStatus DiscoveryStatus `json:"discovery_status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DiscoveredResource is an external object visible to a connection's token
// at discovery time.
type DiscoveredResource struct {
	UserID       string    `json:"user_id"`
	WorkspaceID  string    `json:"workspace_id"`
	ResourceID   string    `json:"resource_id"`
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// ConnectionStore exclusively owns persisted connections and discovered resources.
//
// SaveConnection upserts on (userID, tokens.WorkspaceID); concurrent writers
// for the same pair resolve as last writer wins. Write failures wrap
// ErrPersistence. GetAccessToken and GetConnection return ErrNotConnected when
// nothing usable is stored, and ErrPersistence for read failures.
type ConnectionStore interface {
	SaveConnection(ctx context.Context, userID string, tokens TokenSet) (Connection, error)
	GetAccessToken(ctx context.Context, userID string) (SecretToken, error)
	GetConnection(ctx context.Context, userID, workspaceID string) (Connection, error)
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
	DeleteConnections(ctx context.Context, userID string) (int64, error)
	SetDiscoveryStatus(ctx context.Context, userID, workspaceID string, status DiscoveryStatus) error
	SaveDiscoveredResources(ctx context.Context, userID string, resources []DiscoveredResource) error
	ListDiscoveredResources(ctx context.Context, userID string) ([]DiscoveredResource, error)
	Close() error
}
