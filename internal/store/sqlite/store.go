// Package sqlite provides a SQLite-backed connection store for local and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/studyhub/connector/internal/store"
	"github.com/studyhub/connector/pkg/domain"

	_ "modernc.org/sqlite"
)

const MemoryPath = ":memory:"

// Store persists connections and discovered resources in SQLite.
type Store struct {
	sqlDB       *sql.DB
	tablePrefix string
	now         func() time.Time
}

var _ domain.ConnectionStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database at path and ensures the schema.
// MemoryPath opens a private in-memory database.
func Open(ctx context.Context, path, tablePrefix string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// Every connection to :memory: is a separate database, and SQLite
	// serializes writers anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{
		sqlDB:       sqlDB,
		tablePrefix: tablePrefix,
		now:         time.Now,
	}

	if err := s.ensureTables(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ensure tables: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) connTable() string {
	return store.TableName(s.tablePrefix, "connections")
}

func (s *Store) resourceTable() string {
	return store.TableName(s.tablePrefix, "discovered_resources")
}

func (s *Store) ensureTables(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				user_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL DEFAULT '',
				access_token TEXT NOT NULL,
				refresh_token TEXT NOT NULL DEFAULT '',
				token_type TEXT NOT NULL DEFAULT '',
				bot_id TEXT NOT NULL DEFAULT '',
				workspace_name TEXT NOT NULL DEFAULT '',
				workspace_icon TEXT NOT NULL DEFAULT '',
				owner TEXT NOT NULL DEFAULT '{}',
				duplicated_template_id TEXT NOT NULL DEFAULT '',
				request_id TEXT NOT NULL DEFAULT '',
				raw_response TEXT,
				discovery_status TEXT NOT NULL DEFAULT 'pending',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (user_id, workspace_id)
			)`, s.connTable()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				user_id TEXT NOT NULL,
				resource_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL,
				url TEXT NOT NULL DEFAULT '',
				discovered_at INTEGER NOT NULL,
				PRIMARY KEY (user_id, resource_id)
			)`, s.resourceTable()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_updated_idx ON %s (user_id, updated_at DESC)`, s.connTable(), s.connTable()),
	}

	for _, statement := range statements {
		if _, err := s.sqlDB.ExecContext(ctx, statement); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) SaveConnection(ctx context.Context, userID string, tokens domain.TokenSet) (domain.Connection, error) {
	if err := ctx.Err(); err != nil {
		return domain.Connection{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	conn := store.ConnectionFromTokens(userID, tokens, s.now())
	if err := store.ValidateConnection(conn); err != nil {
		return domain.Connection{}, err
	}

	owner, err := json.Marshal(conn.Owner)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("%w: failed to marshal owner: %w", domain.ErrPersistence, err)
	}

	var raw sql.NullString
	if conn.RawResponse != nil {
		raw = sql.NullString{String: string(conn.RawResponse), Valid: true}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			user_id, workspace_id, access_token, refresh_token, token_type, bot_id,
			workspace_name, workspace_icon, owner, duplicated_template_id, request_id,
			raw_response, discovery_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, workspace_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			bot_id = excluded.bot_id,
			workspace_name = excluded.workspace_name,
			workspace_icon = excluded.workspace_icon,
			owner = excluded.owner,
			duplicated_template_id = excluded.duplicated_template_id,
			request_id = excluded.request_id,
			raw_response = excluded.raw_response,
			discovery_status = excluded.discovery_status,
			updated_at = excluded.updated_at
		RETURNING created_at`, s.connTable())

	var createdAt int64
	err = s.sqlDB.QueryRowContext(ctx, query,
		conn.UserID,
		conn.WorkspaceID,
		conn.AccessToken.Value(),
		conn.RefreshToken.Value(),
		conn.TokenType,
		conn.BotID,
		conn.WorkspaceName,
		conn.WorkspaceIcon,
		string(owner),
		conn.DuplicatedTemplateID,
		conn.RequestID,
		raw,
		string(conn.DiscoveryStatus),
		toMillis(conn.CreatedAt),
		toMillis(conn.UpdatedAt),
	).Scan(&createdAt)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("%w: upsert connection: %w", domain.ErrPersistence, err)
	}

	conn.CreatedAt = fromMillis(createdAt)
	conn.UpdatedAt = fromMillis(toMillis(conn.UpdatedAt))

	return conn, nil
}

func (s *Store) GetAccessToken(ctx context.Context, userID string) (domain.SecretToken, error) {
	query := fmt.Sprintf(`SELECT access_token FROM %s WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1`, s.connTable())

	var token string
	err := s.sqlDB.QueryRowContext(ctx, query, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SecretToken{}, domain.ErrNotConnected
	}
	if err != nil {
		return domain.SecretToken{}, fmt.Errorf("%w: read access token: %w", domain.ErrPersistence, err)
	}

	if token == "" {
		return domain.SecretToken{}, domain.ErrNotConnected
	}

	return domain.NewSecretToken(token), nil
}

const connectionColumns = `user_id, workspace_id, access_token, refresh_token, token_type, bot_id,
	workspace_name, workspace_icon, owner, duplicated_template_id, request_id,
	raw_response, discovery_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (domain.Connection, error) {
	var (
		conn                             domain.Connection
		accessToken, refreshToken, owner string
		status                           string
		raw                              sql.NullString
		createdAt, updatedAt             int64
	)

	if err := row.Scan(
		&conn.UserID,
		&conn.WorkspaceID,
		&accessToken,
		&refreshToken,
		&conn.TokenType,
		&conn.BotID,
		&conn.WorkspaceName,
		&conn.WorkspaceIcon,
		&owner,
		&conn.DuplicatedTemplateID,
		&conn.RequestID,
		&raw,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Connection{}, err
	}

	if owner != "" {
		if err := json.Unmarshal([]byte(owner), &conn.Owner); err != nil {
			return domain.Connection{}, fmt.Errorf("failed to unmarshal owner: %w", err)
		}
	}

	if raw.Valid {
		conn.RawResponse = []byte(raw.String)
	}

	conn.AccessToken = domain.NewSecretToken(accessToken)
	conn.RefreshToken = domain.NewSecretToken(refreshToken)
	conn.DiscoveryStatus = domain.DiscoveryStatus(status)
	conn.CreatedAt = fromMillis(createdAt)
	conn.UpdatedAt = fromMillis(updatedAt)

	return conn, nil
}

func (s *Store) GetConnection(ctx context.Context, userID, workspaceID string) (domain.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ? AND workspace_id = ?`, connectionColumns, s.connTable())

	conn, err := scanConnection(s.sqlDB.QueryRowContext(ctx, query, userID, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Connection{}, domain.ErrNotConnected
	}
	if err != nil {
		return domain.Connection{}, fmt.Errorf("%w: read connection: %w", domain.ErrPersistence, err)
	}

	if conn.AccessToken.IsEmpty() {
		return domain.Connection{}, domain.ErrNotConnected
	}

	return conn, nil
}

func (s *Store) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ? ORDER BY updated_at DESC, workspace_id`, connectionColumns, s.connTable())

	rows, err := s.sqlDB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list connections: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	connections := []domain.Connection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan connection: %w", domain.ErrPersistence, err)
		}
		connections = append(connections, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list connections: %w", domain.ErrPersistence, err)
	}

	return connections, nil
}

func (s *Store) DeleteConnections(ctx context.Context, userID string) (int64, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, s.resourceTable()), userID); err != nil {
		return 0, fmt.Errorf("%w: delete resources: %w", domain.ErrPersistence, err)
	}

	result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, s.connTable()), userID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete connections: %w", domain.ErrPersistence, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete connections: %w", domain.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrPersistence, err)
	}

	return deleted, nil
}

func (s *Store) SetDiscoveryStatus(ctx context.Context, userID, workspaceID string, status domain.DiscoveryStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET discovery_status = ? WHERE user_id = ? AND workspace_id = ?`, s.connTable())

	result, err := s.sqlDB.ExecContext(ctx, query, string(status), userID, workspaceID)
	if err != nil {
		return fmt.Errorf("%w: update discovery status: %w", domain.ErrPersistence, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update discovery status: %w", domain.ErrPersistence, err)
	}

	if affected == 0 {
		return domain.ErrNotConnected
	}

	return nil
}

func (s *Store) SaveDiscoveredResources(ctx context.Context, userID string, resources []domain.DiscoveredResource) error {
	resources = store.NormalizeResources(userID, resources, s.now())
	if len(resources) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, resource_id, workspace_id, name, url, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource_id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			name = excluded.name,
			url = excluded.url,
			discovered_at = excluded.discovered_at`, s.resourceTable()))
	if err != nil {
		return fmt.Errorf("%w: prepare resource upsert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	for _, resource := range resources {
		if _, err := stmt.ExecContext(ctx,
			resource.UserID,
			resource.ResourceID,
			resource.WorkspaceID,
			resource.Name,
			resource.URL,
			toMillis(resource.DiscoveredAt),
		); err != nil {
			return fmt.Errorf("%w: upsert resource %s: %w", domain.ErrPersistence, resource.ResourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrPersistence, err)
	}

	return nil
}

func (s *Store) ListDiscoveredResources(ctx context.Context, userID string) ([]domain.DiscoveredResource, error) {
	query := fmt.Sprintf(`
		SELECT user_id, resource_id, workspace_id, name, url, discovered_at
		FROM %s WHERE user_id = ? ORDER BY name, resource_id`, s.resourceTable())

	rows, err := s.sqlDB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list resources: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	resources := []domain.DiscoveredResource{}
	for rows.Next() {
		var (
			resource     domain.DiscoveredResource
			discoveredAt int64
		)

		if err := rows.Scan(&resource.UserID, &resource.ResourceID, &resource.WorkspaceID, &resource.Name, &resource.URL, &discoveredAt); err != nil {
			return nil, fmt.Errorf("%w: scan resource: %w", domain.ErrPersistence, err)
		}

		resource.DiscoveredAt = fromMillis(discoveredAt)
		resources = append(resources, resource)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list resources: %w", domain.ErrPersistence, err)
	}

	return resources, nil
}
