package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/connector/internal/store"
	"github.com/studyhub/connector/pkg/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	now         func() time.Time
}

type Opts struct {
	DSN         string
	TablePrefix string
}

var _ domain.ConnectionStore = (*Store)(nil)

func New(ctx context.Context, opts Opts) (*Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is required for the postgres store", domain.ErrConfiguration)
	}

	pool, err := pgxpool.New(ctx, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &Store{
		pool:        pool,
		tablePrefix: opts.TablePrefix,
		now:         time.Now,
	}

	if err := s.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure tables: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) connTable() string {
	return store.TableName(s.tablePrefix, "connections")
}

func (s *Store) resourceTable() string {
	return store.TableName(s.tablePrefix, "discovered_resources")
}

func (s *Store) ensureTables(ctx context.Context) error {
	connTable := s.connTable()
	resourceTable := s.resourceTable()

	createConnSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_type TEXT NOT NULL DEFAULT '',
			bot_id TEXT NOT NULL DEFAULT '',
			workspace_name TEXT NOT NULL DEFAULT '',
			workspace_icon TEXT NOT NULL DEFAULT '',
			owner JSONB NOT NULL DEFAULT '{}',
			duplicated_template_id TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			raw_response JSONB,
			discovery_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, workspace_id)
		)`, connTable)

	createResourceSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			discovered_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, resource_id)
		)`, resourceTable)

	createIndexSQL := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user_updated ON %s (user_id, updated_at DESC)
	`, connTable, connTable)

	for _, statement := range []string{createConnSQL, createResourceSQL, createIndexSQL} {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) SaveConnection(ctx context.Context, userID string, tokens domain.TokenSet) (domain.Connection, error) {
	conn := store.ConnectionFromTokens(userID, tokens, s.now())
	if err := store.ValidateConnection(conn); err != nil {
		return domain.Connection{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			user_id, workspace_id, access_token, refresh_token, token_type, bot_id,
			workspace_name, workspace_icon, owner, duplicated_template_id, request_id,
			raw_response, discovery_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, workspace_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			bot_id = EXCLUDED.bot_id,
			workspace_name = EXCLUDED.workspace_name,
			workspace_icon = EXCLUDED.workspace_icon,
			owner = EXCLUDED.owner,
			duplicated_template_id = EXCLUDED.duplicated_template_id,
			request_id = EXCLUDED.request_id,
			raw_response = EXCLUDED.raw_response,
			discovery_status = EXCLUDED.discovery_status,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, s.connTable())

	var rawResponse any
	if conn.RawResponse != nil {
		rawResponse = string(conn.RawResponse)
	}

	err := s.pool.QueryRow(ctx, query,
		conn.UserID,
		conn.WorkspaceID,
		conn.AccessToken.Value(),
		conn.RefreshToken.Value(),
		conn.TokenType,
		conn.BotID,
		conn.WorkspaceName,
		conn.WorkspaceIcon,
		conn.Owner,
		conn.DuplicatedTemplateID,
		conn.RequestID,
		rawResponse,
		string(conn.DiscoveryStatus),
		conn.CreatedAt,
		conn.UpdatedAt,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("%w: upsert connection: %w", domain.ErrPersistence, err)
	}

	conn.CreatedAt = conn.CreatedAt.UTC()
	conn.UpdatedAt = conn.UpdatedAt.UTC()

	return conn, nil
}

func (s *Store) GetAccessToken(ctx context.Context, userID string) (domain.SecretToken, error) {
	query := fmt.Sprintf(`
		SELECT access_token FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, s.connTable())

	var token string
	err := s.pool.QueryRow(ctx, query, userID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
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
	raw_response::text, discovery_status, created_at, updated_at`

func scanConnection(row pgx.Row) (domain.Connection, error) {
	var (
		conn                      domain.Connection
		accessToken, refreshToken string
		rawResponse               *string
		status                    string
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
		&conn.Owner,
		&conn.DuplicatedTemplateID,
		&conn.RequestID,
		&rawResponse,
		&status,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	); err != nil {
		return domain.Connection{}, err
	}

	if rawResponse != nil {
		conn.RawResponse = []byte(*rawResponse)
	}

	conn.AccessToken = domain.NewSecretToken(accessToken)
	conn.RefreshToken = domain.NewSecretToken(refreshToken)
	conn.DiscoveryStatus = domain.DiscoveryStatus(status)
	conn.CreatedAt = conn.CreatedAt.UTC()
	conn.UpdatedAt = conn.UpdatedAt.UTC()

	return conn, nil
}

func (s *Store) GetConnection(ctx context.Context, userID, workspaceID string) (domain.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 AND workspace_id = $2`, connectionColumns, s.connTable())

	conn, err := scanConnection(s.pool.QueryRow(ctx, query, userID, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
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
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC, workspace_id
	`, connectionColumns, s.connTable())

	rows, err := s.pool.Query(ctx, query, userID)
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
	var deleted int64

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, s.resourceTable()), userID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, s.connTable()), userID)
		if err != nil {
			return err
		}

		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete connections: %w", domain.ErrPersistence, err)
	}

	return deleted, nil
}

func (s *Store) SetDiscoveryStatus(ctx context.Context, userID, workspaceID string, status domain.DiscoveryStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET discovery_status = $1 WHERE user_id = $2 AND workspace_id = $3`, s.connTable())

	tag, err := s.pool.Exec(ctx, query, string(status), userID, workspaceID)
	if err != nil {
		return fmt.Errorf("%w: update discovery status: %w", domain.ErrPersistence, err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrNotConnected
	}

	return nil
}

func (s *Store) SaveDiscoveredResources(ctx context.Context, userID string, resources []domain.DiscoveredResource) error {
	resources = store.NormalizeResources(userID, resources, s.now())
	if len(resources) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, resource_id, workspace_id, name, url, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, resource_id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			discovered_at = EXCLUDED.discovered_at
	`, s.resourceTable())

	batch := &pgx.Batch{}
	for _, resource := range resources {
		batch.Queue(query,
			resource.UserID,
			resource.ResourceID,
			resource.WorkspaceID,
			resource.Name,
			resource.URL,
			resource.DiscoveredAt,
		)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("%w: save discovered resources: %w", domain.ErrPersistence, err)
	}

	return nil
}

func (s *Store) ListDiscoveredResources(ctx context.Context, userID string) ([]domain.DiscoveredResource, error) {
	query := fmt.Sprintf(`
		SELECT user_id, resource_id, workspace_id, name, url, discovered_at
		FROM %s
		WHERE user_id = $1
		ORDER BY name, resource_id
	`, s.resourceTable())

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list resources: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	resources := []domain.DiscoveredResource{}
	for rows.Next() {
		var resource domain.DiscoveredResource

		if err := rows.Scan(&resource.UserID, &resource.ResourceID, &resource.WorkspaceID, &resource.Name, &resource.URL, &resource.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("%w: scan resource: %w", domain.ErrPersistence, err)
		}

		resource.DiscoveredAt = resource.DiscoveredAt.UTC()
		resources = append(resources, resource)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list resources: %w", domain.ErrPersistence, err)
	}

	return resources, nil
}
