package initialization

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/studyhub/connector/internal/auth"
	"github.com/studyhub/connector/internal/controllers"
	"github.com/studyhub/connector/internal/discovery"
	"github.com/studyhub/connector/internal/managers"
	"github.com/studyhub/connector/internal/oauthstate"
	"github.com/studyhub/connector/internal/server"
	"github.com/studyhub/connector/internal/store/postgres"
	"github.com/studyhub/connector/internal/store/sqlite"
	"github.com/studyhub/connector/pkg/domain"
	notionintegration "github.com/studyhub/connector/pkg/integrations/notion"
	"github.com/studyhub/connector/pkg/oauth"

	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Container owns the long-lived clients built from a Config. Close releases
// them in reverse order of creation.
type Container struct {
	config *Config

	store        domain.ConnectionStore
	states       domain.StateStore
	notionClient *notionintegration.NotionClient
	agent        *discovery.Agent

	closers []io.Closer
}

type ServerDependencies struct {
	App               *fiber.App
	ConnectionManager *managers.ConnectionManager
	InlineDispatcher  *discovery.InlineDispatcher
}

func NewContainer(ctx context.Context, config *Config) (*Container, error) {
	c := &Container{config: config}

	store, err := openStore(ctx, config)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closers = append(c.closers, store)

	if config.RedisURL != "" {
		states, err := oauthstate.NewRedisStore(ctx, oauthstate.RedisOpts{URL: config.RedisURL})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.states = states
		c.closers = append(c.closers, states)
	} else {
		states := oauthstate.NewMemoryStore()
		c.states = states
		c.closers = append(c.closers, states)
	}

	c.notionClient = notionintegration.NewNotionClient(notionintegration.ClientConfig{
		BaseURL:       config.ProviderBaseURL,
		NotionVersion: config.NotionVersion,
	}, notionintegration.WithHTTPClient(&http.Client{Timeout: config.DiscoveryTimeout}))

	c.agent = discovery.NewAgent(discovery.AgentDependencies{
		Lister:  notionintegration.NewPageLister(c.notionClient, config.DiscoveryMaxPages),
		Store:   c.store,
		Timeout: config.DiscoveryTimeout,
	})

	return c, nil
}

func openStore(ctx context.Context, config *Config) (domain.ConnectionStore, error) {
	switch config.StoreDriver {
	case StoreDriverPostgres:
		store, err := postgres.New(ctx, postgres.Opts{
			DSN:         config.DatabaseURL,
			TablePrefix: config.TablePrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}

		log.Info().Msg("Using PostgreSQL connection store")
		return store, nil
	case StoreDriverSQLite:
		store, err := sqlite.Open(ctx, config.SQLitePath, config.TablePrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}

		log.Info().Str("path", config.SQLitePath).Msg("Using SQLite connection store")
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", domain.ErrConfiguration, config.StoreDriver)
	}
}

func (c *Container) Config() *Config {
	return c.config
}

func (c *Container) Store() domain.ConnectionStore {
	return c.store
}

// ConnectionTester checks a stored token against the provider.
func (c *Container) ConnectionTester() *notionintegration.NotionConnectionTester {
	return notionintegration.NewNotionConnectionTester(c.notionClient)
}

// BuildConnectionManager wires the connection flow. Discovery is queued when
// Redis is configured and runs inline otherwise; the inline dispatcher is
// returned so callers can wait for running jobs on shutdown.
func (c *Container) BuildConnectionManager() (*managers.ConnectionManager, *discovery.InlineDispatcher, error) {
	exchanger, err := oauth.NewTokenExchangeClient(oauth.ExchangeConfig{
		TokenURL:     oauth.TokenURL(c.config.ProviderBaseURL),
		ClientID:     c.config.NotionClientID,
		ClientSecret: c.config.NotionClientSecret,
		RedirectURL:  c.config.RedirectURL,
		Timeout:      c.config.ExchangeTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		dispatcher domain.DiscoveryDispatcher
		inline     *discovery.InlineDispatcher
	)

	if c.config.RedisURL != "" {
		redisOpt, err := asynq.ParseRedisURI(c.config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid REDIS_URL: %w", domain.ErrConfiguration, err)
		}

		queue := discovery.NewQueueDispatcher(asynq.NewClient(redisOpt), discovery.QueueDispatcherOpts{
			Timeout: c.config.DiscoveryTimeout,
		})
		c.closers = append(c.closers, queue)
		dispatcher = queue

		log.Info().Msg("Resource discovery runs on the queue worker")
	} else {
		inline = discovery.NewInlineDispatcher(c.agent)
		dispatcher = inline

		log.Info().Msg("Resource discovery runs inline")
	}

	manager, err := managers.NewConnectionManager(managers.ConnectionManagerDependencies{
		AuthConfig: oauth.AuthorizationConfig{
			AuthURL:     oauth.AuthorizeURL(c.config.ProviderBaseURL),
			ClientID:    c.config.NotionClientID,
			Scope:       c.config.OAuthScope,
			RedirectURL: c.config.RedirectURL,
		},
		Exchanger:  exchanger,
		Store:      c.store,
		StateStore: c.states,
		Dispatcher: dispatcher,
		StateTTL:   c.config.StateTTL,
	})
	if err != nil {
		return nil, nil, err
	}

	return manager, inline, nil
}

func (c *Container) BuildServerDependencies() (*ServerDependencies, error) {
	verifier, err := auth.NewSessionVerifier(c.config.SessionJWTSecret, c.config.SessionAudience)
	if err != nil {
		return nil, fmt.Errorf("SESSION_JWT_SECRET: %w", err)
	}

	manager, inline, err := c.BuildConnectionManager()
	if err != nil {
		return nil, err
	}

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		OAuthController: controllers.NewOAuthController(controllers.OAuthControllerDependencies{
			ConnectionFlow: manager,
		}),
		ConnectionController: controllers.NewConnectionController(controllers.ConnectionControllerDependencies{
			ConnectionReader: manager,
		}),
		SessionVerifier: verifier,
		AllowOrigins:    c.config.AllowOrigins,
	})

	return &ServerDependencies{
		App:               app,
		ConnectionManager: manager,
		InlineDispatcher:  inline,
	}, nil
}

// BuildWorker returns the queue worker that runs discovery jobs.
func (c *Container) BuildWorker() (*discovery.Worker, error) {
	if c.config.RedisURL == "" {
		return nil, fmt.Errorf("%w: REDIS_URL is required to run the discovery worker", domain.ErrConfiguration)
	}

	redisOpt, err := asynq.ParseRedisURI(c.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REDIS_URL: %w", domain.ErrConfiguration, err)
	}

	return discovery.NewWorker(redisOpt, discovery.NewTaskHandler(c.agent), discovery.WorkerOpts{
		Concurrency: c.config.WorkerConcurrency,
	}), nil
}

func (c *Container) Close() error {
	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil

	return errors.Join(errs...)
}
