package initialization

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Config holds all connector configuration
type Config struct {
	// OAuth client registered with the provider
	NotionClientID     string
	NotionClientSecret string
	RedirectURL        string
	OAuthScope         string
	ProviderBaseURL    string
	NotionVersion      string

	// HTTP host
	Port         int
	HTTPAddress  string
	AllowOrigins []string

	// Persistence
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	TablePrefix string
	RedisURL    string

	// Application user sessions
	SessionJWTSecret string
	SessionAudience  string
	OperatorUserID   string

	ExchangeTimeout   time.Duration
	DiscoveryTimeout  time.Duration
	StateTTL          time.Duration
	DiscoveryMaxPages int
	WorkerConcurrency int
}

// ListenAddress is HTTPAddress when set, otherwise every interface on Port.
func (c *Config) ListenAddress() string {
	if c.HTTPAddress != "" {
		return c.HTTPAddress
	}
	return fmt.Sprintf(":%d", c.Port)
}

var envMappings = map[string]string{
	"NotionClientID":     "NOTION_CLIENT_ID",
	"NotionClientSecret": "NOTION_CLIENT_SECRET",
	"RedirectURL":        "REDIRECT_URL",
	"OAuthScope":         "OAUTH_SCOPE",
	"ProviderBaseURL":    "PROVIDER_BASE_URL",
	"NotionVersion":      "NOTION_VERSION",
	"Port":               "PORT",
	"HTTPAddress":        "HTTP_ADDRESS",
	"AllowOrigins":       "CORS_ALLOW_ORIGINS",
	"StoreDriver":        "STORE_DRIVER",
	"DatabaseURL":        "DATABASE_URL",
	"SQLitePath":         "SQLITE_PATH",
	"TablePrefix":        "TABLE_PREFIX",
	"RedisURL":           "REDIS_URL",
	"SessionJWTSecret":   "SESSION_JWT_SECRET",
	"SessionAudience":    "SESSION_AUDIENCE",
	"OperatorUserID":     "OPERATOR_USER_ID",
	"ExchangeTimeout":    "EXCHANGE_TIMEOUT",
	"DiscoveryTimeout":   "DISCOVERY_TIMEOUT",
	"StateTTL":           "STATE_TTL",
	"DiscoveryMaxPages":  "DISCOVERY_MAX_PAGES",
	"WorkerConcurrency":  "WORKER_CONCURRENCY",
}

// LoadConfig loads configuration from an optional connector_config.yaml and
// environment variables. Environment variables win.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("connector_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.studyhub")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if config.RedirectURL == "" {
		config.RedirectURL = fmt.Sprintf("http://localhost:%d/oauth/callback", config.Port)
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	log.Debug().
		Str("store_driver", config.StoreDriver).
		Str("redirect_url", config.RedirectURL).
		Bool("redis", config.RedisURL != "").
		Msg("Config loaded")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Port", 3000)
	v.SetDefault("OAuthScope", "mcp:read mcp:write")
	v.SetDefault("ProviderBaseURL", "https://api.notion.com")
	v.SetDefault("NotionVersion", "2022-06-28")
	v.SetDefault("StoreDriver", StoreDriverSQLite)
	v.SetDefault("SQLitePath", "connector.db")
	v.SetDefault("SessionAudience", "authenticated")
	v.SetDefault("ExchangeTimeout", 10*time.Second)
	v.SetDefault("DiscoveryTimeout", 10*time.Second)
	v.SetDefault("StateTTL", 10*time.Minute)
	v.SetDefault("DiscoveryMaxPages", 10)
	v.SetDefault("WorkerConcurrency", 4)
}

// validateConfig reports every missing or invalid setting at once.
func validateConfig(config *Config) error {
	var problems []string

	if config.NotionClientID == "" {
		problems = append(problems, "NOTION_CLIENT_ID is required")
	}

	if config.NotionClientSecret == "" {
		problems = append(problems, "NOTION_CLIENT_SECRET is required")
	}

	switch config.StoreDriver {
	case StoreDriverSQLite:
		if config.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required for the sqlite store")
		}
	case StoreDriverPostgres:
		if config.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres store")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER must be %q or %q, got %q", StoreDriverSQLite, StoreDriverPostgres, config.StoreDriver))
	}

	if config.Port <= 0 || config.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be a valid port, got %d", config.Port))
	}

	if config.ExchangeTimeout <= 0 || config.DiscoveryTimeout <= 0 || config.StateTTL <= 0 {
		problems = append(problems, "EXCHANGE_TIMEOUT, DISCOVERY_TIMEOUT and STATE_TTL must be positive durations")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}

	return nil
}
