package oauth

import (
	"fmt"
	"strings"

	"github.com/studyhub/connector/pkg/domain"

	"golang.org/x/oauth2"
)

const (
	DefaultProviderBaseURL = "https://api.notion.com"

	authorizePath = "/v1/oauth/authorize"
	tokenPath     = "/v1/oauth/token"
)

// AuthorizeURL returns the consent page URL for a provider base URL.
func AuthorizeURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + authorizePath
}

// TokenURL returns the token endpoint for a provider base URL.
func TokenURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + tokenPath
}

type AuthorizationConfig struct {
	AuthURL     string
	ClientID    string
	Scope       string
	RedirectURL string
}

func (c AuthorizationConfig) Validate() error {
	var missing []string

	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}

	if strings.TrimSpace(c.RedirectURL) == "" {
		missing = append(missing, "redirect url")
	}

	if strings.TrimSpace(c.AuthURL) == "" {
		missing = append(missing, "authorization url")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	return nil
}

// BuildAuthorizationURL produces the provider consent URL. The grant is always
// requested with owner=user so the authorization belongs to the end user
// rather than to the integration. An empty state is omitted.
func BuildAuthorizationURL(cfg AuthorizationConfig, state string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	conf := oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Scopes:      strings.Fields(cfg.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL: cfg.AuthURL,
		},
	}

	return conf.AuthCodeURL(state, oauth2.SetAuthURLParam("owner", "user")), nil
}
