// internal/auth/oauth.go
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Scopes requested on login: profile and email, organization membership, and repository contents.
var Scopes = []string{"user:email", "read:org", "repo"}

// ErrNotConfigured is returned when no OAuth client credentials are configured.
var ErrNotConfigured = errors.New("GitHub OAuth client is not configured")

// Authenticator runs the GitHub OAuth web flow.
type Authenticator struct {
	config *oauth2.Config
}

// NewAuthenticator builds an Authenticator. An empty endpoint uses github.com.
func NewAuthenticator(clientID, clientSecret, redirectURL string, endpoint *oauth2.Endpoint) *Authenticator {
	ep := github.Endpoint
	if endpoint != nil {
		ep = *endpoint
	}
	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     ep,
		},
	}
}

// Configured reports whether client credentials are present.
func (a *Authenticator) Configured() bool {
	return a.config.ClientID != "" && a.config.ClientSecret != ""
}

// LoginURL returns the GitHub authorize URL carrying state. The consent screen is always shown.
func (a *Authenticator) LoginURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for an access token.
func (a *Authenticator) Exchange(ctx context.Context, code string) (string, error) {
	if !a.Configured() {
		return "", ErrNotConfigured
	}
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("exchange authorization code: no access token in response")
	}
	return token.AccessToken, nil
}
