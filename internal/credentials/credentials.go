// Package credentials loads the OAuth 2.0 client secret and the
// cached refresh token used to authenticate against the Google
// Calendar API, and drives the installed-application consent flow
// when no cached token is present.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/whenfs/whenfs/internal/storage"
)

// Scope is the calendar access level WhenFS requests: events it
// creates itself, not the user's whole calendar.
const Scope = calendar.CalendarAppCreatedScope

// Credentials holds the loaded OAuth client config and the path to
// its adjacent token cache.
type Credentials struct {
	config    *oauth2.Config
	tokenPath string
}

// Load reads the client-secret JSON file at secretPath and derives
// the token cache path (same directory, "-token.json" suffix).
func Load(secretPath string) (*Credentials, error) {
	data, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, &storage.AuthErr{Err: fmt.Errorf("reading client secret: %w", err)}
	}
	config, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, &storage.AuthErr{Err: fmt.Errorf("parsing client secret: %w", err)}
	}
	tokenPath := filepath.Join(filepath.Dir(secretPath), tokenCacheName(secretPath))
	return &Credentials{config: config, tokenPath: tokenPath}, nil
}

func tokenCacheName(secretPath string) string {
	base := filepath.Base(secretPath)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)] + "-token.json"
}

// Client returns an authenticated HTTP client, reusing a cached
// refresh token when present and otherwise running the installed-app
// consent flow (print a consent URL, read the authorization code from
// stdin) and persisting the resulting token.
func (c *Credentials) Client(ctx context.Context) (*http.Client, error) {
	tok, err := c.loadToken()
	if err != nil {
		tok, err = c.exchangeFromConsole(ctx)
		if err != nil {
			return nil, &storage.AuthErr{Err: err}
		}
		if err := c.saveToken(tok); err != nil {
			return nil, &storage.AuthErr{Err: fmt.Errorf("caching token: %w", err)}
		}
	}
	return c.config.Client(ctx, tok), nil
}

func (c *Credentials) loadToken() (*oauth2.Token, error) {
	f, err := os.Open(c.tokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (c *Credentials) saveToken(tok *oauth2.Token) error {
	f, err := os.OpenFile(c.tokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

func (c *Credentials) exchangeFromConsole(ctx context.Context) (*oauth2.Token, error) {
	authURL := c.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open this URL in a browser, authorize WhenFS, then paste the code:\n%s\n\nCode: ", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("reading authorization code: %w", err)
	}
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}
