package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConfig configures the Gmail draft composer.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "http://localhost:8080/api/google/callback"
	TokenPath    string // default: ~/.murmur/google_token.json

	// HTTPClient is the base client used for the token exchange.
	HTTPClient *http.Client

	// Endpoint overrides the Gmail API base URL.
	Endpoint string
}

// GmailComposer creates Gmail drafts on the user's behalf.
type GmailComposer struct {
	config     *oauth2.Config
	tokenPath  string
	httpClient *http.Client
	endpoint   string

	mu      sync.RWMutex
	token   *oauth2.Token
	service *gmail.Service
}

// NewGmailComposer creates a composer. A previously saved token is loaded
// if present; otherwise the user must complete the consent flow via
// AuthURL and HandleCallback.
func NewGmailComposer(cfg GmailConfig) (*GmailComposer, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/google/callback"
	}
	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".murmur", "google_token.json")
	}

	g := &GmailComposer{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmail.GmailComposeScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath:  cfg.TokenPath,
		httpClient: cfg.HTTPClient,
		endpoint:   cfg.Endpoint,
	}

	if err := g.loadToken(); err == nil {
		if err := g.initService(context.Background()); err != nil {
			g.token = nil
		}
	}
	return g, nil
}

// IsAuthenticated returns true if the composer holds a token.
func (g *GmailComposer) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != nil && g.service != nil
}

// AuthURL returns the OAuth2 consent URL.
func (g *GmailComposer) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code and saves the token.
func (g *GmailComposer) HandleCallback(ctx context.Context, code string) error {
	token, err := g.config.Exchange(g.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchange code for token: %w", err)
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()

	if err := g.saveToken(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return g.initService(ctx)
}

// Compose implements Composer by creating a draft in the user's mailbox.
func (g *GmailComposer) Compose(ctx context.Context, email ComposeEmail) (string, error) {
	g.mu.RLock()
	service := g.service
	g.mu.RUnlock()
	if service == nil {
		return "", ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	draft := &gmail.Draft{
		Message: &gmail.Message{Raw: EncodeRFC822(email)},
	}
	created, err := service.Users.Drafts.Create("me", draft).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	return "gmail draft " + created.Id, nil
}

// EncodeRFC822 renders email as a minimal RFC 822 message in the URL-safe
// base64 form the Gmail API expects.
func EncodeRFC822(email ComposeEmail) string {
	var b strings.Builder
	if email.To != "" {
		fmt.Fprintf(&b, "To: %s\r\n", email.To)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", email.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(email.Body)
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

func (g *GmailComposer) oauthContext(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func (g *GmailComposer) initService(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == nil {
		return ErrNotAuthenticated
	}

	client := g.config.Client(g.oauthContext(context.Background()), g.token)
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create gmail service: %w", err)
	}
	g.service = service
	return nil
}

func (g *GmailComposer) loadToken() error {
	data, err := os.ReadFile(g.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}

	g.mu.Lock()
	g.token = &token
	g.mu.Unlock()
	return nil
}

func (g *GmailComposer) saveToken() error {
	g.mu.RLock()
	token := g.token
	g.mu.RUnlock()

	if token == nil {
		return ErrNotAuthenticated
	}
	if err := os.MkdirAll(filepath.Dir(g.tokenPath), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.tokenPath, data, 0600)
}
