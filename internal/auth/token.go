// Package auth manages the Gmail OAuth2 token used by the Gmail transport.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/sdr/internal/logger"
)

// ErrTokenNotSet indicates no OAuth token is available.
var ErrTokenNotSet = errors.New("no token defined")

const stateTTL = 5 * time.Minute

// NewOAuthConfig builds the Google OAuth client config with the send-only Gmail scope.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
}

// Token holds the current OAuth2 token and pending authorization states.
type Token struct {
	mu          sync.RWMutex
	cfg         *oauth2.Config
	token       *oauth2.Token
	persistPath string
	stateStore  map[string]time.Time
	authorized  chan struct{}
	once        sync.Once
}

// NewToken creates a Token, loading a previously persisted token when persistPath exists.
func NewToken(cfg *oauth2.Config, persistPath string) (*Token, error) {
	t := &Token{
		cfg:         cfg,
		persistPath: persistPath,
		stateStore:  make(map[string]time.Time),
		authorized:  make(chan struct{}),
	}
	if persistPath == "" {
		return t, nil
	}

	raw, err := os.ReadFile(persistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Get().Infow("token file doesn't exist yet, it will be created after authorization", "path", persistPath)
			return t, nil
		}
		return nil, fmt.Errorf("os.ReadFile failed: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(raw, token); err != nil {
		return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
	}
	t.setToken(token)

	return t, nil
}

// RedirectURL returns the consent page URL with a fresh single-use state.
func (t *Token) RedirectURL() (string, error) {
	state, err := t.generateState()
	if err != nil {
		return "", fmt.Errorf("generateState failed: %w", err)
	}

	return t.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (t *Token) generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.stateStore[state] = now.Add(stateTTL)

	for s, exp := range t.stateStore {
		if exp.Before(now) {
			delete(t.stateStore, s)
		}
	}

	return state, nil
}

func (t *Token) validateState(state string) bool {
	if state == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, exists := t.stateStore[state]
	if !exists {
		return false
	}

	delete(t.stateStore, state)

	return !time.Now().After(expiry)
}

// AuthorizeCode exchanges an authorization code after validating state.
func (t *Token) AuthorizeCode(ctx context.Context, code string, state string) error {
	if !t.validateState(state) {
		return errors.New("invalid or expired state parameter")
	}

	tok, err := t.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	t.setToken(tok)

	return nil
}

func (t *Token) setToken(tok *oauth2.Token) {
	t.mu.Lock()
	t.token = tok
	t.mu.Unlock()

	t.once.Do(func() { close(t.authorized) })
}

// Authorized is closed once a token is available.
func (t *Token) Authorized() <-chan struct{} {
	return t.authorized
}

// OAuthToken returns the current OAuth2 token.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}

	return t.token, nil
}

// HTTPClient returns a client that refreshes the token as needed and keeps the refreshed value.
func (t *Token) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := t.OAuthToken()
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		base: t.cfg.TokenSource(ctx, tok),
		tok:  t,
	}

	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Persist saves the token to disk.
func (t *Token) Persist() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.persistPath == "" || t.token == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(t.persistPath), 0700); err != nil {
		return fmt.Errorf("os.MkdirAll failed: %w", err)
	}

	raw, err := json.Marshal(t.token)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %w", err)
	}

	if err := os.WriteFile(t.persistPath, raw, 0600); err != nil {
		return fmt.Errorf("os.WriteFile failed: %w", err)
	}

	return nil
}

type persistingSource struct {
	base oauth2.TokenSource
	tok  *Token
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	next, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.tok.mu.Lock()
	s.tok.token = next
	s.tok.mu.Unlock()

	return next, nil
}
