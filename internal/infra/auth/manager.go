// Package auth provides the authentication collaborator: it owns the
// OAuth token, broadcasts token changes to interested components, and
// performs logout when an unauthorized response is observed anywhere in
// the application.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Config represents authentication configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Manager owns the session token. Exactly one Manager exists per process.
// Subscribers receive the current token on subscription changes; an empty
// token means the session was cleared (logout).
type Manager struct {
	mu          sync.RWMutex
	source      oauth2.TokenSource
	subscribers map[string]func(token string)
	loggedOut   bool
}

// New creates a Manager from Spotify credentials. The refresh token is
// exchanged lazily; no network call happens here.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	authenticator := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopeStreaming,
		),
	)

	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	client := authenticator.Client(ctx, token)
	transport, ok := client.Transport.(*oauth2.Transport)
	if !ok {
		return nil, errors.New("unexpected oauth2 client transport")
	}

	return &Manager{
		source:      transport.Source,
		subscribers: make(map[string]func(token string)),
	}, nil
}

// CurrentToken returns the current access token, refreshing it if needed.
// Returns "" without error after logout.
func (m *Manager) CurrentToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	loggedOut := m.loggedOut
	source := m.source
	m.mu.RUnlock()

	if loggedOut {
		return "", nil
	}

	token, err := source.Token()
	if err != nil {
		return "", errors.Wrap(err, "failed to obtain access token")
	}
	return token.AccessToken, nil
}

// HTTPClient returns an HTTP client that attaches Bearer authorization and
// fires the unauthorized signal (triggering logout) on any 401 response.
func (m *Manager) HTTPClient(ctx context.Context) *http.Client {
	m.mu.RLock()
	source := m.source
	m.mu.RUnlock()

	base := oauth2.NewClient(ctx, source)
	return &http.Client{
		Transport: &unauthorizedObserver{
			base:           base.Transport,
			onUnauthorized: m.NotifyUnauthorized,
		},
		Timeout: base.Timeout,
	}
}

// Subscribe registers a token-change callback and returns a subscription id.
// Callers receive changes from this point on; use Announce to push the
// current token once everyone is attached.
func (m *Manager) Subscribe(fn func(token string)) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscribers[id] = fn
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}

// Announce fetches the current token and broadcasts it to subscribers.
// Called once at startup after all subscribers are attached.
func (m *Manager) Announce(ctx context.Context) error {
	token, err := m.CurrentToken(ctx)
	if err != nil {
		return err
	}
	m.broadcast(token)
	return nil
}

// Logout clears the session and broadcasts an empty token. Idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	if m.loggedOut {
		m.mu.Unlock()
		return
	}
	m.loggedOut = true
	m.mu.Unlock()

	zlog.Info().Msg("auth: session cleared")
	m.broadcast("")
}

// IsLoggedOut reports whether the session has been cleared.
func (m *Manager) IsLoggedOut() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loggedOut
}

// NotifyUnauthorized is the global unauthorized signal. Any component that
// observes a 401 calls this; the manager responds by logging out.
func (m *Manager) NotifyUnauthorized() {
	zlog.Warn().Msg("auth: unauthorized response observed, clearing session")
	m.Logout()
}

func (m *Manager) broadcast(token string) {
	m.mu.RLock()
	subs := make([]func(string), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		fn(token)
	}
}
