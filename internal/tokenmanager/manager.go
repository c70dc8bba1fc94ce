// Package tokenmanager hands out valid access tokens, refreshing them
// through the provider's token endpoint when they expire and falling back to
// interactive authorization when permitted by the execution mode.
package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/svsticky/knaak/internal/tokenstore"
)

// DefaultExpiryMargin is the safety margin applied to the stored expiry: a
// token expiring within the margin is treated as already expired.
const DefaultExpiryMargin = 30 * time.Second

// DefaultRefreshTimeout bounds the refresh call to the token endpoint.
const DefaultRefreshTimeout = 30 * time.Second

// Authorizer runs an interactive authorization and persists the resulting
// record. It is only wired in when the process runs in authorization mode;
// a normal-mode Manager carries none and can therefore never bind the
// privileged listener.
type Authorizer interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuthorizer enables interactive authorization as a fallback.
func WithAuthorizer(a Authorizer) Option {
	return func(m *Manager) {
		m.authorizer = a
	}
}

// WithClock injects the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithExpiryMargin overrides the expiry safety margin.
func WithExpiryMargin(margin time.Duration) Option {
	return func(m *Manager) {
		m.margin = margin
	}
}

// WithRefreshTimeout overrides the refresh call timeout.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = timeout
	}
}

// Manager provides valid access tokens for one provider on demand.
type Manager struct {
	provider string
	store    tokenstore.TokenStore
	oauth    oauth2.Config

	authorizer     Authorizer
	now            func() time.Time
	margin         time.Duration
	refreshTimeout time.Duration
}

// New creates a Manager for one provider.
func New(provider string, store tokenstore.TokenStore, oauth oauth2.Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	m := &Manager{
		provider:       provider,
		store:          store,
		oauth:          oauth,
		now:            time.Now,
		margin:         DefaultExpiryMargin,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AccessToken returns a valid access token, refreshing or (when an
// Authorizer is wired in) re-authorizing as needed. A stored token that is
// not yet within the expiry margin is returned as-is without any network
// call.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	record, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("loading token record: %w", err)
	}

	if record == nil {
		if m.authorizer == nil {
			return "", ErrNotAuthorized
		}
		slog.InfoContext(ctx, "no token record available, starting interactive authorization", "provider", m.provider)
		return m.authorize(ctx)
	}

	if !record.ExpiresWithin(m.now(), m.margin) {
		return record.AccessToken, nil
	}

	slog.DebugContext(ctx, "access token expired, refreshing", "provider", m.provider, "expires_at", record.ExpiresAt)
	fresh, err := m.refresh(ctx, record)
	if err == nil {
		return fresh.AccessToken, nil
	}

	if m.authorizer != nil {
		slog.WarnContext(ctx, "refresh failed, starting interactive authorization", "provider", m.provider, "error", err)
		return m.authorize(ctx)
	}

	// The provider explicitly rejecting the grant means the refresh token is
	// revoked or expired; only a fresh authorization can help.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		slog.ErrorContext(ctx, "refresh token rejected by provider", "provider", m.provider, "error", err)
		return "", ErrReauthorizationRequired
	}
	return "", &RefreshError{Err: err}
}

// refresh exchanges the stored refresh token for a new token pair and
// persists the full updated record atomically.
func (m *Manager) refresh(ctx context.Context, record *tokenstore.Record) (*tokenstore.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	// oauth2 picks up a custom HTTP client from the context.
	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: m.refreshTimeout})

	// Passing only the refresh token forces a refresh call.
	source := m.oauth.TokenSource(httpCtx, &oauth2.Token{RefreshToken: record.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, err
	}

	// Providers that do not rotate refresh tokens omit them from the
	// response; the record must stay complete either way.
	if token.RefreshToken == "" {
		token.RefreshToken = record.RefreshToken
	}

	fresh := tokenstore.FromToken(token, record.Scope)
	if err := m.store.Save(ctx, fresh); err != nil {
		return nil, fmt.Errorf("persisting refreshed token record: %w", err)
	}
	return fresh, nil
}

// authorize runs the interactive flow. The Authorizer persists the record
// itself; only the resulting access token is needed here.
func (m *Manager) authorize(ctx context.Context) (string, error) {
	token, err := m.authorizer.Authorize(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// TokenSource adapts the Manager to oauth2.TokenSource for use with
// oauth2.Transport. The given context bounds every token acquisition made
// through the returned source.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &contextTokenSource{ctx: ctx, manager: m}
}

// Scope returns the provider scope string the manager requests.
func (m *Manager) Scope() string {
	return strings.Join(m.oauth.Scopes, " ")
}

type contextTokenSource struct {
	ctx     context.Context
	manager *Manager
}

// Compile-time check that contextTokenSource implements oauth2.TokenSource.
var _ oauth2.TokenSource = (*contextTokenSource)(nil)

func (s *contextTokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.manager.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}
