// Package session owns the process-wide authenticated TestZeus session.
//
// A Manager starts empty. Nothing authenticates until a caller asks for it,
// either explicitly through Authenticate or implicitly through Acquire, which
// falls back to credentials from the environment. The current session is
// replaced wholesale with an atomic pointer swap, so readers never observe a
// half-built session and concurrent authentications resolve last-writer-wins.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

// Kind classifies authentication failures.
type Kind int

const (
	MissingCredentials Kind = iota + 1
	HandshakeFailed
)

func (k Kind) String() string {
	switch k {
	case MissingCredentials:
		return "missing credentials"
	case HandshakeFailed:
		return "handshake failed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AuthError is returned for every authentication failure.
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Session is one authenticated connection to TestZeus.
type Session struct {
	Email   string
	BaseURL string
	Client  *testzeus.Client
}

// ClientFactory builds an unauthenticated client for creds.
type ClientFactory func(creds testzeus.Credentials) *testzeus.Client

// Manager holds the current session.
type Manager struct {
	current   atomic.Pointer[Session]
	newClient ClientFactory
	lookupEnv func() testzeus.Credentials
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClientFactory overrides how clients are built.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithEnvironment overrides where fallback credentials come from.
func WithEnvironment(lookup func() testzeus.Credentials) Option {
	return func(m *Manager) {
		m.lookupEnv = lookup
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		newClient: testzeus.NewClient,
		lookupEnv: testzeus.CredentialsFromEnv,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the stored session, or nil.
func (m *Manager) Current() *Session {
	return m.current.Load()
}

// Authenticate fills absent fields of creds from the environment, performs
// the handshake and, on success, replaces the current session. A failed
// attempt leaves the previous session in place.
func (m *Manager) Authenticate(ctx context.Context, creds testzeus.Credentials) (*Session, error) {
	creds = creds.WithFallback(m.lookupEnv())
	if err := creds.Validate(); err != nil {
		return nil, &AuthError{Kind: MissingCredentials, Err: err}
	}

	client := m.newClient(creds)
	if err := client.Authenticate(ctx); err != nil {
		m.logger.Warn("TestZeus authentication failed", "credentials", creds, "error", err)
		return nil, &AuthError{Kind: HandshakeFailed, Err: err}
	}

	s := &Session{
		Email:   creds.Email,
		BaseURL: creds.Endpoint(),
		Client:  client,
	}
	m.current.Store(s)

	m.logger.Info("TestZeus session established", "credentials", creds)
	return s, nil
}

// EnsureValid reports whether the current session can be used. With no
// session it returns false without side effects. Otherwise the client
// revalidates its token, refreshing it when close to expiry.
func (m *Manager) EnsureValid(ctx context.Context) bool {
	s := m.current.Load()
	if s == nil {
		return false
	}

	if err := s.Client.EnsureAuthenticated(ctx); err != nil {
		m.logger.Debug("TestZeus session revalidation failed", "base_url", s.BaseURL, "error", err)
		return false
	}
	return true
}

// Acquire returns a usable client, authenticating from the environment when
// the current session is absent or no longer valid.
func (m *Manager) Acquire(ctx context.Context) (*testzeus.Client, error) {
	if m.EnsureValid(ctx) {
		if s := m.current.Load(); s != nil {
			return s.Client, nil
		}
	}

	s, err := m.Authenticate(ctx, testzeus.Credentials{})
	if err != nil {
		return nil, err
	}
	return s.Client, nil
}
