// ABOUTME: Bearer credential manager with proactive renewal
// ABOUTME: Persists the token slot and swaps in renewed tokens before expiry
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v4"

	"github.com/openhouse/leadsync/transport"
)

const (
	// renewalSkew is how much remaining lifetime triggers a proactive
	// renewal before the token actually expires.
	renewalSkew = 300 * time.Second

	// DefaultRenewEndpoint is the token renewal path. It lives under
	// the auth surface so the transport engine skips the freshness
	// check for it.
	DefaultRenewEndpoint = "/api/auth/refresh"

	// DefaultLoginEndpoint exchanges user credentials for a token.
	DefaultLoginEndpoint = "/api/auth/login"
)

// TokenPath returns the XDG-compliant path of the persisted token slot.
func TokenPath() string {
	return filepath.Join(xdg.DataHome, "leadsync", "credentials.json")
}

type tokenSlot struct {
	Token string `json:"token"`
}

// Manager holds the bearer token and renews it through the transport
// engine when its expiry claim is close. It implements
// transport.AuthProvider.
type Manager struct {
	mu            sync.Mutex
	client        *transport.Client
	path          string
	token         string
	renewEndpoint string
	logger        *log.Logger
	now           func() time.Time
}

// NewManager loads the persisted token slot and returns a manager that
// renews through the given client. A missing slot is not an error; the
// session simply starts unauthenticated.
func NewManager(client *transport.Client, path string, logger *log.Logger) (*Manager, error) {
	if path == "" {
		path = TokenPath()
	}
	if logger == nil {
		logger = log.Default()
	}

	m := &Manager{
		client:        client,
		path:          path,
		renewEndpoint: DefaultRenewEndpoint,
		logger:        logger.With("component", "auth"),
		now:           time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading token slot: %w", err)
	}
	var slot tokenSlot
	if err := json.Unmarshal(data, &slot); err != nil {
		// A corrupt slot is discarded rather than propagated.
		m.logger.Warn("discarding unreadable token slot", "path", path, "error", err)
		return m, nil
	}
	m.token = slot.Token
	return m, nil
}

// AuthHeader returns the Authorization header value, or "" when no
// credential is held.
func (m *Manager) AuthHeader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return ""
	}
	return "Bearer " + m.token
}

// SetToken stores and persists a new token (post-login, post-renewal).
func (m *Manager) SetToken(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return m.persist(token)
}

// Discard drops the held credential. Called on renewal failure and on
// 401/403 responses; subsequent calls proceed unauthenticated instead
// of looping on a dead token.
func (m *Manager) Discard() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("removing token slot failed", "error", err)
	}
}

// Login exchanges user credentials for a bearer token and stores it.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	resp, err := m.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: DefaultLoginEndpoint,
		Body:     map[string]any{"email": email, "password": password},
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.Payload == nil {
		return fmt.Errorf("login response carried no payload")
	}

	token, _ := resp.Payload.Object["token"].(string)
	if token == "" {
		return fmt.Errorf("login response carried no token")
	}

	if err := m.SetToken(token); err != nil {
		return err
	}
	m.logger.Info("signed in", "email", email)
	return nil
}

// EnsureFresh renews the token when its expiry claim has less than the
// renewal skew remaining. Tokens with no readable expiry are left
// alone; the server decides their fate.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token == "" {
		return nil
	}

	expiry, err := tokenExpiry(token)
	if err != nil {
		m.logger.Debug("token has no readable expiry claim", "error", err)
		return nil
	}
	if expiry.Sub(m.now()) >= renewalSkew {
		return nil
	}

	if err := m.renew(ctx, token); err != nil {
		m.Discard()
		return fmt.Errorf("token renewal failed: %w", err)
	}
	return nil
}

// renew exchanges the current token for a fresh one. The renewal call
// goes through the transport engine like any other request; because the
// endpoint is part of the auth surface it does not re-enter EnsureFresh.
func (m *Manager) renew(ctx context.Context, current string) error {
	resp, err := m.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: m.renewEndpoint,
		Body:     map[string]any{"token": current},
		Headers:  map[string]string{"Authorization": "Bearer " + current},
	})
	if err != nil {
		return err
	}
	if resp.Payload == nil {
		return fmt.Errorf("renewal response carried no payload")
	}

	// The renewal endpoint answers with the token under data.token or
	// at the top level depending on the deployment.
	fresh, _ := resp.Payload.Object["token"].(string)
	if fresh == "" {
		return fmt.Errorf("renewal response carried no token")
	}

	if err := m.SetToken(fresh); err != nil {
		return err
	}
	m.logger.Info("credential renewed")
	return nil
}

func (m *Manager) persist(token string) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.Marshal(tokenSlot{Token: token})
	if err != nil {
		return fmt.Errorf("encoding token slot: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("writing token slot: %w", err)
	}
	return nil
}

// tokenExpiry decodes the expiry claim without verifying the
// signature; verification is the server's job, we only need the clock.
func tokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
