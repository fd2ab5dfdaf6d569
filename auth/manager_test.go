package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/openhouse/leadsync/transport"
)

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "agent-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestManager(t *testing.T, serverURL string) *Manager {
	t.Helper()
	client := transport.NewClient(transport.Options{
		BaseURL:   serverURL,
		BaseDelay: time.Millisecond,
		Logger:    log.New(io.Discard),
	})
	mgr, err := NewManager(client, filepath.Join(t.TempDir(), "credentials.json"), log.New(io.Discard))
	require.NoError(t, err)
	client.SetAuth(mgr)
	return mgr
}

func TestAuthHeader(t *testing.T) {
	mgr := newTestManager(t, "http://127.0.0.1:0")
	require.Empty(t, mgr.AuthHeader())

	require.NoError(t, mgr.SetToken("abc123"))
	require.Equal(t, "Bearer abc123", mgr.AuthHeader())

	mgr.Discard()
	require.Empty(t, mgr.AuthHeader())
}

func TestEnsureFreshSkipsHealthyToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	mgr := newTestManager(t, server.URL)
	require.NoError(t, mgr.SetToken(signedToken(t, time.Hour)))

	require.NoError(t, mgr.EnsureFresh(context.Background()))
	require.EqualValues(t, 0, atomic.LoadInt32(&calls), "healthy tokens must not hit the renewal endpoint")
}

func TestEnsureFreshRenewsExpiringToken(t *testing.T) {
	fresh := signedToken(t, 2*time.Hour)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DefaultRenewEndpoint, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"token":"` + fresh + `"}}`))
	}))
	defer server.Close()

	mgr := newTestManager(t, server.URL)
	require.NoError(t, mgr.SetToken(signedToken(t, time.Minute)))

	require.NoError(t, mgr.EnsureFresh(context.Background()))
	require.Equal(t, "Bearer "+fresh, mgr.AuthHeader(), "renewed token must be swapped in atomically")
}

func TestEnsureFreshTopLevelTokenShape(t *testing.T) {
	fresh := signedToken(t, 2*time.Hour)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + fresh + `"}`))
	}))
	defer server.Close()

	mgr := newTestManager(t, server.URL)
	require.NoError(t, mgr.SetToken(signedToken(t, time.Minute)))

	require.NoError(t, mgr.EnsureFresh(context.Background()))
	require.Equal(t, "Bearer "+fresh, mgr.AuthHeader())
}

func TestEnsureFreshDiscardsOnRenewalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	mgr := newTestManager(t, server.URL)
	require.NoError(t, mgr.SetToken(signedToken(t, time.Minute)))

	err := mgr.EnsureFresh(context.Background())
	require.Error(t, err)
	require.Empty(t, mgr.AuthHeader(), "stale token must be discarded, not retried indefinitely")

	// A follow-up check with no token held is a no-op.
	require.NoError(t, mgr.EnsureFresh(context.Background()))
}

func TestLogin(t *testing.T) {
	issued := signedToken(t, 2*time.Hour)
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DefaultLoginEndpoint, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"token":"` + issued + `"}}`))
	}))
	defer server.Close()

	mgr := newTestManager(t, server.URL)
	require.NoError(t, mgr.Login(context.Background(), "agent@example.com", "secret"))
	require.Equal(t, "Bearer "+issued, mgr.AuthHeader())
	require.Equal(t, "agent@example.com", body["email"])
}

func TestLoginRejectsTokenlessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	mgr := newTestManager(t, server.URL)
	require.Error(t, mgr.Login(context.Background(), "agent@example.com", "secret"))
	require.Empty(t, mgr.AuthHeader())
}

func TestTokenSlotPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	client := transport.NewClient(transport.Options{BaseURL: "http://127.0.0.1:0", Logger: log.New(io.Discard)})

	mgr, err := NewManager(client, path, log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, mgr.SetToken("persisted-token"))

	reloaded, err := NewManager(client, path, log.New(io.Discard))
	require.NoError(t, err)
	require.Equal(t, "Bearer persisted-token", reloaded.AuthHeader())
}

func TestTokenExpiry(t *testing.T) {
	_, err := tokenExpiry("not-a-jwt")
	require.Error(t, err)

	token := signedToken(t, time.Hour)
	expiry, err := tokenExpiry(token)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)
}
