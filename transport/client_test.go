package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:   serverURL,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Logger:    log.New(io.Discard),
	})
}

func TestDoRetryBound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.Error(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls), "a persistent 503 makes exactly 3 attempts")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusServiceUnavailable, reqErr.Status)
}

func TestDoNoRetryOnAuthFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.Error(t, err)
	require.True(t, IsAuthError(err))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "401 must not be retried")
}

func TestDoRecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"conversation_id":"c1"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.NotNil(t, resp.Payload)
	require.Len(t, resp.Payload.Records, 1)
}

func TestDoCacheShortCircuit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"conversation_id":"c1"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	req := Request{
		Method:    http.MethodPost,
		Endpoint:  "/api/query",
		Body:      map[string]any{"collection_name": "conversations"},
		Cacheable: true,
	}

	first, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "two identical reads within TTL hit the network once")

	// A different body is a different signature.
	other := req
	other.Body = map[string]any{"collection_name": "events"}
	third, err := client.Do(context.Background(), other)
	require.NoError(t, err)
	require.False(t, third.FromCache)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDoMutationInvalidatesCache(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	read := Request{Method: http.MethodPost, Endpoint: "/api/query", Cacheable: true}

	_, err := client.Do(context.Background(), read)
	require.NoError(t, err)

	// Mutation against the same endpoint drops the cached read.
	_, err = client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.NoError(t, err)

	_, err = client.Do(context.Background(), read)
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls), "read after mutation must refetch")
}

func TestDoCacheExpiry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	now := time.Now()
	client.cache.now = func() time.Time { return now }

	req := Request{Method: http.MethodPost, Endpoint: "/api/query", Cacheable: true}
	_, err := client.Do(context.Background(), req)
	require.NoError(t, err)

	// Step past the TTL; the entry is treated as absent.
	client.cache.now = func() time.Time { return now.Add(DefaultCacheTTL + time.Second) }
	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDoEmptyBodyIsNoPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/ack"})
	require.NoError(t, err)
	require.Nil(t, resp.Payload)
}

func TestDoUndecodableBodyIsLoggedNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [broken`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.NoError(t, err, "decode failures must not crash the call chain")
	require.Nil(t, resp.Payload)
	require.Equal(t, http.StatusOK, resp.Status)
}

type fakeAuth struct {
	header    string
	fresh     int32
	discarded int32
}

func (f *fakeAuth) AuthHeader() string { return f.header }

func (f *fakeAuth) EnsureFresh(ctx context.Context) error {
	atomic.AddInt32(&f.fresh, 1)
	return nil
}

func (f *fakeAuth) Discard() {
	atomic.AddInt32(&f.discarded, 1)
	f.header = ""
}

func TestDoAttachesAuthHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	auth := &fakeAuth{header: "Bearer tok-123"}
	client.SetAuth(auth)

	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.EqualValues(t, 1, atomic.LoadInt32(&auth.fresh))
}

func TestDoAuthEndpointSkipsFreshness(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"fresh"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	auth := &fakeAuth{header: "Bearer stale"}
	client.SetAuth(auth)

	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/auth/refresh"})
	require.NoError(t, err)
	require.EqualValues(t, 0, atomic.LoadInt32(&auth.fresh), "auth endpoints must not trigger the freshness check")
}

func TestDoDropsCredentialOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	auth := &fakeAuth{header: "Bearer expired"}
	client.SetAuth(auth)

	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&auth.discarded))
}

func TestDoAttemptTimeoutIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(100 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewClient(Options{
		BaseURL:        server.URL,
		AttemptTimeout: 20 * time.Millisecond,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Logger:         log.New(io.Discard),
	})

	resp, err := client.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/api/query"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}
