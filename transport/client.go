// ABOUTME: HTTP transport engine with timeout, retry/backoff, and cache read-through
// ABOUTME: All remote traffic for the sync layer goes through Client.Do
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"
)

const previewLimit = 200

// AuthProvider supplies bearer credentials for outgoing requests. The
// transport engine asks it to refresh before non-auth calls and to
// discard its credential when the server answers 401/403.
type AuthProvider interface {
	AuthHeader() string
	EnsureFresh(ctx context.Context) error
	Discard()
}

// Options configures a Client. Zero values fall back to the production
// defaults; tests shrink the delays.
type Options struct {
	BaseURL        string
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	CacheTTL       time.Duration
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// Request describes one logical call. Cacheable requests are
// side-effect free and may be served from the response cache;
// everything else bypasses the cache and invalidates matching entries.
type Request struct {
	Method    string
	Endpoint  string
	Body      any
	Headers   map[string]string
	Cacheable bool
}

// Response is the outcome of a successful call. Payload is nil when
// the server returned no decodable body.
type Response struct {
	Status    int
	Payload   *Payload
	FromCache bool
}

// Client issues requests with per-attempt timeouts, bounded retries,
// and read-path caching.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	cache          *responseCache
	logger         *log.Logger
	auth           AuthProvider
	maxAttempts    int
	attemptTimeout time.Duration
	baseDelay      time.Duration
	maxDelay       time.Duration
}

// NewClient creates a transport client. The cache is owned by the
// client instance so each session gets isolated state.
func NewClient(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = defaultAttemptTimeout
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		cache:          newResponseCache(opts.CacheTTL),
		logger:         logger.With("component", "transport"),
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		baseDelay:      opts.BaseDelay,
		maxDelay:       opts.MaxDelay,
	}
}

// SetAuth attaches the credential manager. Set after construction
// because the manager itself sends its renewal calls through this client.
func (c *Client) SetAuth(auth AuthProvider) {
	c.auth = auth
}

// ClearCache drops every cached response. Called on user switch so
// cross-user data is never served.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// InvalidateCache drops cached responses whose key contains the
// fragment. Callers pass a collection name after mutating it so stale
// reads of that collection are never served.
func (c *Client) InvalidateCache(fragment string) {
	c.cache.invalidate(fragment)
}

// isAuthEndpoint reports whether the endpoint is part of the
// authentication surface. Those calls skip the freshness check to
// avoid renewal depending on itself.
func isAuthEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "/auth/")
}

// Do performs the request, retrying transient failures with
// exponential backoff. Cacheable hits short-circuit the network
// entirely; mutations invalidate matching cache entries on success.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	bodyJSON, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	url := c.baseURL + req.Endpoint
	key := cacheKey(req.Method, url, bodyJSON)

	if req.Cacheable {
		if payload, ok := c.cache.get(key); ok {
			return &Response{Status: http.StatusOK, Payload: payload, FromCache: true}, nil
		}
	}

	if c.auth != nil && !isAuthEndpoint(req.Endpoint) {
		if err := c.auth.EnsureFresh(ctx); err != nil {
			// Proceed unauthenticated; the server will answer 401.
			c.logger.Warn("credential refresh failed", "error", err)
		}
	}

	correlationID := ulid.Make().String()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, req, url, bodyJSON, correlationID, attempt)
		if err == nil {
			if req.Cacheable {
				c.cache.set(key, resp.Payload)
			} else {
				c.cache.invalidate(req.Endpoint)
			}
			return resp, nil
		}
		lastErr = err

		if IsAuthError(err) {
			if c.auth != nil {
				c.auth.Discard()
			}
			return nil, err
		}
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := nextDelay(attempt, c.baseDelay, c.maxDelay)
		c.logger.Warn("transient failure, retrying",
			"correlation_id", correlationID,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", req.Endpoint, c.maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request, url, bodyJSON, correlationID string, attempt int) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	var reader io.Reader
	if bodyJSON != "" {
		reader = bytes.NewReader([]byte(bodyJSON))
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if bodyJSON != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if c.auth != nil && httpReq.Header.Get("Authorization") == "" {
		if header := c.auth.AuthHeader(); header != "" {
			httpReq.Header.Set("Authorization", header)
		}
	}

	c.logger.Debug("attempt",
		"correlation_id", correlationID,
		"method", req.Method,
		"endpoint", req.Endpoint,
		"attempt", attempt)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &RequestError{
				Message:       fmt.Sprintf("attempt timed out after %s", c.attemptTimeout),
				CorrelationID: correlationID,
			}
		}
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, &RequestError{
			Status:        httpResp.StatusCode,
			Message:       errorMessage(body),
			CorrelationID: correlationID,
		}
	}

	payload, decodeErr := decodePayload(httpResp.Header.Get("Content-Type"), body)
	if decodeErr != nil {
		// A bad body must not crash the call chain; log diagnostics
		// and hand back an explicit no-payload result.
		c.logger.Error("response decode failed",
			"correlation_id", correlationID,
			"status", httpResp.StatusCode,
			"bytes", len(body),
			"preview", preview(body),
			"error", decodeErr)
		payload = nil
	}

	return &Response{Status: httpResp.StatusCode, Payload: payload}, nil
}

func encodeBody(body any) (string, error) {
	if body == nil {
		return "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// errorMessage pulls a server-provided error string out of a failure
// body when one exists, otherwise previews the raw bytes.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if msg := strings.TrimSpace(string(preview(body))); msg != "" {
		return msg
	}
	return "no error detail"
}

func preview(body []byte) []byte {
	if len(body) > previewLimit {
		return body[:previewLimit]
	}
	return body
}
