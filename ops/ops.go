// ABOUTME: Domain operations facade for presentation code
// ABOUTME: Composes transport, auth, store, and normalization into high-level calls
package ops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/openhouse/leadsync/db"
	"github.com/openhouse/leadsync/models"
	"github.com/openhouse/leadsync/normalize"
	"github.com/openhouse/leadsync/store"
	"github.com/openhouse/leadsync/transport"
)

const (
	queryEndpoint  = "/api/data/query"
	updateEndpoint = "/api/data/update"
	deleteEndpoint = "/api/data/delete"
	sendEndpoint   = "/api/messages/send"

	conversationCollection = "conversations"
	conversationKey        = "conversation_id"

	// SyncService names this data feed in the sync-state log.
	SyncService = "conversations"
)

// Deps are the collaborators a Session needs. Everything is injected so
// tests can assemble isolated sessions.
type Deps struct {
	Client      *transport.Client
	Auth        transport.AuthProvider
	Store       *store.Store
	SyncDB      *sql.DB
	Logger      *log.Logger
	AccountID   string
	StaleWindow time.Duration
}

// Session is the single entry point for domain operations. One session
// serves one authenticated user; Reset must be called before reuse.
type Session struct {
	client      *transport.Client
	auth        transport.AuthProvider
	store       *store.Store
	syncDB      *sql.DB
	pipeline    *normalize.Pipeline
	logger      *log.Logger
	accountID   string
	staleWindow time.Duration
}

// NewSession assembles a session from its collaborators.
func NewSession(deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	window := deps.StaleWindow
	if window <= 0 {
		window = store.DefaultStaleWindow
	}
	return &Session{
		client:      deps.Client,
		auth:        deps.Auth,
		store:       deps.Store,
		syncDB:      deps.SyncDB,
		pipeline:    normalize.New(logger),
		logger:      logger.With("component", "ops"),
		accountID:   deps.AccountID,
		staleWindow: window,
	}
}

// FetchAllThreads returns every conversation, serving the local store
// while it is fresh and refetching otherwise. On network failure with
// local data present, the stale local data is served.
func (s *Session) FetchAllThreads(ctx context.Context) models.OperationResult {
	return s.fetchAll(ctx, false)
}

// RefreshNow forces a refetch regardless of local freshness. Used by
// the background refresher and explicit user refresh.
func (s *Session) RefreshNow(ctx context.Context) models.OperationResult {
	return s.fetchAll(ctx, true)
}

func (s *Session) fetchAll(ctx context.Context, force bool) models.OperationResult {
	if !force && s.store.HasData() && !s.store.IsStale(s.staleWindow) {
		conversations, err := s.store.GetAll()
		if err != nil {
			return models.Fail(0, fmt.Errorf("reading local snapshots: %w", err))
		}
		return models.OK(conversations)
	}

	s.recordSyncStatus(models.SyncStatusSyncing, nil)

	resp, err := s.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: queryEndpoint,
		Body: map[string]any{
			"collection_name": conversationCollection,
			"filters":         map[string]any{},
			"account_id":      s.accountID,
		},
		Cacheable: !force,
	})
	if err != nil {
		s.recordSyncError(err)
		if s.store.HasData() {
			// Stale data beats no data when the network is down.
			s.logger.Warn("refresh failed, serving local data", "error", err)
			conversations, localErr := s.store.GetAll()
			if localErr == nil {
				return models.OK(conversations)
			}
		}
		return models.Fail(statusOf(err), err)
	}

	if failErr := payloadFailure(resp.Payload); failErr != nil {
		s.recordSyncError(failErr)
		return models.Fail(resp.Status, failErr)
	}

	conversations := s.pipeline.Normalize(payloadRecords(resp.Payload))
	if resp.FromCache {
		// A cache hit is not a refresh; leave the last sync time alone.
		s.recordSyncStatus(models.SyncStatusIdle, nil)
		return models.OK(conversations)
	}
	if err := s.store.UpsertMany(conversations); err != nil {
		s.recordSyncError(err)
		return models.Fail(0, fmt.Errorf("persisting snapshots: %w", err))
	}
	s.recordSyncCompleted()
	return models.OK(conversations)
}

// FetchThread returns one conversation by ID, preferring the fresh
// local copy.
func (s *Session) FetchThread(ctx context.Context, id string) models.OperationResult {
	if !s.store.IsStale(s.staleWindow) {
		if conv, err := s.store.Get(id); err == nil {
			return models.OK(*conv)
		}
	}

	resp, err := s.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: queryEndpoint,
		Body: map[string]any{
			"collection_name": conversationCollection,
			"key_name":        conversationKey,
			"key_value":       id,
			"account_id":      s.accountID,
		},
		Cacheable: true,
	})
	if err != nil {
		// A local copy, even stale, still answers a point read.
		if conv, localErr := s.store.Get(id); localErr == nil {
			s.logger.Warn("point fetch failed, serving local data", "id", id, "error", err)
			return models.OK(*conv)
		}
		return models.Fail(statusOf(err), err)
	}

	if failErr := payloadFailure(resp.Payload); failErr != nil {
		return models.Fail(resp.Status, failErr)
	}

	conversations := s.pipeline.Normalize(payloadRecords(resp.Payload))
	if len(conversations) == 0 {
		return models.Fail(http.StatusNotFound, fmt.Errorf("conversation %s not found", id))
	}
	if err := s.store.UpsertMany(conversations[:1]); err != nil {
		return models.Fail(0, fmt.Errorf("persisting snapshot: %w", err))
	}
	return models.OK(conversations[0])
}

// UpdateThread applies a partial thread update optimistically, then
// confirms it remotely. A remote failure rolls the store back to its
// exact pre-update state.
func (s *Session) UpdateThread(ctx context.Context, id string, patch models.ThreadPatch) models.OperationResult {
	if patch.IsZero() {
		return models.Fail(http.StatusBadRequest, errors.New("empty patch"))
	}

	snap, err := s.store.Snapshot()
	if err != nil {
		return models.Fail(0, fmt.Errorf("capturing rollback snapshot: %w", err))
	}
	if err := s.store.PatchOne(id, patch); err != nil {
		return models.Fail(statusOfStore(err), err)
	}

	resp, err := s.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: updateEndpoint,
		Body: map[string]any{
			"collection_name": conversationCollection,
			"key_name":        conversationKey,
			"key_value":       id,
			"update_data":     patch.Fields(),
			"account_id":      s.accountID,
		},
	})
	if err == nil {
		err = payloadFailure(resp.Payload)
	}
	if err != nil {
		s.rollback(snap, "update", id)
		return models.Fail(statusOf(err), err)
	}
	s.client.InvalidateCache(conversationCollection)

	conv, err := s.store.Get(id)
	if err != nil {
		return models.Fail(statusOfStore(err), err)
	}
	return models.OK(*conv)
}

// DeleteThread removes a conversation optimistically, restoring it if
// the remote delete fails.
func (s *Session) DeleteThread(ctx context.Context, id string) models.OperationResult {
	snap, err := s.store.Snapshot()
	if err != nil {
		return models.Fail(0, fmt.Errorf("capturing rollback snapshot: %w", err))
	}
	if err := s.store.RemoveOne(id); err != nil {
		return models.Fail(statusOfStore(err), err)
	}

	resp, err := s.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: deleteEndpoint,
		Body: map[string]any{
			"collection_name": conversationCollection,
			"key_name":        conversationKey,
			"key_value":       id,
			"account_id":      s.accountID,
		},
	})
	if err == nil {
		err = payloadFailure(resp.Payload)
	}
	if err != nil {
		s.rollback(snap, "delete", id)
		return models.Fail(statusOf(err), err)
	}
	s.client.InvalidateCache(conversationCollection)
	return models.OK(id)
}

// MarkNotSpam clears both the spam flag and the review flag in one
// update. The two flags travel together on this path.
func (s *Session) MarkNotSpam(ctx context.Context, id string) models.OperationResult {
	notSpam := false
	noReview := false
	return s.UpdateThread(ctx, id, models.ThreadPatch{
		Spam:          &notSpam,
		FlagForReview: &noReview,
	})
}

// SendMessage appends an outbound message optimistically and delivers
// it. A delivery failure removes the speculative message again.
func (s *Session) SendMessage(ctx context.Context, id, body, recipient string) models.OperationResult {
	if body == "" {
		return models.Fail(http.StatusBadRequest, errors.New("empty message body"))
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Recipient:      recipient,
		Body:           body,
		Timestamp:      now.Format(time.RFC3339),
		Date:           now,
		Type:           models.MessageOutbound,
	}

	snap, err := s.store.Snapshot()
	if err != nil {
		return models.Fail(0, fmt.Errorf("capturing rollback snapshot: %w", err))
	}
	if err := s.store.AppendMessage(id, msg); err != nil {
		return models.Fail(statusOfStore(err), err)
	}

	resp, err := s.client.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: sendEndpoint,
		Body: map[string]any{
			"conversation_id": id,
			"message_id":      msg.ID,
			"body":            body,
			"recipient":       recipient,
			"account_id":      s.accountID,
		},
	})
	if err == nil {
		err = payloadFailure(resp.Payload)
	}
	if err != nil {
		s.rollback(snap, "send", id)
		return models.Fail(statusOf(err), err)
	}
	s.client.InvalidateCache(conversationCollection)
	return models.OK(msg)
}

// Reset tears down all per-user state: snapshots, cached responses, and
// the stored credential. Required before a different user signs in.
func (s *Session) Reset() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing snapshot store: %w", err)
	}
	s.client.ClearCache()
	if s.auth != nil {
		s.auth.Discard()
	}
	s.logger.Info("session state reset")
	return nil
}

func (s *Session) rollback(snap *store.Snapshot, operation, id string) {
	if err := s.store.Restore(snap); err != nil {
		s.logger.Error("rollback failed, local state may diverge",
			"operation", operation, "id", id, "error", err)
	}
}

func (s *Session) recordSyncStatus(status string, errMsg *string) {
	if s.syncDB == nil {
		return
	}
	if err := db.UpdateSyncStatus(s.syncDB, SyncService, status, errMsg); err != nil {
		s.logger.Warn("sync-state update failed", "error", err)
	}
}

func (s *Session) recordSyncError(cause error) {
	msg := cause.Error()
	s.recordSyncStatus(models.SyncStatusError, &msg)
}

func (s *Session) recordSyncCompleted() {
	if s.syncDB == nil {
		return
	}
	if err := db.MarkSyncCompleted(s.syncDB, SyncService); err != nil {
		s.logger.Warn("sync-state update failed", "error", err)
	}
}

// payloadFailure converts a server-reported failure envelope into an
// error. A 200 body carrying success:false is still a failure and must
// never be presented as data.
func payloadFailure(payload *transport.Payload) error {
	if payload == nil || payload.Success {
		return nil
	}
	if payload.Error != "" {
		return fmt.Errorf("server reported failure: %s", payload.Error)
	}
	return errors.New("server reported failure")
}

// payloadRecords flattens any payload shape into the raw record list
// the normalization pipeline expects.
func payloadRecords(payload *transport.Payload) []any {
	if payload == nil {
		return nil
	}
	if len(payload.Records) > 0 {
		return payload.Records
	}
	if payload.Object != nil {
		return []any{any(payload.Object)}
	}
	return nil
}

func statusOf(err error) int {
	var reqErr *transport.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

func statusOfStore(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return 0
}
