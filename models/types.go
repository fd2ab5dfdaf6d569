// ABOUTME: Canonical data models for the lead sync layer
// ABOUTME: Defines Thread, Message, Conversation, EV score history, and result envelope
package models

import (
	"sort"
	"time"
)

// Thread is the persistent metadata record for one conversation.
// LastMessageAt is always recomputed locally from the thread's own
// messages; server-supplied values have been observed stale.
type Thread struct {
	ConversationID string    `json:"conversation_id"`
	LeadName       string    `json:"lead_name"`
	ClientEmail    string    `json:"client_email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Location       string    `json:"location,omitempty"`
	Flag           bool      `json:"flag"`
	FlagForReview  bool      `json:"flag_for_review"`
	Spam           bool      `json:"spam"`
	Completed      bool      `json:"completed"`
	Read           bool      `json:"read"`
	Busy           bool      `json:"busy"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// Message direction constants.
const (
	MessageInbound  = "inbound"
	MessageOutbound = "outbound"
)

// Message is one inbound/outbound communication unit within a thread.
// Timestamp preserves the origin string; Date is the locally parsed
// value and is always valid (invalid inputs fall back to the epoch).
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Sender         string         `json:"sender,omitempty"`
	Recipient      string         `json:"recipient,omitempty"`
	Body           string         `json:"body,omitempty"`
	Timestamp      string         `json:"timestamp,omitempty"`
	Date           time.Time      `json:"date"`
	Type           string         `json:"type"`
	EVScores       []EVScoreEntry `json:"ev_scores,omitempty"`
	EVStatus       string         `json:"ev_status,omitempty"`
}

// EVScoreEntry is one scoring event in a message's engagement-value history.
type EVScoreEntry struct {
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Factors    []string  `json:"factors,omitempty"`
}

// EV score status constants. Derived from the last two history entries.
const (
	EVStatusInitial   = "initial"
	EVStatusImproving = "improving"
	EVStatusDeclining = "declining"
	EVStatusStable    = "stable"
)

// DeriveEVStatus computes the score trend from an ordered history.
// The history must already be in chronological order.
func DeriveEVStatus(history []EVScoreEntry) string {
	if len(history) <= 1 {
		return EVStatusInitial
	}
	latest := history[len(history)-1].Score
	previous := history[len(history)-2].Score
	switch {
	case latest > previous:
		return EVStatusImproving
	case latest < previous:
		return EVStatusDeclining
	default:
		return EVStatusStable
	}
}

// CurrentEVScore returns the latest score in the history, or 0 when empty.
func CurrentEVScore(history []EVScoreEntry) float64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1].Score
}

// Conversation is the aggregate of one thread and its messages.
// Messages are deduplicated by ID and held in ascending Date order;
// conversation lists are held descending by Thread.LastMessageAt.
type Conversation struct {
	Thread   Thread    `json:"thread"`
	Messages []Message `json:"messages"`
}

// SortConversations orders the aggregate list descending by
// LastMessageAt, ties broken by conversation ID. Every consumer relies
// on this order instead of re-sorting.
func SortConversations(conversations []Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		left, right := conversations[i].Thread.LastMessageAt, conversations[j].Thread.LastMessageAt
		if left.Equal(right) {
			return conversations[i].Thread.ConversationID < conversations[j].Thread.ConversationID
		}
		return left.After(right)
	})
}

// ThreadPatch is a partial update to thread fields. Nil fields are
// left untouched when the patch is applied.
type ThreadPatch struct {
	LeadName      *string `json:"lead_name,omitempty"`
	ClientEmail   *string `json:"client_email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Location      *string `json:"location,omitempty"`
	Flag          *bool   `json:"flag,omitempty"`
	FlagForReview *bool   `json:"flag_for_review,omitempty"`
	Spam          *bool   `json:"spam,omitempty"`
	Completed     *bool   `json:"completed,omitempty"`
	Read          *bool   `json:"read,omitempty"`
	Busy          *bool   `json:"busy,omitempty"`
}

// Apply merges the patch into a thread, preserving untouched fields.
func (p ThreadPatch) Apply(t *Thread) {
	if p.LeadName != nil {
		t.LeadName = *p.LeadName
	}
	if p.ClientEmail != nil {
		t.ClientEmail = *p.ClientEmail
	}
	if p.Phone != nil {
		t.Phone = *p.Phone
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Flag != nil {
		t.Flag = *p.Flag
	}
	if p.FlagForReview != nil {
		t.FlagForReview = *p.FlagForReview
	}
	if p.Spam != nil {
		t.Spam = *p.Spam
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Read != nil {
		t.Read = *p.Read
	}
	if p.Busy != nil {
		t.Busy = *p.Busy
	}
}

// IsZero reports whether the patch changes nothing.
func (p ThreadPatch) IsZero() bool {
	return p.LeadName == nil && p.ClientEmail == nil && p.Phone == nil &&
		p.Location == nil && p.Flag == nil && p.FlagForReview == nil &&
		p.Spam == nil && p.Completed == nil && p.Read == nil && p.Busy == nil
}

// Fields returns the patch as a map keyed by wire field name, for use
// as the update_data body of an update request.
func (p ThreadPatch) Fields() map[string]any {
	fields := map[string]any{}
	if p.LeadName != nil {
		fields["lead_name"] = *p.LeadName
	}
	if p.ClientEmail != nil {
		fields["client_email"] = *p.ClientEmail
	}
	if p.Phone != nil {
		fields["phone"] = *p.Phone
	}
	if p.Location != nil {
		fields["location"] = *p.Location
	}
	if p.Flag != nil {
		fields["flag"] = *p.Flag
	}
	if p.FlagForReview != nil {
		fields["flag_for_review"] = *p.FlagForReview
	}
	if p.Spam != nil {
		fields["spam"] = *p.Spam
	}
	if p.Completed != nil {
		fields["completed"] = *p.Completed
	}
	if p.Read != nil {
		fields["read"] = *p.Read
	}
	if p.Busy != nil {
		fields["busy"] = *p.Busy
	}
	return fields
}

// OperationResult is the envelope every domain operation returns to
// presentation code. Callers check Success instead of catching errors.
type OperationResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// OK wraps a payload in a successful result.
func OK(data any) OperationResult {
	return OperationResult{Success: true, Data: data}
}

// Fail wraps an error in a failed result.
func Fail(status int, err error) OperationResult {
	result := OperationResult{Success: false, Status: status}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// SyncState tracks the last refresh outcome for one remote service.
type SyncState struct {
	Service      string     `json:"service"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
