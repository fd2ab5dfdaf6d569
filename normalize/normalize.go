// ABOUTME: Normalization pipeline converting raw server records into canonical conversations
// ABOUTME: Resolves field-name fallback chains, derives EV history, and enforces list ordering
package normalize

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/openhouse/leadsync/models"
)

// UnknownLead is the terminal fallback for a thread with no resolvable
// contact name.
const UnknownLead = "Unknown Lead"

// Field fallback chains. Document-source field names vary across
// ingestion paths; the order is deliberate policy, not incidental.
var (
	idFields        = []string{"conversation_id", "thread_id", "id"}
	nameFields      = []string{"lead_name", "source_name", "name", "client_name", "sender_name"}
	emailFields     = []string{"client_email", "email", "sender_email", "source_email"}
	phoneFields     = []string{"phone", "phone_number", "client_phone", "contact_phone"}
	locationFields  = []string{"location", "city", "property_location", "address"}
	lastSeenFields  = []string{"last_message_at", "lastMessageAt", "updated_at", "timestamp"}
	msgIDFields     = []string{"id", "message_id", "_id"}
	msgSenderFields = []string{"sender", "from", "sender_email"}
	msgRecipFields  = []string{"recipient", "to", "recipient_email"}
	msgBodyFields   = []string{"body", "content", "text", "message"}
	msgTimeFields   = []string{"timestamp", "created_at", "date", "sent_at"}
	msgTypeFields   = []string{"type", "direction"}
	evFields        = []string{"ev_scores", "score_history", "ev_score_history"}
)

// Pipeline converts raw, field-inconsistent server records into the
// canonical conversation model. It is stateless apart from its logger.
type Pipeline struct {
	logger *log.Logger
}

// New creates a pipeline that logs skipped records through the given logger.
func New(logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{logger: logger.With("component", "normalize")}
}

// Normalize converts a batch of raw records into canonical conversations.
// Invalid entries are skipped so one malformed record cannot fail the
// batch. The output is deduplicated, ordered descending by
// LastMessageAt, and identical for identical input.
func (p *Pipeline) Normalize(raw []any) []models.Conversation {
	conversations := make([]models.Conversation, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for i, entry := range raw {
		record, ok := entry.(map[string]any)
		if !ok {
			p.logger.Warn("skipping non-object record", "index", i, "type", fmt.Sprintf("%T", entry))
			continue
		}

		conv, err := p.normalizeRecord(record)
		if err != nil {
			p.logger.Warn("skipping invalid record", "index", i, "error", err)
			continue
		}
		if seen[conv.Thread.ConversationID] {
			continue
		}
		seen[conv.Thread.ConversationID] = true
		conversations = append(conversations, conv)
	}

	models.SortConversations(conversations)
	return conversations
}

func (p *Pipeline) normalizeRecord(record map[string]any) (models.Conversation, error) {
	id := stringValue(record, idFields...)
	if id == "" {
		return models.Conversation{}, fmt.Errorf("record has no conversation id")
	}

	thread := models.Thread{
		ConversationID: id,
		LeadName:       stringValueOr(record, UnknownLead, nameFields...),
		ClientEmail:    stringValue(record, emailFields...),
		Phone:          stringValue(record, phoneFields...),
		Location:       stringValue(record, locationFields...),
		Flag:           boolValue(record, "flag"),
		FlagForReview:  boolValue(record, "flag_for_review", "flagForReview"),
		Spam:           boolValue(record, "spam"),
		Completed:      boolValue(record, "completed"),
		Read:           boolValue(record, "read"),
		Busy:           boolValue(record, "busy"),
	}

	messages := p.normalizeMessages(id, record)

	// LastMessageAt is derived from the messages themselves; the
	// server value is trusted only when there are none.
	if len(messages) > 0 {
		thread.LastMessageAt = messages[len(messages)-1].Date
	} else if when, ok := ParseTimestamp(firstValue(record, lastSeenFields...)); ok {
		thread.LastMessageAt = when
	} else {
		thread.LastMessageAt = safeDefault
	}

	return models.Conversation{Thread: thread, Messages: messages}, nil
}

func (p *Pipeline) normalizeMessages(conversationID string, record map[string]any) []models.Message {
	rawList, ok := record["messages"].([]any)
	if !ok || len(rawList) == 0 {
		return []models.Message{}
	}

	messages := make([]models.Message, 0, len(rawList))
	for i, entry := range rawList {
		rawMsg, ok := entry.(map[string]any)
		if !ok {
			p.logger.Warn("skipping non-object message", "conversation_id", conversationID, "index", i)
			continue
		}
		messages = append(messages, p.normalizeMessage(conversationID, i, rawMsg))
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Date.Equal(messages[j].Date) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Date.Before(messages[j].Date)
	})

	return dedupeMessages(messages)
}

func (p *Pipeline) normalizeMessage(conversationID string, index int, raw map[string]any) models.Message {
	id := stringValue(raw, msgIDFields...)
	if id == "" {
		// Deterministic synthetic ID keeps dedupe and re-normalization stable.
		id = fmt.Sprintf("%s:msg:%d", conversationID, index)
	}

	origin := stringValue(raw, msgTimeFields...)
	date, ok := ParseTimestamp(firstValue(raw, msgTimeFields...))
	if !ok {
		p.logger.Debug("unparseable message timestamp", "conversation_id", conversationID, "message_id", id, "raw", origin)
	}

	history := p.normalizeScoreHistory(firstValue(raw, evFields...))

	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         stringValue(raw, msgSenderFields...),
		Recipient:      stringValue(raw, msgRecipFields...),
		Body:           stringValue(raw, msgBodyFields...),
		Timestamp:      origin,
		Date:           date,
		Type:           normalizeDirection(stringValue(raw, msgTypeFields...)),
		EVScores:       history,
		EVStatus:       models.DeriveEVStatus(history),
	}
}

// normalizeScoreHistory rebuilds the EV history in chronological order.
// The history is recomputed on every ingestion, never mutated in place.
func (p *Pipeline) normalizeScoreHistory(raw any) []models.EVScoreEntry {
	rawList, ok := raw.([]any)
	if !ok || len(rawList) == 0 {
		return nil
	}

	history := make([]models.EVScoreEntry, 0, len(rawList))
	for _, entry := range rawList {
		rawEntry, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		when, _ := ParseTimestamp(firstValue(rawEntry, "timestamp", "created_at", "date"))
		history = append(history, models.EVScoreEntry{
			Score:      floatValue(rawEntry, "score", "value"),
			Timestamp:  when,
			Reason:     stringValue(rawEntry, "reason"),
			Confidence: floatValue(rawEntry, "confidence"),
			Factors:    stringSlice(rawEntry["factors"]),
		})
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history
}

func dedupeMessages(messages []models.Message) []models.Message {
	seen := make(map[string]bool, len(messages))
	out := messages[:0]
	for _, msg := range messages {
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		out = append(out, msg)
	}
	return out
}

func normalizeDirection(raw string) string {
	switch raw {
	case models.MessageOutbound, "sent", "out", "outgoing":
		return models.MessageOutbound
	default:
		return models.MessageInbound
	}
}
