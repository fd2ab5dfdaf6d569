// ABOUTME: Persisted keyed snapshot of canonical conversations
// ABOUTME: Tracks freshness and supports optimistic patches with rollback
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	badger "github.com/dgraph-io/badger/v3"

	"github.com/openhouse/leadsync/models"
)

// DefaultStaleWindow is how long store contents satisfy read
// operations before a refetch is forced. Deliberately longer than the
// transport cache TTL.
const DefaultStaleWindow = 10 * time.Minute

const (
	convPrefix   = "conv:"
	freshnessKey = "meta:refreshed_at"
)

// ErrNotFound is returned when a conversation is not in the store.
var ErrNotFound = errors.New("conversation not found")

// Store is the local mutation store: the only writer of persisted
// conversation snapshots. It is scoped to one authenticated user and
// must be cleared on user switch.
type Store struct {
	db     *badger.DB
	logger *log.Logger
	now    func() time.Time
}

// Open opens the store at the given directory.
func Open(path string, logger *log.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	return open(opts, logger)
}

// OpenInMemory opens a store that lives only for the process. Used by
// tests so every scenario gets an isolated instance.
func OpenInMemory(logger *log.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts, logger)
}

func open(opts badger.Options, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HasData reports whether any conversation snapshot is held.
func (s *Store) HasData() bool {
	found := false
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(convPrefix)})
		defer it.Close()
		it.Rewind()
		found = it.Valid()
		return nil
	})
	return found
}

// IsStale reports whether the last refresh is older than the window.
// A store that has never been refreshed is stale.
func (s *Store) IsStale(window time.Duration) bool {
	refreshedAt, ok := s.refreshedAt()
	if !ok {
		return true
	}
	return s.now().Sub(refreshedAt) > window
}

func (s *Store) refreshedAt() (time.Time, bool) {
	var when time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(freshnessKey))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return when.UnmarshalText(raw)
	})
	if err != nil {
		return time.Time{}, false
	}
	return when, true
}

// GetAll returns every held conversation in canonical order
// (descending LastMessageAt).
func (s *Store) GetAll() ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(convPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var conv models.Conversation
			if err := json.Unmarshal(raw, &conv); err != nil {
				return fmt.Errorf("decoding snapshot %s: %w", it.Item().Key(), err)
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	models.SortConversations(conversations)
	return conversations, nil
}

// Get returns one conversation by ID, or ErrNotFound.
func (s *Store) Get(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(convKey(id))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpsertMany writes a batch of canonical conversations and stamps the
// store fresh. Only normalized output ever enters here.
func (s *Store) UpsertMany(conversations []models.Conversation) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, conv := range conversations {
			if conv.Thread.ConversationID == "" {
				continue
			}
			raw, err := json.Marshal(conv)
			if err != nil {
				return fmt.Errorf("encoding conversation %s: %w", conv.Thread.ConversationID, err)
			}
			if err := txn.Set(convKey(conv.Thread.ConversationID), raw); err != nil {
				return err
			}
		}
		return s.stampFresh(txn)
	})
}

// PatchOne merges a partial thread update into an existing
// conversation. The messages and untouched thread fields survive. Used
// for optimistic updates ahead of network acknowledgment.
func (s *Store) PatchOne(id string, patch models.ThreadPatch) error {
	conv, err := s.Get(id)
	if err != nil {
		return err
	}
	patch.Apply(&conv.Thread)
	return s.put(*conv)
}

// AppendMessage adds a message to a conversation (optimistic send) and
// recomputes the derived ordering and LastMessageAt.
func (s *Store) AppendMessage(id string, msg models.Message) error {
	conv, err := s.Get(id)
	if err != nil {
		return err
	}
	for _, existing := range conv.Messages {
		if existing.ID == msg.ID {
			return nil
		}
	}
	conv.Messages = append(conv.Messages, msg)
	sort.SliceStable(conv.Messages, func(i, j int) bool {
		if conv.Messages[i].Date.Equal(conv.Messages[j].Date) {
			return conv.Messages[i].ID < conv.Messages[j].ID
		}
		return conv.Messages[i].Date.Before(conv.Messages[j].Date)
	})
	conv.Thread.LastMessageAt = conv.Messages[len(conv.Messages)-1].Date
	return s.put(*conv)
}

// RemoveOne deletes one conversation snapshot.
func (s *Store) RemoveOne(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(convKey(id))
	})
}

// Clear wipes all conversation data and the freshness stamp. Must be
// called on user switch so stale cross-user data is never served.
func (s *Store) Clear() error {
	keys, err := s.allKeys()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(freshnessKey))
	})
}

// Snapshot captures the full store state for restore-on-failure.
type Snapshot struct {
	conversations []models.Conversation
	refreshedAt   time.Time
	hasFreshness  bool
}

// Snapshot captures the current contents so a failed optimistic
// mutation can be rolled back exactly.
func (s *Store) Snapshot() (*Snapshot, error) {
	conversations, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{conversations: conversations}
	snap.refreshedAt, snap.hasFreshness = s.refreshedAt()
	return snap, nil
}

// Restore replaces the store contents with a previously captured
// snapshot, freshness stamp included.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if err := s.Clear(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, conv := range snap.conversations {
			raw, err := json.Marshal(conv)
			if err != nil {
				return err
			}
			if err := txn.Set(convKey(conv.Thread.ConversationID), raw); err != nil {
				return err
			}
		}
		if !snap.hasFreshness {
			return nil
		}
		raw, err := snap.refreshedAt.MarshalText()
		if err != nil {
			return err
		}
		return txn.Set([]byte(freshnessKey), raw)
	})
}

func (s *Store) put(conv models.Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", conv.Thread.ConversationID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(convKey(conv.Thread.ConversationID), raw)
	})
}

func (s *Store) stampFresh(txn *badger.Txn) error {
	raw, err := s.now().MarshalText()
	if err != nil {
		return err
	}
	return txn.Set([]byte(freshnessKey), raw)
}

func (s *Store) allKeys() ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(convPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func convKey(id string) []byte {
	return []byte(convPrefix + id)
}
