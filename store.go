package chatsync

import (
	"sort"
	"sync"
)

// ============================================================================
// Store
// ============================================================================

// Store is the client-side cache: one conversation list per participant
// identity and one message list per conversation id. Lists are replaced
// wholesale on each successful fetch; consistency comes from full refetch,
// never from incremental merging, so the most recent completed fetch always
// wins and stale-keyed writes are harmless.
//
// Fetches complete on their own goroutines, so the store is goroutine-safe.
type Store struct {
	mu            sync.RWMutex
	conversations map[Identity][]Conversation
	messages      map[string][]Message
}

// NewStore creates an empty cache.
func NewStore() *Store {
	return &Store{
		conversations: make(map[Identity][]Conversation),
		messages:      make(map[string][]Message),
	}
}

// ReplaceConversations installs a fresh conversation list snapshot for an
// identity, ordered by last message arrival, newest first.
func (s *Store) ReplaceConversations(id Identity, convs []Conversation) {
	snapshot := append([]Conversation{}, convs...)
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].LastMessageAt.After(snapshot[j].LastMessageAt)
	})

	s.mu.Lock()
	s.conversations[id] = snapshot
	s.mu.Unlock()
}

// Conversations returns a copy of the cached conversation list for an
// identity. A nil slice means no fetch has completed yet.
func (s *Store) Conversations(id Identity) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.conversations[id]
	if !ok {
		return nil
	}
	return append([]Conversation{}, cached...)
}

// ReplaceMessages installs a fresh message history snapshot for a
// conversation, ordered by creation time.
func (s *Store) ReplaceMessages(conversationID string, msgs []Message) {
	snapshot := append([]Message{}, msgs...)
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})

	s.mu.Lock()
	s.messages[conversationID] = snapshot
	s.mu.Unlock()
}

// Messages returns a copy of the cached history for a conversation. The
// second return reports whether any fetch has completed for it; entries are
// retained after the conversation is deselected so returning to it is
// instant pending the next refresh.
func (s *Store) Messages(conversationID string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.messages[conversationID]
	if !ok {
		return nil, false
	}
	return append([]Message{}, cached...), true
}

// UnreadCount counts cached messages in a conversation that were sent by
// other participants and not yet read. Derived client-side; read state is
// advisory only.
func (s *Store) UnreadCount(conversationID, selfID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.messages[conversationID] {
		if !m.Read && m.SenderID != selfID {
			count++
		}
	}
	return count
}
