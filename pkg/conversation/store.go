// Package conversation keeps short per-user chat history in memory so skills
// can give the LLM recent context. History is process-local and bounded; it
// is injected into dispatch via message metadata by the channel adapters,
// never read by the dispatch core itself.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Defaults for the store. Capacity bounds entries per user; TTL bounds age.
const (
	DefaultCapacity = 20
	DefaultTTL      = time.Hour
)

// Entry is one turn of a conversation.
type Entry struct {
	// Role is "user" or "assistant"
	Role string

	// Content is the turn text
	Content string

	// Timestamp is when the entry was added
	Timestamp time.Time
}

// Store is a per-user bounded ring of conversation entries. Get prunes
// expired entries; Add evicts from the front when over capacity. Safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	users    map[string][]Entry

	// now is swappable for tests
	now func() time.Time
}

// NewStore creates a store with the given per-user capacity and entry TTL.
// Non-positive arguments select the defaults.
func NewStore(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		capacity: capacity,
		ttl:      ttl,
		users:    make(map[string][]Entry),
		now:      time.Now,
	}
}

// Get returns the user's surviving entries oldest-first, pruning anything
// older than the TTL first.
func (s *Store) Get(userID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.pruneLocked(userID)
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Add appends a turn for the user, evicting the oldest entry when the ring
// is full.
func (s *Store) Add(userID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.pruneLocked(userID)
	entries = append(entries, Entry{Role: role, Content: content, Timestamp: s.now()})
	if len(entries) > s.capacity {
		entries = entries[len(entries)-s.capacity:]
	}
	s.users[userID] = entries
}

// Sweep prunes expired entries for every user so idle users do not hold
// memory until their next message. It returns the number of users still
// holding entries.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID := range s.users {
		s.pruneLocked(userID)
	}
	return len(s.users)
}

// Clear discards all entries for the user.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// pruneLocked drops expired entries for the user and returns the survivors.
// Caller must hold s.mu.
func (s *Store) pruneLocked(userID string) []Entry {
	entries := s.users[userID]
	if len(entries) == 0 {
		return nil
	}

	cutoff := s.now().Add(-s.ttl)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.users, userID)
		return nil
	}
	s.users[userID] = kept
	return kept
}

// Format renders entries as a plain transcript suitable for prompt context
// or the MetaHistory metadata value. Empty history renders as "".
func Format(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Role, e.Content)
	}
	return b.String()
}
