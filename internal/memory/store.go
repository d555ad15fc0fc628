// Package memory holds per-session conversation state. The store is a
// bounded FIFO log: each session keeps at most Capacity messages, with
// an optional pinned system message that survives eviction at position
// zero. Everything lives in process memory; the sqlite archive persists
// transcripts on the side.
package memory

import (
	"sync"

	"github.com/wiplab/wip-agent/internal/llm"
)

// DefaultCapacity is the per-session message limit when none is configured.
const DefaultCapacity = 5

type session struct {
	messages  []llm.Message
	hasSystem bool
	turnMu    sync.Mutex // held for the duration of one turn
}

// Store is a bounded in-memory conversation store, safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*session
}

// NewStore creates a store with the given per-session capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		sessions: make(map[string]*session),
	}
}

// Capacity returns the per-session message limit.
func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) get(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

// PinSystem ensures the session's first message is a system message
// with the given content, creating the session if needed. If a system
// message is already pinned its content is updated in place. When the
// log is full, the oldest non-system message is evicted to make room.
func (s *Store) PinSystem(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	if sess.hasSystem {
		sess.messages[0].Content = content
		return
	}
	if len(sess.messages) >= s.capacity {
		sess.messages = sess.messages[1:]
	}
	sess.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: content}}, sess.messages...)
	sess.hasSystem = true
}

// Append adds messages to the session's log, creating the session if
// needed. When the log exceeds capacity, the oldest non-system
// messages are evicted.
func (s *Store) Append(id string, msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.messages = append(sess.messages, msgs...)
	for len(sess.messages) > s.capacity {
		if sess.hasSystem {
			// Keep index 0, evict the oldest of the rest.
			sess.messages = append(sess.messages[:1], sess.messages[2:]...)
		} else {
			sess.messages = sess.messages[1:]
		}
	}
}

// History returns a copy of the session's message log. A session that
// does not exist yields nil; reading never creates state.
func (s *Store) History(id string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]llm.Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Clear removes all state for the session, including the pinned
// system message.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sessions returns the IDs of all live sessions.
func (s *Store) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// BeginTurn acquires the session's turn lock without blocking. It
// returns false if a turn is already in flight for this session. A
// successful BeginTurn must be paired with EndTurn.
func (s *Store) BeginTurn(id string) bool {
	s.mu.Lock()
	sess := s.get(id)
	s.mu.Unlock()
	return sess.turnMu.TryLock()
}

// EndTurn releases the session's turn lock.
func (s *Store) EndTurn(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.turnMu.Unlock()
	}
}
