package session

import (
	"context"
	"slices"
	"sync"

	"github.com/stewardlabs/steward/core/protocol"
)

type memoryStore struct {
	cfg      Config
	mu       sync.Mutex
	sessions map[string]*memorySession
}

// NewMemoryStore creates a Store backed by an in-memory map. Sessions live
// for the process lifetime; expiry is the surrounding service's concern.
func NewMemoryStore(cfg *Config) Store {
	return &memoryStore{
		cfg:      *cfg,
		sessions: make(map[string]*memorySession),
	}
}

func (s *memoryStore) Get(key string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[key]
	if !exists {
		sess = &memorySession{
			key:    key,
			retain: s.cfg.Retain,
			window: s.cfg.Window,
			turn:   make(chan struct{}, 1),
		}
		s.sessions[key] = sess
	}
	return sess
}

func (s *memoryStore) Clear(key string) {
	s.mu.Lock()
	sess, exists := s.sessions[key]
	s.mu.Unlock()

	if exists {
		sess.Clear()
	}
}

type memorySession struct {
	key    string
	retain int
	window int

	// turn is a one-slot semaphore serializing turns against this session.
	turn chan struct{}

	mu       sync.RWMutex
	messages []protocol.Message
}

func (s *memorySession) Key() string {
	return s.key
}

func (s *memorySession) Acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memorySession) Release() {
	<-s.turn
}

func (s *memorySession) Append(msgs ...protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msgs...)
	if s.retain > 0 && len(s.messages) > s.retain {
		s.messages = slices.Clone(s.messages[len(s.messages)-s.retain:])
	}
}

func (s *memorySession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.messages)
}

func (s *memorySession) Window() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages
	if s.window > 0 && len(msgs) > s.window {
		msgs = msgs[len(msgs)-s.window:]
	}
	return copyMessages(msgs)
}

func (s *memorySession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *memorySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

func copyMessages(msgs []protocol.Message) []protocol.Message {
	copied := make([]protocol.Message, len(msgs))
	for i, msg := range msgs {
		copied[i] = msg
		copied[i].ToolCalls = slices.Clone(msg.ToolCalls)
	}
	return copied
}
