package state

import (
	"sync"
	"time"

	"github.com/clipscope/clipscope/internal/provider"
)

// DefaultMaxMessages caps how many chat messages a session retains.
const DefaultMaxMessages = 5

// Session is one conversation's persistent state across orchestration runs.
type Session struct {
	ID             string
	Messages       []provider.Message
	ReclarifyCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Sessions is the session persistence surface the orchestrator depends on.
// Implementations create sessions on first touch.
type Sessions interface {
	Ensure(id string) (*Session, error)
	AddMessage(id string, msg provider.Message) error
	History(id string) ([]provider.Message, error)
	ReclarifyCount(id string) (int, error)
	SetReclarifyCount(id string, n int) error
	PruneIdle(maxIdle time.Duration) (int, error)
}

// MemorySessions keeps sessions in process memory. The SQL store in
// state/store is the durable alternative.
type MemorySessions struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxMessages int
}

func NewMemorySessions(maxMessages int) *MemorySessions {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &MemorySessions{
		sessions:    make(map[string]*Session),
		maxMessages: maxMessages,
	}
}

func (m *MemorySessions) ensureLocked(id string) *Session {
	s, ok := m.sessions[id]
	if !ok {
		now := time.Now()
		s = &Session{ID: id, CreatedAt: now, UpdatedAt: now}
		m.sessions[id] = s
	}
	return s
}

func (m *MemorySessions) Ensure(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensureLocked(id)
	cp := *s
	cp.Messages = append([]provider.Message(nil), s.Messages...)
	return &cp, nil
}

func (m *MemorySessions) AddMessage(id string, msg provider.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensureLocked(id)
	s.Messages = append(s.Messages, msg)
	if len(s.Messages) > m.maxMessages {
		s.Messages = s.Messages[len(s.Messages)-m.maxMessages:]
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemorySessions) History(id string) ([]provider.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return append([]provider.Message(nil), s.Messages...), nil
}

func (m *MemorySessions) ReclarifyCount(id string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.ReclarifyCount, nil
	}
	return 0, nil
}

func (m *MemorySessions) SetReclarifyCount(id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensureLocked(id)
	s.ReclarifyCount = n
	s.UpdatedAt = time.Now()
	return nil
}

// PruneIdle removes sessions not touched within maxIdle and returns how
// many were dropped.
func (m *MemorySessions) PruneIdle(maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	pruned := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			pruned++
		}
	}
	return pruned, nil
}
