package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
)

// PlayerFactory builds the player for a session.
type PlayerFactory func(sessionID string, c content.CourseContext) (*course.Player, error)

// Session is one learner working through one course.
type Session struct {
	ID        string
	Player    *course.Player
	StartedAt time.Time
}

// Manager owns the live sessions of this process. Each session has its own
// player and content cache.
type Manager struct {
	contexts  ContextStore
	newPlayer PlayerFactory

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(contexts ContextStore, newPlayer PlayerFactory) *Manager {
	if contexts == nil {
		contexts = NewMemoryContextStore()
	}
	return &Manager{
		contexts:  contexts,
		newPlayer: newPlayer,
		sessions:  make(map[string]*Session),
	}
}

// Start opens a new session for c and loads its welcome slide.
func (m *Manager) Start(ctx context.Context, c content.CourseContext) (*Session, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("course needs a subject and a topic")
	}

	id := uuid.NewString()
	if err := m.contexts.Save(ctx, id, c); err != nil {
		return nil, fmt.Errorf("saving course context: %w", err)
	}

	s, err := m.open(ctx, id, c)
	if err != nil {
		if clearErr := m.contexts.Clear(ctx, id); clearErr != nil {
			slog.Warn("failed to clear course context", "session_id", id, "error", clearErr)
		}
		return nil, err
	}

	slog.Info("session started",
		"session_id", id,
		"course_id", s.Player.CourseID(),
		"subject", c.Subject,
		"topic", c.Topic,
	)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Resume returns a live session, rebuilding it from its stored course
// context when this process does not hold it.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}

	c, err := m.contexts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := m.open(ctx, id, c)
	if err != nil {
		return nil, err
	}
	slog.Info("session resumed", "session_id", id, "course_id", s.Player.CourseID())
	return s, nil
}

// Close ends a session and forgets its course context.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Player.Close()
	}
	if err := m.contexts.Clear(ctx, id); err != nil {
		return fmt.Errorf("clearing course context: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	slog.Info("session closed", "session_id", id)
	return nil
}

// Shutdown stops every live session. Stored course contexts are kept so the
// sessions can be resumed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Player.Close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) open(ctx context.Context, id string, c content.CourseContext) (*Session, error) {
	if m.newPlayer == nil {
		return nil, errors.New("session manager has no player factory")
	}
	p, err := m.newPlayer(id, c)
	if err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}

	s := &Session{ID: id, Player: p, StartedAt: time.Now()}
	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		p.Close()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()

	p.Start(ctx)
	return s, nil
}
