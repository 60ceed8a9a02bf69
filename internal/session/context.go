// Package session keeps course sessions and the course context each one was
// started with.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// ContextKey returns the key a session's course context is stored under.
func ContextKey(sessionID string) string {
	return "course:context:" + sessionID
}

// ContextStore persists the course context of each session.
type ContextStore interface {
	Save(ctx context.Context, sessionID string, c content.CourseContext) error
	Load(ctx context.Context, sessionID string) (content.CourseContext, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemoryContextStore keeps course contexts in process memory.
type MemoryContextStore struct {
	mu       sync.RWMutex
	contexts map[string]content.CourseContext
}

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[string]content.CourseContext)}
}

func (s *MemoryContextStore) Save(_ context.Context, sessionID string, c content.CourseContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[ContextKey(sessionID)] = c
	return nil
}

func (s *MemoryContextStore) Load(_ context.Context, sessionID string) (content.CourseContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[ContextKey(sessionID)]
	if !ok {
		return content.CourseContext{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return c, nil
}

func (s *MemoryContextStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, ContextKey(sessionID))
	return nil
}

// RedisContextStore keeps course contexts in Redis, expiring after ttl.
type RedisContextStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisContextStore(c *cache.Cache, ttl time.Duration) *RedisContextStore {
	return &RedisContextStore{cache: c, ttl: ttl}
}

func (s *RedisContextStore) Save(ctx context.Context, sessionID string, c content.CourseContext) error {
	return s.cache.SetJSON(ctx, ContextKey(sessionID), c, s.ttl)
}

func (s *RedisContextStore) Load(ctx context.Context, sessionID string) (content.CourseContext, error) {
	var c content.CourseContext
	found, err := s.cache.GetJSON(ctx, ContextKey(sessionID), &c)
	if err != nil {
		return content.CourseContext{}, err
	}
	if !found {
		return content.CourseContext{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return c, nil
}

func (s *RedisContextStore) Clear(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, ContextKey(sessionID))
}
