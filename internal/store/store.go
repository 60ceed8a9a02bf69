// Package store persists generated course content.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/p-n-ai/pai-course/internal/content"
)

type sectionKey struct {
	courseID string
	quest    int
	subtopic int
}

type slideKey struct {
	courseID string
	slide    content.SlideKey
}

// MemoryStore is an in-memory implementation of content.Store.
type MemoryStore struct {
	mu       sync.RWMutex
	slides   map[slideKey]json.RawMessage
	sections map[sectionKey]content.SectionMap
}

// NewMemoryStore creates a new in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slides:   make(map[slideKey]json.RawMessage),
		sections: make(map[sectionKey]content.SectionMap),
	}
}

func (s *MemoryStore) GetSlide(_ context.Context, courseID string, slide content.SlideKey) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slides[slideKey{courseID, slide}], nil
}

func (s *MemoryStore) SetSlide(_ context.Context, courseID string, slide content.SlideKey, value json.RawMessage) error {
	if courseID == "" {
		return fmt.Errorf("course_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slides[slideKey{courseID, slide}] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, courseID string, quest, subtopic int) (content.SectionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sections[sectionKey{courseID, quest, subtopic}]
	if !ok {
		return nil, nil
	}
	return maps.Clone(stored), nil
}

func (s *MemoryStore) Set(_ context.Context, courseID string, quest, subtopic int, sections content.SectionMap) error {
	if courseID == "" {
		return fmt.Errorf("course_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := sectionKey{courseID, quest, subtopic}
	stored, ok := s.sections[k]
	if !ok {
		stored = make(content.SectionMap, len(sections))
		s.sections[k] = stored
	}
	maps.Copy(stored, sections)
	return nil
}

func (s *MemoryStore) SetSection(ctx context.Context, courseID string, quest, subtopic int, section content.SectionType, value json.RawMessage) error {
	return s.Set(ctx, courseID, quest, subtopic, content.SectionMap{section: value})
}

func (s *MemoryStore) Delete(_ context.Context, courseID string, quest, subtopic int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sections, sectionKey{courseID, quest, subtopic})
	return nil
}
