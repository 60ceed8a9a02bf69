package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Event types published by the player.
const (
	EventSlideChanged     = "slide_changed"
	EventContentLoaded    = "content_loaded"
	EventContentFailed    = "content_failed"
	EventAdventureStarted = "adventure_started"
	EventAdventureEnded   = "adventure_ended"
)

// Event is something that happened in a course session.
type Event struct {
	SessionID string         `json:"session_id"`
	CourseID  string         `json:"course_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventSink receives player events.
type EventSink interface {
	LogEvent(event Event) error
}

// NopEventSink ignores all events.
type NopEventSink struct{}

func (NopEventSink) LogEvent(Event) error {
	return nil
}

// MemoryEventSink stores events in memory for tests.
type MemoryEventSink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventSink() *MemoryEventSink {
	return &MemoryEventSink{
		events: []Event{},
	}
}

func (s *MemoryEventSink) LogEvent(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	return nil
}

func (s *MemoryEventSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

// Types returns the type of every stored event in order.
func (s *MemoryEventSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

// PostgresEventSink inserts events into the course_events table.
type PostgresEventSink struct {
	pool *pgxpool.Pool
}

func NewPostgresEventSink(pool *pgxpool.Pool) *PostgresEventSink {
	return &PostgresEventSink{pool: pool}
}

func (s *PostgresEventSink) LogEvent(event Event) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("event sink pool is nil")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO course_events (session_id, course_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.SessionID,
		event.CourseID,
		event.Type,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.Type,
		"session_id", event.SessionID,
		"course_id", event.CourseID,
	)
	return nil
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) LogEvent(event Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.LogEvent(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
