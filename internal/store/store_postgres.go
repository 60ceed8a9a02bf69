package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-course/internal/content"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed content.Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed content store. The schema
// must already be applied with database.Migrate.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetSlide(ctx context.Context, courseID string, slide content.SlideKey) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM course_slides WHERE course_id = $1 AND slide = $2`,
		courseID,
		string(slide),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slide: %w", err)
	}
	return json.RawMessage(raw), nil
}

func (s *PostgresStore) SetSlide(ctx context.Context, courseID string, slide content.SlideKey, value json.RawMessage) error {
	if courseID == "" {
		return fmt.Errorf("course_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO course_slides (course_id, slide, content, updated_at)
		 VALUES ($1, $2, $3::jsonb, NOW())
		 ON CONFLICT (course_id, slide)
		 DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()`,
		courseID,
		string(slide),
		string(value),
	)
	if err != nil {
		return fmt.Errorf("set slide: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, courseID string, quest, subtopic int) (content.SectionMap, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT sections FROM course_sections
		 WHERE course_id = $1 AND quest_index = $2 AND subtopic_index = $3`,
		courseID,
		quest,
		subtopic,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sections: %w", err)
	}

	var sections content.SectionMap
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return sections, nil
}

// Set merges sections into the stored row. Sections missing from the write
// keep their stored value.
func (s *PostgresStore) Set(ctx context.Context, courseID string, quest, subtopic int, sections content.SectionMap) error {
	if courseID == "" {
		return fmt.Errorf("course_id is required")
	}
	if sections == nil {
		sections = content.SectionMap{}
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO course_sections (course_id, quest_index, subtopic_index, sections, updated_at)
		 VALUES ($1, $2, $3, $4::jsonb, NOW())
		 ON CONFLICT (course_id, quest_index, subtopic_index)
		 DO UPDATE SET sections = course_sections.sections || EXCLUDED.sections, updated_at = NOW()`,
		courseID,
		quest,
		subtopic,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("set sections: %w", err)
	}
	return nil
}

// SetSection updates one section in a single statement.
func (s *PostgresStore) SetSection(ctx context.Context, courseID string, quest, subtopic int, section content.SectionType, value json.RawMessage) error {
	if courseID == "" {
		return fmt.Errorf("course_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO course_sections (course_id, quest_index, subtopic_index, sections, updated_at)
		 VALUES ($1, $2, $3, jsonb_build_object($4::text, $5::jsonb), NOW())
		 ON CONFLICT (course_id, quest_index, subtopic_index)
		 DO UPDATE SET sections = jsonb_set(course_sections.sections, ARRAY[$4::text], $5::jsonb, true),
		               updated_at = NOW()`,
		courseID,
		quest,
		subtopic,
		string(section),
		string(value),
	)
	if err != nil {
		return fmt.Errorf("set section %s: %w", section, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, courseID string, quest, subtopic int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`DELETE FROM course_sections WHERE course_id = $1 AND quest_index = $2 AND subtopic_index = $3`,
		courseID,
		quest,
		subtopic,
	)
	if err != nil {
		return fmt.Errorf("delete sections: %w", err)
	}
	return nil
}
