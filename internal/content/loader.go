package content

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Store persists generated content between sessions.
type Store interface {
	GetSlide(ctx context.Context, courseID string, slide SlideKey) (json.RawMessage, error)
	SetSlide(ctx context.Context, courseID string, slide SlideKey, value json.RawMessage) error
	// Get returns nil when nothing is stored for the subtopic.
	Get(ctx context.Context, courseID string, quest, subtopic int) (SectionMap, error)
	// Set merges sections into what is already stored.
	Set(ctx context.Context, courseID string, quest, subtopic int, sections SectionMap) error
	SetSection(ctx context.Context, courseID string, quest, subtopic int, section SectionType, value json.RawMessage) error
	// Delete removes every stored section of the subtopic.
	Delete(ctx context.Context, courseID string, quest, subtopic int) error
}

// Loader fetches content for one course from the store first and the
// generator second, writing generated content back to the store.
type Loader struct {
	course   CourseContext
	courseID string
	store    Store
	gen      ContentGenerator
}

// NewLoader creates a loader. store may be nil.
func NewLoader(course CourseContext, store Store, gen ContentGenerator) *Loader {
	return &Loader{
		course:   course,
		courseID: CourseID(course),
		store:    store,
		gen:      gen,
	}
}

// CourseID returns the id content is stored under.
func (l *Loader) CourseID() string {
	return l.courseID
}

// LoadSlide returns the content of a slide. force skips the store.
func (l *Loader) LoadSlide(ctx context.Context, slide SlideKey, extra map[string]any, force bool) (json.RawMessage, error) {
	if l.store != nil && !force {
		v, err := l.store.GetSlide(ctx, l.courseID, slide)
		if err != nil {
			slog.Warn("store read failed, generating", "course_id", l.courseID, "slide", string(slide), "error", err)
		} else if v != nil {
			return v, nil
		}
	}

	v, err := l.gen.Generate(ctx, Request{Type: ContentType(slide), Course: l.course, Extra: extra})
	if err != nil {
		return nil, err
	}
	l.SaveSlide(ctx, slide, v)
	return v, nil
}

// SaveSlide writes slide content to the store. Failures are logged.
func (l *Loader) SaveSlide(ctx context.Context, slide SlideKey, value json.RawMessage) {
	if l.store == nil {
		return
	}
	if err := l.store.SetSlide(ctx, l.courseID, slide, value); err != nil {
		slog.Warn("store write failed", "course_id", l.courseID, "slide", string(slide), "error", err)
	}
}

// LoadSection returns one subtopic section. force skips the store.
func (l *Loader) LoadSection(ctx context.Context, quest, subtopic int, section SectionType, extra map[string]any, force bool) (json.RawMessage, error) {
	if l.store != nil && !force {
		sections, err := l.store.Get(ctx, l.courseID, quest, subtopic)
		if err != nil {
			slog.Warn("store read failed, generating",
				"course_id", l.courseID, "quest", quest, "subtopic", subtopic, "section", string(section), "error", err)
		} else if v, ok := sections[section]; ok {
			return v, nil
		}
	}

	v, err := l.gen.Generate(ctx, Request{Type: ContentType(section), Course: l.course, Extra: extra})
	if err != nil {
		return nil, err
	}
	if l.store != nil {
		if err := l.store.SetSection(ctx, l.courseID, quest, subtopic, section, v); err != nil {
			slog.Warn("store write failed",
				"course_id", l.courseID, "quest", quest, "subtopic", subtopic, "section", string(section), "error", err)
		}
	}
	return v, nil
}

// SaveSections merges sections into the stored subtopic. Failures are logged.
func (l *Loader) SaveSections(ctx context.Context, quest, subtopic int, sections SectionMap) {
	if l.store == nil || len(sections) == 0 {
		return
	}
	if err := l.store.Set(ctx, l.courseID, quest, subtopic, sections); err != nil {
		slog.Warn("store write failed", "course_id", l.courseID, "quest", quest, "subtopic", subtopic, "error", err)
	}
}

// DropSections removes the stored sections of a subtopic. Failures are logged.
func (l *Loader) DropSections(ctx context.Context, quest, subtopic int) {
	if l.store == nil {
		return
	}
	if err := l.store.Delete(ctx, l.courseID, quest, subtopic); err != nil {
		slog.Warn("store delete failed", "course_id", l.courseID, "quest", quest, "subtopic", subtopic, "error", err)
	}
}

// StoredSections returns what the store holds for a subtopic, or nil.
func (l *Loader) StoredSections(ctx context.Context, quest, subtopic int) SectionMap {
	if l.store == nil {
		return nil
	}
	sections, err := l.store.Get(ctx, l.courseID, quest, subtopic)
	if err != nil {
		slog.Warn("store read failed", "course_id", l.courseID, "quest", quest, "subtopic", subtopic, "error", err)
		return nil
	}
	return sections
}
