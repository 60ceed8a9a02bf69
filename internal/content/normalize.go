package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize decodes raw as content type t, fills fallback defaults for
// missing fields, and returns canonical JSON.
func Normalize(t ContentType, raw json.RawMessage) (json.RawMessage, error) {
	switch t {
	case TypeWelcome:
		return canonical(raw, func(w *Welcome) {
			w.Title = fallback(w.Title, "Welcome")
		})
	case TypeTOC:
		return canonical(raw, normalizeTOC)
	case TypeMemory:
		return canonical(raw, func(m *MemoryGame) {
			m.Title = fallback(m.Title, "Memory Game")
			m.Pairs = nonNil(m.Pairs)
		})
	case TypeSummary:
		return canonical(raw, func(s *Summary) {
			s.Title = fallback(s.Title, "Course Summary")
			s.KeyTakeaways = nonNil(s.KeyTakeaways)
			s.NextSteps = nonNil(s.NextSteps)
		})
	case TypeOverview:
		return canonical(raw, func(s *Overview) {})
	case TypeKeyPoints:
		return canonical(raw, func(s *KeyPoints) { s.KeyPoints = nonNil(s.KeyPoints) })
	case TypeExamples:
		return canonical(raw, func(s *Examples) { s.Examples = nonNil(s.Examples) })
	case TypeExercises:
		return canonical(raw, func(s *Exercises) { s.Exercises = nonNil(s.Exercises) })
	case TypeMatchingExercises:
		return canonical(raw, func(s *MatchingExercises) { s.MatchingExercises = nonNil(s.MatchingExercises) })
	default:
		return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidContent, t)
	}
}

func normalizeTOC(toc *TableOfContents) {
	toc.Quests = nonNil(toc.Quests)
	for i := range toc.Quests {
		q := &toc.Quests[i]
		q.Title = fallback(q.Title, fmt.Sprintf("Quest %d", i+1))
		q.Objectives = nonNil(q.Objectives)
		for j := range q.Subtopics {
			q.Subtopics[j].Title = fallback(q.Subtopics[j].Title, fmt.Sprintf("Part %d", j+1))
		}
	}
}

func canonical[T any](raw json.RawMessage, fix func(*T)) (json.RawMessage, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	fix(&v)
	return json.Marshal(v)
}

// Decode unmarshals raw into a typed payload.
func Decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return &v, nil
}

// ExtractJSON returns the JSON object inside an LLM reply, stripping markdown
// fences and any prose around it.
func ExtractJSON(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidContent)
	}
	raw := json.RawMessage(s[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON in response", ErrInvalidContent)
	}
	return raw, nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
