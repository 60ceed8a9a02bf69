package course

import (
	"encoding/json"

	"github.com/p-n-ai/pai-course/internal/content"
)

// Snapshot is a read-only picture of a player for clients.
type Snapshot struct {
	SessionID string                `json:"session_id,omitempty"`
	CourseID  string                `json:"course_id"`
	Course    content.CourseContext `json:"course"`
	View      View                  `json:"view"`
	Slides    []View                `json:"slides"`
	Position  int                   `json:"position"`
	Sequence  QuestSequence         `json:"sequence"`
	Loading   []string              `json:"loading"`

	// Content is set on welcome, toc, memory and summary slides.
	Content json.RawMessage `json:"content,omitempty"`
	// Quest is set on quest detail and subtopic slides.
	Quest *content.Quest `json:"quest,omitempty"`
	// Sections and Missing are set on subtopic slides.
	Sections content.SectionMap   `json:"sections,omitempty"`
	Missing  []content.SectionType `json:"missing,omitempty"`
}

// Snapshot returns the current state and the content of the current slide.
func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	v, seq := p.view, p.seq
	p.mu.RUnlock()

	s := Snapshot{
		SessionID: p.sessionID,
		CourseID:  p.courseID,
		Course:    p.course,
		View:      v,
		Slides:    Slides(v),
		Position:  Position(v),
		Sequence:  seq,
		Loading:   p.cache.LoadingKeys(),
	}

	switch v.Kind {
	case ViewQuestDetail, ViewSubtopic:
		if toc, err := p.tableOfContents(); err == nil && v.Quest < len(toc.Quests) {
			q := toc.Quests[v.Quest]
			s.Quest = &q
		}
		if v.Kind == ViewSubtopic {
			s.Sections = p.cache.Sections(v.Quest, v.Subtopic)
			for _, st := range content.SectionTypes {
				if _, ok := s.Sections[st]; !ok {
					s.Missing = append(s.Missing, st)
				}
			}
		}
	default:
		if raw, ok := p.cache.Get(content.SlideContentKey(v.SlideKey())); ok {
			s.Content = raw
		}
	}
	return s
}

// Material returns every piece of content fetched so far, decoded.
func (p *Player) Material() content.Material {
	m := content.Material{
		Course:   p.course,
		Welcome:  cached[content.Welcome](p.cache, content.SlideWelcome),
		TOC:      cached[content.TableOfContents](p.cache, content.SlideTOC),
		Memory:   cached[content.MemoryGame](p.cache, content.SlideMemory),
		Summary:  cached[content.Summary](p.cache, content.SlideSummary),
		Sections: make(map[content.SubtopicRef]content.SectionMap),
	}
	if m.TOC == nil {
		return m
	}
	for q, quest := range m.TOC.Quests {
		n := max(len(quest.Subtopics), len(quest.Objectives))
		for j := 0; j < n; j++ {
			if sections := p.cache.Sections(q, j); len(sections) > 0 {
				m.Sections[content.SubtopicRef{Quest: q, Subtopic: j}] = sections
			}
		}
	}
	return m
}

func cached[T any](c *content.Cache, slide content.SlideKey) *T {
	raw, ok := c.Get(content.SlideContentKey(slide))
	if !ok {
		return nil
	}
	v, err := content.Decode[T](raw)
	if err != nil {
		return nil
	}
	return v
}
