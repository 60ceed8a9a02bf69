// Package content defines course content, its cache, and how it is generated
// and loaded.
package content

import (
	"encoding/json"
	"strings"
)

// CourseContext identifies a course. It is fixed once the course starts.
type CourseContext struct {
	Subject     string `json:"subject"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// Valid reports whether the context names a subject and a topic.
func (c CourseContext) Valid() bool {
	return strings.TrimSpace(c.Subject) != "" && strings.TrimSpace(c.Topic) != ""
}

// SlideKey names content that belongs to a whole slide.
type SlideKey string

const (
	SlideWelcome SlideKey = "welcome"
	SlideTOC     SlideKey = "toc"
	SlideMemory  SlideKey = "memory"
	SlideSummary SlideKey = "summary"
)

// SlideKeys lists every slide content key.
var SlideKeys = []SlideKey{SlideWelcome, SlideTOC, SlideMemory, SlideSummary}

// SectionType names one piece of subtopic content.
type SectionType string

const (
	SectionOverview          SectionType = "overview"
	SectionKeyPoints         SectionType = "keyPoints"
	SectionExamples          SectionType = "examples"
	SectionExercises         SectionType = "exercises"
	SectionMatchingExercises SectionType = "matchingExercises"
)

// SectionTypes lists every section in display order.
var SectionTypes = []SectionType{
	SectionOverview,
	SectionKeyPoints,
	SectionExamples,
	SectionExercises,
	SectionMatchingExercises,
}

// ParseSectionType returns the section with the given name.
func ParseSectionType(s string) (SectionType, bool) {
	for _, t := range SectionTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ParseSlideKey returns the slide key with the given name.
func ParseSlideKey(s string) (SlideKey, bool) {
	for _, k := range SlideKeys {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// SectionMap holds section payloads keyed by section.
type SectionMap map[SectionType]json.RawMessage

// MergeSections combines the flat cache copy of a subtopic's sections with a
// copy embedded in a table of contents. Flat entries win on collision.
func MergeSections(flat, embedded SectionMap) SectionMap {
	merged := make(SectionMap, len(flat)+len(embedded))
	for k, v := range embedded {
		merged[k] = v
	}
	for k, v := range flat {
		merged[k] = v
	}
	return merged
}

// Welcome is the opening slide.
type Welcome struct {
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	Tagline     string `json:"tagline"`
	Description string `json:"description"`
}

// TableOfContents lists the quests of a course.
type TableOfContents struct {
	Title  string  `json:"title"`
	Quests []Quest `json:"quests"`
}

// Quest is a top-level course unit.
type Quest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Objectives  []string   `json:"objectives"`
	Subtopics   []Subtopic `json:"subtopics,omitempty"`
}

// EnsureSubtopics derives subtopics from objectives the first time they are
// needed and reports whether it changed the quest.
func (q *Quest) EnsureSubtopics() bool {
	if len(q.Subtopics) > 0 || len(q.Objectives) == 0 {
		return false
	}
	q.Subtopics = make([]Subtopic, 0, len(q.Objectives))
	for _, obj := range q.Objectives {
		q.Subtopics = append(q.Subtopics, Subtopic{Title: obj})
	}
	return true
}

// Subtopic is a leaf learning unit. Content is only set on tables of contents
// that still carry embedded sections; it is moved into the section cache when
// the table of contents is loaded.
type Subtopic struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Content     SectionMap `json:"content,omitempty"`
}

// MatchPair is a term and its definition.
type MatchPair struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// MemoryGame is a matching game over the course vocabulary.
type MemoryGame struct {
	Title string      `json:"title"`
	Pairs []MatchPair `json:"pairs"`
}

// Summary closes the course.
type Summary struct {
	Title        string   `json:"title"`
	Recap        string   `json:"recap"`
	KeyTakeaways []string `json:"keyTakeaways"`
	NextSteps    []string `json:"nextSteps"`
}

// Overview is the first subtopic section.
type Overview struct {
	Title    string `json:"title"`
	Overview string `json:"overview"`
}

// KeyPoints is a list of takeaways for a subtopic.
type KeyPoints struct {
	Title     string   `json:"title"`
	KeyPoints []string `json:"keyPoints"`
}

// Example illustrates a subtopic.
type Example struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
}

// Examples is the examples section.
type Examples struct {
	Title    string    `json:"title"`
	Examples []Example `json:"examples"`
}

// Exercise is a practice question.
type Exercise struct {
	Question string `json:"question"`
	Hint     string `json:"hint"`
	Solution string `json:"solution"`
}

// Exercises is the exercises section.
type Exercises struct {
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
}

// MatchingExercises is the term-matching section.
type MatchingExercises struct {
	Title             string      `json:"title"`
	MatchingExercises []MatchPair `json:"matchingExercises"`
}

// Material is the decoded content of a course, as far as it has been fetched.
type Material struct {
	Course   CourseContext
	Welcome  *Welcome
	TOC      *TableOfContents
	Sections map[SubtopicRef]SectionMap
	Memory   *MemoryGame
	Summary  *Summary
}

// SubtopicRef addresses a subtopic by quest and subtopic index.
type SubtopicRef struct {
	Quest    int
	Subtopic int
}
