// Package course drives a learner through the slides of a generated course.
package course

import (
	"encoding/json"
	"fmt"

	"github.com/p-n-ai/pai-course/internal/content"
)

// ViewKind is the kind of slide being shown.
type ViewKind int

const (
	ViewWelcome ViewKind = iota
	ViewTOC
	ViewQuestDetail
	ViewSubtopic
	ViewMemory
	ViewSummary
)

func (k ViewKind) String() string {
	switch k {
	case ViewWelcome:
		return "welcome"
	case ViewTOC:
		return "toc"
	case ViewQuestDetail:
		return "quest_detail"
	case ViewSubtopic:
		return "subtopic"
	case ViewMemory:
		return "memory"
	case ViewSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// View is what the player is showing. Quest is set for quest detail and
// subtopic views, Subtopic only for subtopic views.
type View struct {
	Kind     ViewKind
	Quest    int
	Subtopic int
}

func WelcomeView() View { return View{Kind: ViewWelcome} }
func TOCView() View     { return View{Kind: ViewTOC} }
func MemoryView() View  { return View{Kind: ViewMemory} }
func SummaryView() View { return View{Kind: ViewSummary} }

func QuestDetailView(quest int) View {
	return View{Kind: ViewQuestDetail, Quest: quest}
}

func SubtopicView(quest, subtopic int) View {
	return View{Kind: ViewSubtopic, Quest: quest, Subtopic: subtopic}
}

func (v View) String() string {
	switch v.Kind {
	case ViewQuestDetail:
		return fmt.Sprintf("%s(%d)", v.Kind, v.Quest)
	case ViewSubtopic:
		return fmt.Sprintf("%s(%d,%d)", v.Kind, v.Quest, v.Subtopic)
	default:
		return v.Kind.String()
	}
}

// SlideKey returns the slide whose content the view shows. Quest detail
// and subtopic views read from the table of contents.
func (v View) SlideKey() content.SlideKey {
	switch v.Kind {
	case ViewWelcome:
		return content.SlideWelcome
	case ViewMemory:
		return content.SlideMemory
	case ViewSummary:
		return content.SlideSummary
	default:
		return content.SlideTOC
	}
}

type viewJSON struct {
	Kind     string `json:"kind"`
	Quest    *int   `json:"quest,omitempty"`
	Subtopic *int   `json:"subtopic,omitempty"`
}

func (v View) MarshalJSON() ([]byte, error) {
	out := viewJSON{Kind: v.Kind.String()}
	if v.Kind == ViewQuestDetail || v.Kind == ViewSubtopic {
		out.Quest = &v.Quest
	}
	if v.Kind == ViewSubtopic {
		out.Subtopic = &v.Subtopic
	}
	return json.Marshal(out)
}

// Slides returns the ordered slide list for a view. The base list is
// welcome, toc, memory, summary; a quest detail slide follows the table of
// contents while a quest is open, and a subtopic slide follows it while a
// subtopic is open.
func Slides(v View) []View {
	switch v.Kind {
	case ViewQuestDetail:
		return []View{WelcomeView(), TOCView(), QuestDetailView(v.Quest), MemoryView(), SummaryView()}
	case ViewSubtopic:
		return []View{
			WelcomeView(), TOCView(), QuestDetailView(v.Quest),
			SubtopicView(v.Quest, v.Subtopic), MemoryView(), SummaryView(),
		}
	default:
		return []View{WelcomeView(), TOCView(), MemoryView(), SummaryView()}
	}
}

// Position returns the index of v in Slides(v).
func Position(v View) int {
	switch v.Kind {
	case ViewWelcome:
		return 0
	case ViewTOC:
		return 1
	case ViewQuestDetail:
		return 2
	case ViewSubtopic:
		return 3
	case ViewMemory:
		return 2
	case ViewSummary:
		return 3
	default:
		return 0
	}
}

// QuestSequence tracks the guided walk through every quest in order.
type QuestSequence struct {
	Started           bool `json:"started"`
	CurrentQuestIndex int  `json:"current_quest_index"`
	TotalQuests       int  `json:"total_quests"`
}
