package content

import "fmt"

// ContentType selects the prompt and schema used to generate content.
type ContentType string

const (
	TypeWelcome           ContentType = "welcome"
	TypeTOC               ContentType = "toc"
	TypeMemory            ContentType = "memory"
	TypeSummary           ContentType = "summary"
	TypeOverview          ContentType = "overview"
	TypeKeyPoints         ContentType = "keyPoints"
	TypeExamples          ContentType = "examples"
	TypeExercises         ContentType = "exercises"
	TypeMatchingExercises ContentType = "matchingExercises"
)

// ContentTypes lists every generated content type.
var ContentTypes = []ContentType{
	TypeWelcome, TypeTOC, TypeMemory, TypeSummary,
	TypeOverview, TypeKeyPoints, TypeExamples, TypeExercises, TypeMatchingExercises,
}

// Key addresses one cache entry: either a slide, or one section of a subtopic.
type Key struct {
	Slide    SlideKey
	Quest    int
	Subtopic int
	Section  SectionType
}

// SlideContentKey returns the key of a slide's content.
func SlideContentKey(slide SlideKey) Key {
	return Key{Slide: slide}
}

// SectionKey returns the key of one subtopic section.
func SectionKey(quest, subtopic int, section SectionType) Key {
	return Key{Quest: quest, Subtopic: subtopic, Section: section}
}

// IsSection reports whether the key addresses subtopic content.
func (k Key) IsSection() bool {
	return k.Section != ""
}

// Type returns the content type generated for this key.
func (k Key) Type() ContentType {
	if k.IsSection() {
		return ContentType(k.Section)
	}
	return ContentType(k.Slide)
}

func (k Key) String() string {
	if k.IsSection() {
		return fmt.Sprintf("section:%d:%d:%s", k.Quest, k.Subtopic, k.Section)
	}
	return "slide:" + string(k.Slide)
}
