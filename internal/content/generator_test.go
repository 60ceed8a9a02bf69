package content_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/content"
)

var goCourse = content.CourseContext{Subject: "Programming", Topic: "Go", Description: "concurrency first"}

func newGenerator(t *testing.T, mock *ai.MockProvider, budget ai.BudgetChecker) *content.Generator {
	t.Helper()
	g, err := content.NewGenerator(content.GeneratorConfig{AI: mock, Budget: budget})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func TestPrompts_RenderEveryType(t *testing.T) {
	cat, err := content.DefaultPrompts()
	if err != nil {
		t.Fatalf("DefaultPrompts() error = %v", err)
	}
	for _, ct := range content.ContentTypes {
		req, err := cat.Render(content.Request{
			Type:   ct,
			Course: goCourse,
			Extra: map[string]any{
				"quest":    "Goroutines",
				"subtopic": "Channels",
				"quests":   []string{"Goroutines", "Select"},
			},
		})
		if err != nil {
			t.Fatalf("Render(%s) error = %v", ct, err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Fatalf("Render(%s) messages = %+v", ct, req.Messages)
		}
		if !req.JSON {
			t.Errorf("Render(%s) did not request JSON", ct)
		}
		if req.MaxTokens <= 0 {
			t.Errorf("Render(%s) MaxTokens = %d", ct, req.MaxTokens)
		}
		if !strings.Contains(req.Messages[1].Content, "Go") {
			t.Errorf("Render(%s) prompt does not mention the topic: %s", ct, req.Messages[1].Content)
		}
	}
}

func TestPrompts_SectionPromptNamesSubtopic(t *testing.T) {
	cat, _ := content.DefaultPrompts()
	req, err := cat.Render(content.Request{
		Type:   content.TypeExercises,
		Course: goCourse,
		Extra:  map[string]any{"quest": "Goroutines", "subtopic": "WaitGroups"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if req.Task != ai.TaskSection {
		t.Errorf("Task = %v, want section", req.Task)
	}
	if !strings.Contains(req.Messages[1].Content, "WaitGroups") {
		t.Errorf("prompt = %s", req.Messages[1].Content)
	}
}

func TestLoadPrompts_Overlay(t *testing.T) {
	dir := t.TempDir()
	overlay := `
prompts:
  welcome:
    task: slide
    max_tokens: 42
    temperature: 0.1
    template: "Custom welcome for {{.Course.Topic}}"
`
	if err := os.WriteFile(filepath.Join(dir, "welcome.yaml"), []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("prompts: [::"), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := content.LoadPrompts(dir)
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}
	req, err := cat.Render(content.Request{Type: content.TypeWelcome, Course: goCourse})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if req.Messages[1].Content != "Custom welcome for Go" {
		t.Errorf("prompt = %q", req.Messages[1].Content)
	}
	if req.MaxTokens != 42 {
		t.Errorf("MaxTokens = %d, want 42", req.MaxTokens)
	}

	// Untouched types keep the built-in prompt.
	if _, err := cat.Render(content.Request{Type: content.TypeTOC, Course: goCourse}); err != nil {
		t.Errorf("Render(toc) error = %v", err)
	}
}

func TestLoadPrompts_MissingPath(t *testing.T) {
	if _, err := content.LoadPrompts(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("LoadPrompts() on missing path succeeded")
	}
}

func TestGenerator_Generate(t *testing.T) {
	mock := ai.NewMockProvider("```json\n{\"quests\":[{\"title\":\"\",\"objectives\":[\"Start\"]}]}\n```")
	g := newGenerator(t, mock, nil)

	out, err := g.Generate(context.Background(), content.Request{Type: content.TypeTOC, Course: goCourse})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	toc, err := content.Decode[content.TableOfContents](out)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(toc.Quests) != 1 || toc.Quests[0].Title != "Quest 1" {
		t.Errorf("toc = %+v", toc)
	}
	if mock.LastRequest().Task != ai.TaskOutline {
		t.Errorf("Task = %v, want outline", mock.LastRequest().Task)
	}
}

func TestGenerator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mock   *ai.MockProvider
		target error
	}{
		{"provider failure", &ai.MockProvider{Err: errors.New("upstream down")}, nil},
		{"not json", ai.NewMockProvider("sorry, no"), content.ErrInvalidContent},
		{"schema violation", ai.NewMockProvider(`{"title":"no quests"}`), content.ErrInvalidContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(t, tt.mock, nil)
			_, err := g.Generate(context.Background(), content.Request{Type: content.TypeTOC, Course: goCourse})
			if !errors.Is(err, content.ErrGeneration) {
				t.Fatalf("Generate() error = %v, want ErrGeneration", err)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Generate() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestGenerator_Budget(t *testing.T) {
	mock := ai.NewMockProvider(`{"title":"Hi"}`)
	budget := ai.NewInMemoryBudget(0)
	courseID := content.CourseID(goCourse)
	budget.SetBudget(courseID, 20)
	g := newGenerator(t, mock, budget)

	req := content.Request{Type: content.TypeWelcome, Course: goCourse}
	if _, err := g.Generate(context.Background(), req); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	used, _, _ := budget.Usage(courseID)
	if used == 0 {
		t.Error("token usage was not recorded")
	}

	_, err := g.Generate(context.Background(), req)
	if !errors.Is(err, content.ErrBudgetExceeded) {
		t.Fatalf("second Generate() error = %v, want ErrBudgetExceeded", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("provider called %d times, want 1", mock.Calls())
	}
}

func TestNewGenerator_RequiresAI(t *testing.T) {
	if _, err := content.NewGenerator(content.GeneratorConfig{}); err == nil {
		t.Error("NewGenerator() without AI succeeded")
	}
}

// fakeStore is a minimal content.Store for loader tests.
type fakeStore struct {
	mu       sync.Mutex
	slides   map[content.SlideKey]json.RawMessage
	sections map[content.SubtopicRef]content.SectionMap
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slides:   make(map[content.SlideKey]json.RawMessage),
		sections: make(map[content.SubtopicRef]content.SectionMap),
	}
}

func (s *fakeStore) GetSlide(_ context.Context, _ string, slide content.SlideKey) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slides[slide], s.err
}

func (s *fakeStore) SetSlide(_ context.Context, _ string, slide content.SlideKey, v json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.slides[slide] = v
	return nil
}

func (s *fakeStore) Get(_ context.Context, _ string, q, j int) (content.SectionMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sections[content.SubtopicRef{Quest: q, Subtopic: j}], s.err
}

func (s *fakeStore) Set(_ context.Context, _ string, q, j int, sections content.SectionMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := content.SubtopicRef{Quest: q, Subtopic: j}
	if s.sections[ref] == nil {
		s.sections[ref] = make(content.SectionMap)
	}
	for k, v := range sections {
		s.sections[ref][k] = v
	}
	return s.err
}

func (s *fakeStore) SetSection(ctx context.Context, id string, q, j int, section content.SectionType, v json.RawMessage) error {
	return s.Set(ctx, id, q, j, content.SectionMap{section: v})
}

func (s *fakeStore) Delete(_ context.Context, _ string, q, j int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.sections, content.SubtopicRef{Quest: q, Subtopic: j})
	return nil
}

func TestLoader_StoreFirst(t *testing.T) {
	store := newFakeStore()
	store.slides[content.SlideWelcome] = json.RawMessage(`{"title":"Stored"}`)
	mock := ai.NewMockProvider(`{"title":"Generated"}`)
	l := content.NewLoader(goCourse, store, newGenerator(t, mock, nil))

	v, err := l.LoadSlide(context.Background(), content.SlideWelcome, nil, false)
	if err != nil {
		t.Fatalf("LoadSlide() error = %v", err)
	}
	if string(v) != `{"title":"Stored"}` {
		t.Errorf("LoadSlide() = %s, want stored value", v)
	}
	if mock.Calls() != 0 {
		t.Errorf("generator called %d times, want 0", mock.Calls())
	}
}

func TestLoader_ForceSkipsStore(t *testing.T) {
	store := newFakeStore()
	store.slides[content.SlideWelcome] = json.RawMessage(`{"title":"Stored"}`)
	mock := ai.NewMockProvider(`{"title":"Generated"}`)
	l := content.NewLoader(goCourse, store, newGenerator(t, mock, nil))

	v, err := l.LoadSlide(context.Background(), content.SlideWelcome, nil, true)
	if err != nil {
		t.Fatalf("LoadSlide() error = %v", err)
	}
	if !strings.Contains(string(v), "Generated") {
		t.Errorf("LoadSlide() = %s, want generated value", v)
	}
	if !strings.Contains(string(store.slides[content.SlideWelcome]), "Generated") {
		t.Error("generated slide was not written back")
	}
}

func TestLoader_SectionWriteBack(t *testing.T) {
	store := newFakeStore()
	mock := ai.NewMockProvider(`{"title":"Intro","overview":"text"}`)
	l := content.NewLoader(goCourse, store, newGenerator(t, mock, nil))

	if _, err := l.LoadSection(context.Background(), 1, 2, content.SectionOverview, nil, false); err != nil {
		t.Fatalf("LoadSection() error = %v", err)
	}
	got := l.StoredSections(context.Background(), 1, 2)
	if _, ok := got[content.SectionOverview]; !ok {
		t.Fatalf("StoredSections() = %v, want overview", got)
	}

	// Second load comes from the store.
	if _, err := l.LoadSection(context.Background(), 1, 2, content.SectionOverview, nil, false); err != nil {
		t.Fatalf("LoadSection() error = %v", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("generator called %d times, want 1", mock.Calls())
	}
}

func TestLoader_DropSections(t *testing.T) {
	store := newFakeStore()
	store.sections[content.SubtopicRef{Quest: 0, Subtopic: 1}] = content.SectionMap{
		content.SectionOverview: json.RawMessage(`{"overview":"old"}`),
	}
	store.sections[content.SubtopicRef{Quest: 0, Subtopic: 2}] = content.SectionMap{
		content.SectionOverview: json.RawMessage(`{"overview":"kept"}`),
	}
	l := content.NewLoader(goCourse, store, newGenerator(t, ai.NewMockProvider(`{}`), nil))

	l.DropSections(context.Background(), 0, 1)

	if got := l.StoredSections(context.Background(), 0, 1); got != nil {
		t.Errorf("StoredSections() after DropSections() = %v, want nil", got)
	}
	if got := l.StoredSections(context.Background(), 0, 2); len(got) != 1 {
		t.Errorf("DropSections() touched another subtopic: %v", got)
	}
}

func TestLoader_StoreErrorsFallBackToGenerator(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	mock := ai.NewMockProvider(`{"title":"Hi"}`)
	l := content.NewLoader(goCourse, store, newGenerator(t, mock, nil))

	v, err := l.LoadSlide(context.Background(), content.SlideWelcome, nil, false)
	if err != nil {
		t.Fatalf("LoadSlide() error = %v", err)
	}
	if len(v) == 0 {
		t.Error("LoadSlide() returned empty content")
	}
	if l.StoredSections(context.Background(), 0, 0) != nil {
		t.Error("StoredSections() on failing store returned data")
	}
}

func TestLoader_NilStore(t *testing.T) {
	mock := ai.NewMockProvider(`{"title":"Hi"}`)
	l := content.NewLoader(goCourse, nil, newGenerator(t, mock, nil))

	if _, err := l.LoadSlide(context.Background(), content.SlideWelcome, nil, false); err != nil {
		t.Fatalf("LoadSlide() error = %v", err)
	}
	if l.CourseID() != content.CourseID(goCourse) {
		t.Errorf("CourseID() = %s", l.CourseID())
	}
	l.DropSections(context.Background(), 0, 0)
}
