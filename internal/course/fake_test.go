package course_test

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
)

// fakeLoader serves canned content and records every load.
type fakeLoader struct {
	mu       sync.Mutex
	slides   map[content.SlideKey]string
	errs     map[string]error
	gates    map[string]chan struct{}
	calls    []string
	stored   map[content.SubtopicRef]content.SectionMap
	saved    map[content.SlideKey]json.RawMessage
	dropped  []content.SubtopicRef
	lastSect map[string]map[string]any
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		slides: map[content.SlideKey]string{
			content.SlideWelcome: `{"title":"Welcome to Go"}`,
			content.SlideMemory:  `{"title":"Memory","pairs":[]}`,
			content.SlideSummary: `{"title":"Summary","recap":"done"}`,
		},
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		stored:   make(map[content.SubtopicRef]content.SectionMap),
		saved:    make(map[content.SlideKey]json.RawMessage),
		lastSect: make(map[string]map[string]any),
	}
}

// withTOC sets the table of contents to quests, each with n objectives.
func (f *fakeLoader) withTOC(objectives ...int) *fakeLoader {
	f.mu.Lock()
	defer f.mu.Unlock()
	toc := content.TableOfContents{Title: "Go"}
	for i, n := range objectives {
		q := content.Quest{Title: fmt.Sprintf("Quest %d", i+1)}
		for j := 0; j < n; j++ {
			q.Objectives = append(q.Objectives, fmt.Sprintf("Objective %d.%d", i+1, j+1))
		}
		toc.Quests = append(toc.Quests, q)
	}
	data, _ := json.Marshal(toc)
	f.slides[content.SlideTOC] = string(data)
	return f
}

func (f *fakeLoader) setSlide(slide content.SlideKey, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slides[slide] = v
}

func (f *fakeLoader) gate(key content.Key) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key.String()] = ch
	return ch
}

func (f *fakeLoader) fail(key content.Key, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key.String()] = err
}

func (f *fakeLoader) record(key content.Key) (chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key.String())
	return f.gates[key.String()], f.errs[key.String()]
}

func (f *fakeLoader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLoader) count(key content.Key) int {
	n := 0
	for _, c := range f.Calls() {
		if c == key.String() {
			n++
		}
	}
	return n
}

func (f *fakeLoader) CourseID() string { return "course-test" }

func (f *fakeLoader) LoadSlide(ctx context.Context, slide content.SlideKey, _ map[string]any, _ bool) (json.RawMessage, error) {
	gate, err := f.record(content.SlideContentKey(slide))
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.slides[slide]
	if !ok {
		return nil, fmt.Errorf("no %s slide", slide)
	}
	return json.RawMessage(v), nil
}

func (f *fakeLoader) SaveSlide(_ context.Context, slide content.SlideKey, value json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[slide] = value
}

func (f *fakeLoader) LoadSection(_ context.Context, q, j int, section content.SectionType, extra map[string]any, _ bool) (json.RawMessage, error) {
	key := content.SectionKey(q, j, section)
	gate, err := f.record(key)
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastSect[key.String()] = extra
	f.mu.Unlock()
	return json.RawMessage(fmt.Sprintf(`{"title":%q}`, key.String())), nil
}

func (f *fakeLoader) SaveSections(_ context.Context, q, j int, sections content.SectionMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := content.SubtopicRef{Quest: q, Subtopic: j}
	if f.stored[ref] == nil {
		f.stored[ref] = make(content.SectionMap)
	}
	maps.Copy(f.stored[ref], sections)
}

func (f *fakeLoader) DropSections(_ context.Context, q, j int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := content.SubtopicRef{Quest: q, Subtopic: j}
	f.dropped = append(f.dropped, ref)
	delete(f.stored, ref)
}

func (f *fakeLoader) Dropped() []content.SubtopicRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]content.SubtopicRef(nil), f.dropped...)
}

func (f *fakeLoader) StoredSections(_ context.Context, q, j int) content.SectionMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.stored[content.SubtopicRef{Quest: q, Subtopic: j}])
}

var testCourse = content.CourseContext{Subject: "Programming", Topic: "Go"}

func newPlayer(t *testing.T, loader *fakeLoader, delay time.Duration) (*course.Player, *course.MemoryEventSink) {
	t.Helper()
	events := course.NewMemoryEventSink()
	p, err := course.NewPlayer(course.Config{
		SessionID:    "s-1",
		Course:       testCourse,
		Loader:       loader,
		Events:       events,
		PreloadDelay: delay,
	})
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p, events
}

// atTOC returns a player showing a loaded table of contents.
func atTOC(t *testing.T, loader *fakeLoader, delay time.Duration) (*course.Player, *course.MemoryEventSink) {
	t.Helper()
	p, events := newPlayer(t, loader, delay)
	if !p.Next(context.Background()) {
		t.Fatal("Next() from welcome was not applied")
	}
	if p.View() != course.TOCView() {
		t.Fatalf("View() = %v, want toc", p.View())
	}
	return p, events
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitIdle(t *testing.T, p *course.Player) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background preloading did not stop")
	}
}
