package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-course/internal/content"
)

// DefaultPreloadDelay is the pause before each background section fetch.
const DefaultPreloadDelay = 2 * time.Second

// ErrNoTOC is reported when a command needs the table of contents before it
// has been loaded.
var ErrNoTOC = errors.New("table of contents not loaded")

// ContentLoader loads content for one course. *content.Loader implements it.
type ContentLoader interface {
	CourseID() string
	LoadSlide(ctx context.Context, slide content.SlideKey, extra map[string]any, force bool) (json.RawMessage, error)
	SaveSlide(ctx context.Context, slide content.SlideKey, value json.RawMessage)
	LoadSection(ctx context.Context, quest, subtopic int, section content.SectionType, extra map[string]any, force bool) (json.RawMessage, error)
	SaveSections(ctx context.Context, quest, subtopic int, sections content.SectionMap)
	StoredSections(ctx context.Context, quest, subtopic int) content.SectionMap
	DropSections(ctx context.Context, quest, subtopic int)
}

// Config holds dependencies for a player.
type Config struct {
	SessionID    string
	Course       content.CourseContext
	Loader       ContentLoader
	Cache        *content.Cache // defaults to an empty cache
	Events       EventSink      // defaults to NopEventSink
	PreloadDelay time.Duration  // defaults to DefaultPreloadDelay
}

// Player holds the navigation state of one course session. Commands are
// serialized; Snapshot may be called at any time.
type Player struct {
	sessionID    string
	course       content.CourseContext
	courseID     string
	loader       ContentLoader
	cache        *content.Cache
	events       EventSink
	preloadDelay time.Duration

	cmd sync.Mutex

	mu          sync.RWMutex
	view        View
	seq         QuestSequence
	cancelScope context.CancelFunc // preloads of the open subtopic
	closed      bool

	bg sync.WaitGroup
}

// NewPlayer creates a player showing the welcome slide.
func NewPlayer(cfg Config) (*Player, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("player needs a content loader")
	}
	if !cfg.Course.Valid() {
		return nil, fmt.Errorf("course needs a subject and a topic")
	}

	p := &Player{
		sessionID:    cfg.SessionID,
		course:       cfg.Course,
		courseID:     cfg.Loader.CourseID(),
		loader:       cfg.Loader,
		cache:        cfg.Cache,
		events:       cfg.Events,
		preloadDelay: cfg.PreloadDelay,
		view:         WelcomeView(),
	}
	if p.cache == nil {
		p.cache = content.NewCache()
	}
	if p.events == nil {
		p.events = NopEventSink{}
	}
	if p.preloadDelay <= 0 {
		p.preloadDelay = DefaultPreloadDelay
	}
	return p, nil
}

func (p *Player) SessionID() string             { return p.sessionID }
func (p *Player) CourseID() string              { return p.courseID }
func (p *Player) Course() content.CourseContext { return p.course }
func (p *Player) Cache() *content.Cache         { return p.cache }

// View returns the current view.
func (p *Player) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// Sequence returns the adventure sequence state.
func (p *Player) Sequence() QuestSequence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seq
}

// Start loads the welcome slide and reports whether it is available.
func (p *Player) Start(ctx context.Context) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	_, err := p.fetchSlide(ctx, content.SlideWelcome, false)
	return err == nil
}

// SelectQuest opens the detail slide of quest i.
func (p *Player) SelectQuest(_ context.Context, i int) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()
	return p.selectQuest(i)
}

// BeginAdventure starts the guided sequence at the first quest.
func (p *Player) BeginAdventure(_ context.Context) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	toc, err := p.tableOfContents()
	if err != nil {
		p.ignored("begin_adventure", err.Error())
		return false
	}
	if len(toc.Quests) == 0 {
		p.ignored("begin_adventure", "course has no quests")
		return false
	}

	p.mu.Lock()
	p.seq = QuestSequence{Started: true, CurrentQuestIndex: 0, TotalQuests: len(toc.Quests)}
	p.mu.Unlock()
	p.emit(EventAdventureStarted, map[string]any{"total_quests": len(toc.Quests)})

	return p.selectQuest(0)
}

// SelectSubtopic opens subtopic j of the open quest, loads its overview and
// then warms the remaining sections in the background.
func (p *Player) SelectSubtopic(ctx context.Context, j int) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	v := p.View()
	if v.Kind != ViewQuestDetail && v.Kind != ViewSubtopic {
		p.ignored("select_subtopic", "no quest open", "view", v.String())
		return false
	}
	return p.selectSubtopic(ctx, v.Quest, j)
}

// Next moves forward one slide.
func (p *Player) Next(ctx context.Context) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	p.mu.RLock()
	v, seq := p.view, p.seq
	p.mu.RUnlock()

	switch v.Kind {
	case ViewSubtopic:
		toc, err := p.tableOfContents()
		if err != nil {
			p.ignored("next", err.Error())
			return false
		}
		if v.Quest < len(toc.Quests) && v.Subtopic+1 < len(toc.Quests[v.Quest].Subtopics) {
			return p.selectSubtopic(ctx, v.Quest, v.Subtopic+1)
		}
		p.setView(QuestDetailView(v.Quest))
		return true
	case ViewQuestDetail:
		if seq.Started {
			total := seq.TotalQuests
			if toc, err := p.tableOfContents(); err == nil {
				total = min(total, len(toc.Quests))
			}
			if v.Quest+1 < total {
				return p.selectQuest(v.Quest + 1)
			}
			p.endAdventure()
			return true
		}
	}
	return p.step(ctx, v, 1, "next")
}

// Previous moves back one slide.
func (p *Player) Previous(ctx context.Context) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	p.mu.RLock()
	v, seq := p.view, p.seq
	p.mu.RUnlock()

	switch v.Kind {
	case ViewSubtopic:
		if v.Subtopic > 0 {
			return p.selectSubtopic(ctx, v.Quest, v.Subtopic-1)
		}
		p.setView(QuestDetailView(v.Quest))
		return true
	case ViewQuestDetail:
		if seq.Started && v.Quest > 0 {
			return p.selectQuest(v.Quest - 1)
		}
		if seq.Started {
			p.endAdventure()
			return true
		}
		p.setView(TOCView())
		return true
	}
	return p.step(ctx, v, -1, "previous")
}

// ExitAdventure stops the guided sequence and returns to the table of contents.
func (p *Player) ExitAdventure(_ context.Context) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()
	p.endAdventure()
	return true
}

// Refresh regenerates the content of a slide. A new table of contents drops
// the sections of every subtopic whose title changed.
func (p *Player) Refresh(ctx context.Context, slide content.SlideKey) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	var before *content.TableOfContents
	if slide == content.SlideTOC {
		before, _ = p.tableOfContents()
	}
	if _, err := p.fetchSlide(ctx, slide, true); err != nil {
		return false
	}
	if slide == content.SlideTOC {
		p.outlineChanged(ctx, before)
	}
	return true
}

// RefreshSection regenerates one section of a subtopic.
func (p *Player) RefreshSection(ctx context.Context, quest, subtopic int, section content.SectionType) bool {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	toc, err := p.tableOfContents()
	if err != nil {
		p.ignored("refresh", err.Error())
		return false
	}
	extra, ok := sectionExtra(toc, quest, subtopic)
	if !ok {
		p.ignored("refresh", "subtopic not found", "quest", quest, "subtopic", subtopic)
		return false
	}
	_, err = p.fetchSection(ctx, quest, subtopic, section, extra, content.FetchOptions{ForceRefresh: true})
	return err == nil
}

// Wait blocks until background preloading has stopped.
func (p *Player) Wait() {
	p.bg.Wait()
}

// Close cancels background preloading and waits for it to stop.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancelScope != nil {
		p.cancelScope()
		p.cancelScope = nil
	}
	p.mu.Unlock()
	p.bg.Wait()
}

func (p *Player) selectQuest(i int) bool {
	toc, err := p.tableOfContents()
	if err != nil {
		p.ignored("select_quest", err.Error())
		return false
	}
	if i < 0 || i >= len(toc.Quests) {
		p.ignored("select_quest", "quest out of range", "quest", i, "quests", len(toc.Quests))
		return false
	}

	p.mu.Lock()
	if p.seq.Started {
		p.seq.CurrentQuestIndex = i
	}
	p.mu.Unlock()

	p.setView(QuestDetailView(i))
	return true
}

func (p *Player) selectSubtopic(ctx context.Context, q, j int) bool {
	toc, err := p.tableOfContents()
	if err != nil {
		p.ignored("select_subtopic", err.Error())
		return false
	}
	if q < 0 || q >= len(toc.Quests) {
		p.ignored("select_subtopic", "quest out of range", "quest", q)
		return false
	}
	if toc.Quests[q].EnsureSubtopics() {
		p.saveTOC(ctx, toc)
	}
	extra, ok := sectionExtra(toc, q, j)
	if !ok {
		p.ignored("select_subtopic", "subtopic out of range", "quest", q, "subtopic", j)
		return false
	}

	p.setView(SubtopicView(q, j))
	scope := p.newScope()
	p.seedStored(ctx, q, j)

	// A caller that gives up leaves the overview loading; the preload waits for it.
	if _, err := p.fetchSection(ctx, q, j, content.SectionOverview, extra, content.FetchOptions{}); err != nil && !errors.Is(err, context.Canceled) {
		return true
	}
	p.startPreload(scope, q, j, extra)
	return true
}

// outlineChanged reconciles session state with a regenerated table of
// contents: sections keyed by a subtopic whose title changed are dropped, the
// adventure length follows the new quest count, and a view that no longer
// exists falls back to its parent.
func (p *Player) outlineChanged(ctx context.Context, before *content.TableOfContents) {
	after, err := p.tableOfContents()
	if err != nil {
		return
	}

	oldTitles, newTitles := subtopicTitles(before), subtopicTitles(after)
	for ref, title := range oldTitles {
		if newTitles[ref] == title {
			continue
		}
		p.cache.Forget(ref.Quest, ref.Subtopic)
		p.loader.DropSections(ctx, ref.Quest, ref.Subtopic)
		slog.Info("dropped sections of renamed subtopic",
			"course_id", p.courseID, "quest", ref.Quest, "subtopic", ref.Subtopic)
	}

	p.mu.Lock()
	v := p.view
	if p.seq.Started {
		p.seq.TotalQuests = len(after.Quests)
		p.seq.CurrentQuestIndex = min(p.seq.CurrentQuestIndex, max(len(after.Quests)-1, 0))
	}
	p.mu.Unlock()

	switch v.Kind {
	case ViewQuestDetail, ViewSubtopic:
		if v.Quest >= len(after.Quests) {
			p.endAdventure()
			return
		}
		if v.Kind == ViewSubtopic {
			q := after.Quests[v.Quest]
			q.EnsureSubtopics()
			if v.Subtopic >= len(q.Subtopics) {
				p.setView(QuestDetailView(v.Quest))
			}
		}
	}
}

// subtopicTitles maps each subtopic of toc to its title. Quests without
// subtopics yet use their objectives, which become the subtopics.
func subtopicTitles(toc *content.TableOfContents) map[content.SubtopicRef]string {
	titles := make(map[content.SubtopicRef]string)
	if toc == nil {
		return titles
	}
	for q, quest := range toc.Quests {
		if len(quest.Subtopics) > 0 {
			for j, st := range quest.Subtopics {
				titles[content.SubtopicRef{Quest: q, Subtopic: j}] = st.Title
			}
			continue
		}
		for j, obj := range quest.Objectives {
			titles[content.SubtopicRef{Quest: q, Subtopic: j}] = obj
		}
	}
	return titles
}

// step moves delta slides through the slide list of v, loading the
// destination's content first. A failed load still navigates.
func (p *Player) step(ctx context.Context, v View, delta int, command string) bool {
	slides := Slides(v)
	pos := Position(v) + delta
	if pos < 0 || pos >= len(slides) {
		p.ignored(command, "no slide in that direction", "view", v.String())
		return false
	}

	dest := slides[pos]
	if _, ok := p.cache.Get(content.SlideContentKey(dest.SlideKey())); !ok {
		_, _ = p.fetchSlide(ctx, dest.SlideKey(), false)
	}
	p.setView(dest)
	return true
}

func (p *Player) endAdventure() {
	p.mu.Lock()
	wasStarted := p.seq.Started
	p.seq = QuestSequence{}
	p.mu.Unlock()

	p.setView(TOCView())
	if wasStarted {
		p.emit(EventAdventureEnded, nil)
	}
}

// setView switches views. Leaving a view cancels its preloads.
func (p *Player) setView(v View) {
	p.mu.Lock()
	prev := p.view
	p.view = v
	if prev != v && p.cancelScope != nil {
		p.cancelScope()
		p.cancelScope = nil
	}
	p.mu.Unlock()

	if prev != v {
		p.emit(EventSlideChanged, map[string]any{
			"from":     prev.String(),
			"to":       v.String(),
			"position": Position(v),
		})
	}
}

// newScope replaces the preload scope of the open subtopic.
func (p *Player) newScope() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelScope != nil {
		p.cancelScope()
	}
	scope, cancel := context.WithCancel(context.Background())
	if p.closed {
		cancel()
		p.cancelScope = nil
		return scope
	}
	p.cancelScope = cancel
	return scope
}

func (p *Player) fetchSlide(ctx context.Context, slide content.SlideKey, force bool) (json.RawMessage, error) {
	key := content.SlideContentKey(slide)
	extra := p.slideExtra(slide)

	v, err := p.cache.Fetch(ctx, key, func(fctx context.Context) (json.RawMessage, error) {
		raw, err := p.loader.LoadSlide(fctx, slide, extra, force)
		if err != nil {
			return nil, err
		}
		if slide == content.SlideTOC {
			return p.hydrateTOC(fctx, raw), nil
		}
		return raw, nil
	}, content.FetchOptions{ForceRefresh: force})

	p.reportFetch(key, err)
	return v, err
}

func (p *Player) fetchSection(ctx context.Context, q, j int, section content.SectionType, extra map[string]any, opts content.FetchOptions) (json.RawMessage, error) {
	key := content.SectionKey(q, j, section)
	v, err := p.cache.Fetch(ctx, key, func(fctx context.Context) (json.RawMessage, error) {
		return p.loader.LoadSection(fctx, q, j, section, extra, opts.ForceRefresh)
	}, opts)

	p.reportFetch(key, err)
	return v, err
}

func (p *Player) reportFetch(key content.Key, err error) {
	switch {
	case err == nil:
		p.emit(EventContentLoaded, map[string]any{"key": key.String()})
	case errors.Is(err, context.Canceled):
		slog.Debug("content fetch abandoned", "session_id", p.sessionID, "key", key.String())
	default:
		slog.Warn("content fetch failed",
			"session_id", p.sessionID,
			"course_id", p.courseID,
			"key", key.String(),
			"error", err,
		)
		p.emit(EventContentFailed, map[string]any{"key": key.String(), "error": err.Error()})
	}
}

// hydrateTOC moves section content embedded in a table of contents into the
// section cache and the store, and returns the table without it. Sections
// already cached or stored are kept.
func (p *Player) hydrateTOC(ctx context.Context, raw json.RawMessage) json.RawMessage {
	toc, err := content.Decode[content.TableOfContents](raw)
	if err != nil {
		return raw
	}

	changed := false
	for q := range toc.Quests {
		for j := range toc.Quests[q].Subtopics {
			st := &toc.Quests[q].Subtopics[j]
			if len(st.Content) == 0 {
				continue
			}
			stored := p.loader.StoredSections(ctx, q, j)
			for s, v := range stored {
				p.cache.Seed(content.SectionKey(q, j, s), v)
			}
			embedded := make(content.SectionMap, len(st.Content))
			for name, v := range st.Content {
				if s, ok := content.ParseSectionType(string(name)); ok {
					embedded[s] = v
					p.cache.Seed(content.SectionKey(q, j, s), v)
				}
			}
			p.loader.SaveSections(ctx, q, j, content.MergeSections(stored, embedded))
			st.Content = nil
			changed = true
		}
	}
	if !changed {
		return raw
	}

	out, err := json.Marshal(toc)
	if err != nil {
		return raw
	}
	p.loader.SaveSlide(ctx, content.SlideTOC, out)
	slog.Info("moved embedded subtopic content into section cache", "course_id", p.courseID)
	return out
}

func (p *Player) saveTOC(ctx context.Context, toc *content.TableOfContents) {
	out, err := json.Marshal(toc)
	if err != nil {
		slog.Warn("failed to encode table of contents", "course_id", p.courseID, "error", err)
		return
	}
	p.cache.Put(content.SlideContentKey(content.SlideTOC), out)
	p.loader.SaveSlide(ctx, content.SlideTOC, out)
}

// seedStored copies stored sections of a subtopic into the cache.
func (p *Player) seedStored(ctx context.Context, q, j int) {
	for s, v := range p.loader.StoredSections(ctx, q, j) {
		p.cache.Seed(content.SectionKey(q, j, s), v)
	}
}

func (p *Player) tableOfContents() (*content.TableOfContents, error) {
	raw, ok := p.cache.Get(content.SlideContentKey(content.SlideTOC))
	if !ok {
		return nil, ErrNoTOC
	}
	return content.Decode[content.TableOfContents](raw)
}

func (p *Player) slideExtra(slide content.SlideKey) map[string]any {
	if slide != content.SlideMemory && slide != content.SlideSummary {
		return nil
	}
	toc, err := p.tableOfContents()
	if err != nil {
		return nil
	}
	titles := make([]string, 0, len(toc.Quests))
	for _, q := range toc.Quests {
		titles = append(titles, q.Title)
	}
	return map[string]any{"quests": titles}
}

func sectionExtra(toc *content.TableOfContents, q, j int) (map[string]any, bool) {
	if q < 0 || q >= len(toc.Quests) {
		return nil, false
	}
	quest := toc.Quests[q]
	if j < 0 || j >= len(quest.Subtopics) {
		return nil, false
	}
	return map[string]any{
		"quest":       quest.Title,
		"subtopic":    quest.Subtopics[j].Title,
		"description": quest.Subtopics[j].Description,
	}, true
}

func (p *Player) ignored(command, reason string, args ...any) {
	attrs := append([]any{"session_id", p.sessionID, "command", command, "reason", reason}, args...)
	slog.Warn("command ignored", attrs...)
}

func (p *Player) emit(eventType string, data map[string]any) {
	err := p.events.LogEvent(Event{
		SessionID: p.sessionID,
		CourseID:  p.courseID,
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("failed to log event", "type", eventType, "session_id", p.sessionID, "error", err)
	}
}
