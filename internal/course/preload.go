package course

import (
	"context"
	"time"

	"github.com/p-n-ai/pai-course/internal/content"
)

// preloadOrder is the order subtopic sections are warmed in. Each step runs
// only after the one before it is cached.
var preloadOrder = []content.SectionType{
	content.SectionOverview,
	content.SectionKeyPoints,
	content.SectionExamples,
	content.SectionExercises,
}

func (p *Player) startPreload(scope context.Context, q, j int, extra map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || scope.Err() != nil {
		return
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		p.preload(scope, q, j, extra)
	}()
}

// preload fetches the sections after the overview one at a time, pausing
// before each. It stops when scope is cancelled or a fetch fails. An overview
// still in flight is awaited first.
func (p *Player) preload(scope context.Context, q, j int, extra map[string]any) {
	if _, ok := p.cache.Get(content.SectionKey(q, j, preloadOrder[0])); !ok {
		if _, err := p.fetchSection(scope, q, j, preloadOrder[0], extra, content.FetchOptions{SkipLoading: true}); err != nil {
			return
		}
	}
	for i := 1; i < len(preloadOrder); i++ {
		prev, next := preloadOrder[i-1], preloadOrder[i]
		if _, ok := p.cache.Get(content.SectionKey(q, j, prev)); !ok {
			return
		}
		if _, ok := p.cache.Get(content.SectionKey(q, j, next)); ok {
			continue
		}

		timer := time.NewTimer(p.preloadDelay)
		select {
		case <-scope.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := p.fetchSection(scope, q, j, next, extra, content.FetchOptions{SkipLoading: true}); err != nil {
			return
		}
	}
}
