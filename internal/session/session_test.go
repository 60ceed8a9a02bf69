package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/session"
	"github.com/p-n-ai/pai-course/internal/store"
)

var goCourse = content.CourseContext{Subject: "Programming", Topic: "Go"}

func factory(t *testing.T, mock *ai.MockProvider) session.PlayerFactory {
	t.Helper()
	gen, err := content.NewGenerator(content.GeneratorConfig{AI: mock})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	st := store.NewMemoryStore()
	return func(id string, c content.CourseContext) (*course.Player, error) {
		return course.NewPlayer(course.Config{
			SessionID: id,
			Course:    c,
			Loader:    content.NewLoader(c, st, gen),
		})
	}
}

func TestMemoryContextStore(t *testing.T) {
	s := session.NewMemoryContextStore()
	ctx := context.Background()

	if _, err := s.Load(ctx, "a"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, "a", goCourse); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != goCourse {
		t.Errorf("Load() = %+v, want %+v", got, goCourse)
	}
	if err := s.Clear(ctx, "a"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Load() after Clear() error = %v", err)
	}
}

func TestContextKey(t *testing.T) {
	if got := session.ContextKey("abc"); got != "course:context:abc" {
		t.Errorf("ContextKey() = %q", got)
	}
}

func TestRedisContextStore_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	c := &cache.Cache{Client: redis.NewClient(&redis.Options{
		Addr:        "localhost:59999",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})}
	defer c.Close()

	s := session.NewRedisContextStore(c, time.Hour)
	ctx := t.Context()
	if err := s.Save(ctx, "a", goCourse); err == nil {
		t.Error("Save() should fail for unreachable host")
	}
	if _, err := s.Load(ctx, "a"); err == nil || errors.Is(err, session.ErrNotFound) {
		t.Errorf("Load() error = %v, want a connection error", err)
	}
}

func TestManager_StartGetClose(t *testing.T) {
	mock := ai.NewMockProvider(`{"title":"Welcome to Go"}`)
	contexts := session.NewMemoryContextStore()
	m := session.NewManager(contexts, factory(t, mock))
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Start(ctx, goCourse)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.ID == "" {
		t.Fatal("Start() returned empty session id")
	}
	if snap := s.Player.Snapshot(); snap.Content == nil {
		t.Error("welcome slide not loaded on start")
	}
	if _, err := contexts.Load(ctx, s.ID); err != nil {
		t.Errorf("course context not saved: %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	if err := m.Close(ctx, s.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() after Close() error = %v", err)
	}
	if _, err := contexts.Load(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Error("course context kept after Close()")
	}
	if err := m.Close(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("second Close() error = %v, want ErrNotFound", err)
	}
}

func TestManager_StartRejectsIncompleteCourse(t *testing.T) {
	m := session.NewManager(nil, factory(t, ai.NewMockProvider("{}")))
	if _, err := m.Start(context.Background(), content.CourseContext{Topic: "Go"}); err == nil {
		t.Error("Start() without subject should fail")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestManager_ResumeAfterShutdown(t *testing.T) {
	mock := ai.NewMockProvider(`{"title":"Welcome"}`)
	contexts := session.NewMemoryContextStore()
	m := session.NewManager(contexts, factory(t, mock))
	ctx := context.Background()

	s, err := m.Start(ctx, goCourse)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Shutdown()
	if m.Len() != 0 {
		t.Fatalf("Len() after Shutdown() = %d", m.Len())
	}

	resumed, err := m.Resume(ctx, s.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Player.Course() != goCourse {
		t.Errorf("resumed course = %+v", resumed.Player.Course())
	}
	if resumed.Player.CourseID() != s.Player.CourseID() {
		t.Error("resumed session has a different course id")
	}
	// Content comes back from the store, not the generator.
	if mock.Calls() != 1 {
		t.Errorf("generator called %d times, want 1", mock.Calls())
	}
	m.Shutdown()
}

func TestManager_ResumeUnknown(t *testing.T) {
	m := session.NewManager(nil, factory(t, ai.NewMockProvider("{}")))
	if _, err := m.Resume(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Resume() error = %v, want ErrNotFound", err)
	}
}

func TestManager_FactoryFailureClearsContext(t *testing.T) {
	contexts := session.NewMemoryContextStore()
	boom := errors.New("boom")
	m := session.NewManager(contexts, func(string, content.CourseContext) (*course.Player, error) {
		return nil, boom
	})

	if _, err := m.Start(context.Background(), goCourse); !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want %v", err, boom)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}
