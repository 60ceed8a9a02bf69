package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/store"
)

// testStore runs the content.Store contract against s.
func testStore(t *testing.T, s content.Store) {
	ctx := context.Background()
	const course = "course-1"

	t.Run("missing slide", func(t *testing.T) {
		v, err := s.GetSlide(ctx, course, content.SlideWelcome)
		if err != nil {
			t.Fatalf("GetSlide() error = %v", err)
		}
		if v != nil {
			t.Errorf("GetSlide() = %s, want nil", v)
		}
	})

	t.Run("slide round trip", func(t *testing.T) {
		if err := s.SetSlide(ctx, course, content.SlideTOC, json.RawMessage(`{"quests": []}`)); err != nil {
			t.Fatalf("SetSlide() error = %v", err)
		}
		if err := s.SetSlide(ctx, course, content.SlideTOC, json.RawMessage(`{"quests": [{"title": "Q"}]}`)); err != nil {
			t.Fatalf("SetSlide() overwrite error = %v", err)
		}
		v, err := s.GetSlide(ctx, course, content.SlideTOC)
		if err != nil {
			t.Fatalf("GetSlide() error = %v", err)
		}
		toc, err := content.Decode[content.TableOfContents](v)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if len(toc.Quests) != 1 || toc.Quests[0].Title != "Q" {
			t.Errorf("GetSlide() = %s, want overwritten value", v)
		}
	})

	t.Run("missing sections", func(t *testing.T) {
		got, err := s.Get(ctx, course, 9, 9)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %v, want nil", got)
		}
	})

	t.Run("set merges", func(t *testing.T) {
		if err := s.Set(ctx, course, 0, 1, content.SectionMap{
			content.SectionOverview:  json.RawMessage(`{"overview": "first"}`),
			content.SectionKeyPoints: json.RawMessage(`{"keyPoints": ["a"]}`),
		}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := s.Set(ctx, course, 0, 1, content.SectionMap{
			content.SectionOverview: json.RawMessage(`{"overview": "second"}`),
		}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		got, err := s.Get(ctx, course, 0, 1)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if _, ok := got[content.SectionKeyPoints]; !ok {
			t.Error("Set() dropped a section missing from the write")
		}
		o, _ := content.Decode[content.Overview](got[content.SectionOverview])
		if o.Overview != "second" {
			t.Errorf("overview = %q, want second", o.Overview)
		}
	})

	t.Run("set section", func(t *testing.T) {
		if err := s.SetSection(ctx, course, 2, 0, content.SectionExamples, json.RawMessage(`{"examples": []}`)); err != nil {
			t.Fatalf("SetSection() new row error = %v", err)
		}
		if err := s.SetSection(ctx, course, 2, 0, content.SectionExercises, json.RawMessage(`{"exercises": []}`)); err != nil {
			t.Fatalf("SetSection() existing row error = %v", err)
		}
		got, err := s.Get(ctx, course, 2, 0)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Get() = %v, want two sections", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.SetSection(ctx, course, 3, 1, content.SectionOverview, json.RawMessage(`{"overview": "old"}`)); err != nil {
			t.Fatalf("SetSection() error = %v", err)
		}
		if err := s.Delete(ctx, course, 3, 1); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete(ctx, course, 3, 1); err != nil {
			t.Fatalf("Delete() of missing row error = %v", err)
		}
		got, err := s.Get(ctx, course, 3, 1)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() after Delete() = %v, want nil", got)
		}
		if other, _ := s.Get(ctx, course, 2, 0); len(other) == 0 {
			t.Error("Delete() removed another subtopic")
		}
	})

	t.Run("courses are isolated", func(t *testing.T) {
		got, err := s.Get(ctx, "other-course", 0, 1)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() for other course = %v, want nil", got)
		}
	})

	t.Run("course id required", func(t *testing.T) {
		if err := s.SetSlide(ctx, "", content.SlideWelcome, json.RawMessage(`{}`)); err == nil {
			t.Error("SetSlide() without course id should fail")
		}
		if err := s.Set(ctx, "", 0, 0, content.SectionMap{}); err == nil {
			t.Error("Set() without course id should fail")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, store.NewMemoryStore())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.SetSection(ctx, "c", 0, 0, content.SectionOverview, json.RawMessage(`{}`))

	got, _ := s.Get(ctx, "c", 0, 0)
	got[content.SectionExamples] = json.RawMessage(`{}`)

	again, _ := s.Get(ctx, "c", 0, 0)
	if len(again) != 1 {
		t.Errorf("mutating Get() result changed the store: %v", again)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := store.NewPostgresStore(nil); err == nil {
		t.Error("NewPostgresStore(nil) should fail")
	}
}
