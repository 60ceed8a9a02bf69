// Package export writes course content to spreadsheet workbooks.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-course/internal/content"
)

// Sheet names, in workbook order.
const (
	SheetCourse   = "Course"
	SheetQuests   = "Quests"
	SheetSections = "Sections"
	SheetMemory   = "Memory"
	SheetSummary  = "Summary"
)

// Workbook builds a workbook from course material. The caller must Close it.
func Workbook(m content.Material) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetCourse); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetQuests, SheetSections, SheetMemory, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	w := &sheetWriter{f: f, header: header}

	w.table(SheetCourse, []string{"Field", "Value"}, courseRows(m))
	w.table(SheetQuests, []string{"Quest", "Title", "Description", "Objectives", "Subtopics"}, questRows(m.TOC))
	w.table(SheetSections, []string{"Quest", "Subtopic", "Title", "Section", "Content"}, sectionRows(m))
	w.table(SheetMemory, []string{"Term", "Definition"}, memoryRows(m.Memory))
	w.table(SheetSummary, []string{"Recap", "Key takeaways", "Next steps"}, summaryRows(m.Summary))

	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write streams the workbook for m to out.
func Write(out io.Writer, m content.Material) error {
	f, err := Workbook(m)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (w *sheetWriter) table(sheet string, header []string, rows [][]any) {
	if w.err != nil {
		return
	}
	if err := w.row(sheet, 1, toAny(header)); err != nil {
		w.err = err
		return
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	if err := w.f.SetCellStyle(sheet, "A1", last+"1", w.header); err != nil {
		w.err = err
		return
	}
	if err := w.f.SetColWidth(sheet, "A", last, 24); err != nil {
		w.err = err
		return
	}
	for i, r := range rows {
		if err := w.row(sheet, i+2, r); err != nil {
			w.err = err
			return
		}
	}
}

func (w *sheetWriter) row(sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, n, err)
	}
	return nil
}

func courseRows(m content.Material) [][]any {
	rows := [][]any{
		{"Subject", m.Course.Subject},
		{"Topic", m.Course.Topic},
		{"Description", m.Course.Description},
		{"Course ID", content.CourseID(m.Course)},
	}
	if m.Welcome != nil {
		rows = append(rows,
			[]any{"Title", m.Welcome.Title},
			[]any{"Tagline", m.Welcome.Tagline},
			[]any{"Welcome", m.Welcome.Description},
		)
	}
	return rows
}

func questRows(toc *content.TableOfContents) [][]any {
	if toc == nil {
		return nil
	}
	rows := make([][]any, 0, len(toc.Quests))
	for i, q := range toc.Quests {
		titles := make([]string, 0, len(q.Subtopics))
		for _, s := range q.Subtopics {
			titles = append(titles, s.Title)
		}
		rows = append(rows, []any{i + 1, q.Title, q.Description, strings.Join(q.Objectives, "\n"), strings.Join(titles, "\n")})
	}
	return rows
}

func sectionRows(m content.Material) [][]any {
	refs := slices.SortedFunc(maps.Keys(m.Sections), func(a, b content.SubtopicRef) int {
		if a.Quest != b.Quest {
			return a.Quest - b.Quest
		}
		return a.Subtopic - b.Subtopic
	})

	var rows [][]any
	for _, ref := range refs {
		title := subtopicTitle(m.TOC, ref)
		sections := m.Sections[ref]
		for _, s := range content.SectionTypes {
			raw, ok := sections[s]
			if !ok {
				continue
			}
			rows = append(rows, []any{ref.Quest + 1, ref.Subtopic + 1, title, string(s), SectionText(s, raw)})
		}
	}
	return rows
}

func subtopicTitle(toc *content.TableOfContents, ref content.SubtopicRef) string {
	if toc == nil || ref.Quest >= len(toc.Quests) {
		return ""
	}
	q := toc.Quests[ref.Quest]
	if ref.Subtopic < len(q.Subtopics) {
		return q.Subtopics[ref.Subtopic].Title
	}
	if ref.Subtopic < len(q.Objectives) {
		return q.Objectives[ref.Subtopic]
	}
	return ""
}

func memoryRows(g *content.MemoryGame) [][]any {
	if g == nil {
		return nil
	}
	rows := make([][]any, 0, len(g.Pairs))
	for _, p := range g.Pairs {
		rows = append(rows, []any{p.Term, p.Definition})
	}
	return rows
}

func summaryRows(s *content.Summary) [][]any {
	if s == nil {
		return nil
	}
	return [][]any{{s.Recap, strings.Join(s.KeyTakeaways, "\n"), strings.Join(s.NextSteps, "\n")}}
}

// SectionText renders a section as plain text. Sections that do not decode
// are written as their raw JSON.
func SectionText(s content.SectionType, raw json.RawMessage) string {
	var lines []string
	switch s {
	case content.SectionOverview:
		if v, err := content.Decode[content.Overview](raw); err == nil {
			return v.Overview
		}
	case content.SectionKeyPoints:
		if v, err := content.Decode[content.KeyPoints](raw); err == nil {
			for _, p := range v.KeyPoints {
				lines = append(lines, "- "+p)
			}
			return strings.Join(lines, "\n")
		}
	case content.SectionExamples:
		if v, err := content.Decode[content.Examples](raw); err == nil {
			for _, e := range v.Examples {
				lines = append(lines, e.Title+": "+e.Description)
				if e.Code != "" {
					lines = append(lines, e.Code)
				}
			}
			return strings.Join(lines, "\n")
		}
	case content.SectionExercises:
		if v, err := content.Decode[content.Exercises](raw); err == nil {
			for i, e := range v.Exercises {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, e.Question))
				if e.Hint != "" {
					lines = append(lines, "   Hint: "+e.Hint)
				}
				if e.Solution != "" {
					lines = append(lines, "   Solution: "+e.Solution)
				}
			}
			return strings.Join(lines, "\n")
		}
	case content.SectionMatchingExercises:
		if v, err := content.Decode[content.MatchingExercises](raw); err == nil {
			for _, p := range v.MatchingExercises {
				lines = append(lines, p.Term+": "+p.Definition)
			}
			return strings.Join(lines, "\n")
		}
	}
	return string(raw)
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
