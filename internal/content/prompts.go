package content

import (
	_ "embed"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-course/internal/ai"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptSpec is one prompt template and its completion settings.
type PromptSpec struct {
	Task        string  `yaml:"task"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Template    string  `yaml:"template"`
}

type promptFile struct {
	System  string                `yaml:"system"`
	Prompts map[string]PromptSpec `yaml:"prompts"`
}

// PromptCatalog renders generation prompts per content type.
type PromptCatalog struct {
	system    string
	specs     map[ContentType]PromptSpec
	templates map[ContentType]*template.Template
}

// DefaultPrompts returns the built-in catalog.
func DefaultPrompts() (*PromptCatalog, error) {
	return LoadPrompts("")
}

// LoadPrompts builds a catalog from the built-in prompts, overlaid with the
// YAML file at path or every YAML file under path if it is a directory.
// Entries from disk replace built-in entries of the same name.
func LoadPrompts(path string) (*PromptCatalog, error) {
	var base promptFile
	if err := yaml.Unmarshal(defaultPrompts, &base); err != nil {
		return nil, fmt.Errorf("parsing built-in prompts: %w", err)
	}

	if path != "" {
		if err := overlayPrompts(&base, path); err != nil {
			return nil, fmt.Errorf("loading prompts from %s: %w", path, err)
		}
	}

	cat := &PromptCatalog{
		system:    strings.TrimSpace(base.System),
		specs:     make(map[ContentType]PromptSpec),
		templates: make(map[ContentType]*template.Template),
	}
	funcs := template.FuncMap{"join": joinAny}
	for name, spec := range base.Prompts {
		t, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(spec.Template)
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %q: %w", name, err)
		}
		cat.specs[ContentType(name)] = spec
		cat.templates[ContentType(name)] = t
	}

	for _, ct := range ContentTypes {
		if _, ok := cat.templates[ct]; !ok {
			return nil, fmt.Errorf("prompt %q is missing", ct)
		}
	}
	return cat, nil
}

func overlayPrompts(base *promptFile, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return overlayPromptFile(base, path)
	}
	return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".yaml") && !strings.HasSuffix(p, ".yml") {
			return nil
		}
		return overlayPromptFile(base, p)
	})
}

func overlayPromptFile(base *promptFile, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("skipping invalid prompt YAML", "path", path, "error", err)
		return nil
	}
	if f.System != "" {
		base.System = f.System
	}
	if base.Prompts == nil {
		base.Prompts = make(map[string]PromptSpec)
	}
	maps.Copy(base.Prompts, f.Prompts)
	return nil
}

// Render builds the completion request for req.
func (c *PromptCatalog) Render(req Request) (ai.CompletionRequest, error) {
	t, ok := c.templates[req.Type]
	if !ok {
		return ai.CompletionRequest{}, fmt.Errorf("no prompt for content type %q", req.Type)
	}
	spec := c.specs[req.Type]

	extra := req.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	var b strings.Builder
	if err := t.Execute(&b, struct {
		Course CourseContext
		Extra  map[string]any
	}{req.Course, extra}); err != nil {
		return ai.CompletionRequest{}, fmt.Errorf("rendering prompt %q: %w", req.Type, err)
	}

	return ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: c.system},
			{Role: "user", Content: strings.TrimSpace(b.String())},
		},
		MaxTokens:   spec.MaxTokens,
		Temperature: spec.Temperature,
		Task:        taskFor(spec.Task),
		JSON:        true,
	}, nil
}

func taskFor(name string) ai.TaskType {
	switch name {
	case "outline":
		return ai.TaskOutline
	case "section":
		return ai.TaskSection
	case "game":
		return ai.TaskGame
	default:
		return ai.TaskSlide
	}
}

func joinAny(v any, sep string) string {
	switch items := v.(type) {
	case []string:
		return strings.Join(items, sep)
	case []any:
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, fmt.Sprint(it))
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(v)
	}
}
