package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-course/internal/ai"
)

var (
	// ErrGeneration wraps every failure to produce content.
	ErrGeneration = errors.New("content generation failed")
	// ErrBudgetExceeded is returned when a course has used its token budget.
	ErrBudgetExceeded = errors.New("token budget exceeded")
)

// Request asks the generator for one piece of content.
type Request struct {
	Type   ContentType
	Course CourseContext
	Extra  map[string]any
}

// ContentGenerator produces content for a request.
type ContentGenerator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// GeneratorConfig holds dependencies for the generator.
type GeneratorConfig struct {
	AI        ai.Completer
	Prompts   *PromptCatalog   // defaults to the built-in catalog
	Validator *Validator       // defaults to the built-in schemas
	Budget    ai.BudgetChecker // optional
}

// Generator turns prompts into validated course content through the AI router.
type Generator struct {
	ai        ai.Completer
	prompts   *PromptCatalog
	validator *Validator
	budget    ai.BudgetChecker
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.AI == nil {
		return nil, fmt.Errorf("generator needs an AI completer")
	}
	g := &Generator{
		ai:        cfg.AI,
		prompts:   cfg.Prompts,
		validator: cfg.Validator,
		budget:    cfg.Budget,
	}
	var err error
	if g.prompts == nil {
		if g.prompts, err = DefaultPrompts(); err != nil {
			return nil, err
		}
	}
	if g.validator == nil {
		if g.validator, err = NewValidator(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Generate produces canonical JSON for req.
func (g *Generator) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	courseID := CourseID(req.Course)

	if g.budget != nil {
		ok, err := g.budget.Check(courseID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: checking budget: %w", ErrGeneration, req.Type, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, req.Type, ErrBudgetExceeded)
		}
	}

	creq, err := g.prompts.Render(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	resp, err := g.ai.Complete(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, req.Type, err)
	}

	if g.budget != nil {
		if err := g.budget.Record(courseID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record token usage", "course_id", courseID, "error", err)
		}
	}

	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, req.Type, err)
	}
	if err := g.validator.Validate(req.Type, raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, req.Type, err)
	}
	out, err := Normalize(req.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, req.Type, err)
	}

	slog.Info("content generated",
		"course_id", courseID,
		"type", string(req.Type),
		"provider", resp.Provider,
		"tokens", resp.TotalTokens(),
	)
	return out, nil
}
