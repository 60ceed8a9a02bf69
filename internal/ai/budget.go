package ai

import (
	"fmt"
	"sync"
)

// BudgetChecker checks and records token usage against per-course budgets.
type BudgetChecker interface {
	// Check returns true if the course has budget remaining.
	Check(courseID string) (bool, error)
	// Record records token usage for a course.
	Record(courseID string, tokens int) error
	// Usage returns current usage and the configured limit for a course.
	Usage(courseID string) (used int64, budget int64, err error)
}

// InMemoryBudget tracks token usage per course in process memory.
// A default limit of zero means unlimited.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64
	budgets      map[string]int64 // course -> budget limit
	usage        map[string]int64 // course -> tokens used
}

// NewInMemoryBudget creates a budget tracker. Courses without an explicit
// budget fall back to defaultLimit.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: defaultLimit,
		budgets:      make(map[string]int64),
		usage:        make(map[string]int64),
	}
}

// SetBudget sets the token budget for a course.
func (b *InMemoryBudget) SetBudget(courseID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[courseID] = tokens
}

func (b *InMemoryBudget) limit(courseID string) int64 {
	if l, ok := b.budgets[courseID]; ok {
		return l
	}
	return b.defaultLimit
}

func (b *InMemoryBudget) Check(courseID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limit(courseID)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[courseID] < limit, nil
}

func (b *InMemoryBudget) Record(courseID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[courseID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(courseID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[courseID], b.limit(courseID), nil
}
