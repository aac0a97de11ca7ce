package agent

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Contributor is a named, prioritized source of system-prompt content.
// Contributors are assembled in ascending priority order; one producing
// empty output is dropped from the join.
type Contributor interface {
	ID() string
	Priority() int
	GetContent(ctx context.Context) (string, error)
}

// StaticContributor returns fixed text.
type StaticContributor struct {
	id       string
	priority int
	text     string
}

// NewStaticContributor creates a static prompt contributor.
func NewStaticContributor(id string, priority int, text string) *StaticContributor {
	return &StaticContributor{id: id, priority: priority, text: text}
}

func (c *StaticContributor) ID() string    { return c.id }
func (c *StaticContributor) Priority() int { return c.priority }
func (c *StaticContributor) GetContent(context.Context) (string, error) {
	return c.text, nil
}

// DynamicContributor computes its content on each assembly.
type DynamicContributor struct {
	id       string
	priority int
	fn       func(ctx context.Context) (string, error)
}

// NewDynamicContributor creates a dynamic prompt contributor.
func NewDynamicContributor(id string, priority int, fn func(ctx context.Context) (string, error)) *DynamicContributor {
	return &DynamicContributor{id: id, priority: priority, fn: fn}
}

func (c *DynamicContributor) ID() string    { return c.id }
func (c *DynamicContributor) Priority() int { return c.priority }
func (c *DynamicContributor) GetContent(ctx context.Context) (string, error) {
	return c.fn(ctx)
}

// FileContributor reads its content from a file on each assembly, so edits
// to the file take effect without a restart.
type FileContributor struct {
	id       string
	priority int
	path     string
}

// NewFileContributor creates a file-backed prompt contributor.
func NewFileContributor(id string, priority int, path string) *FileContributor {
	return &FileContributor{id: id, priority: priority, path: path}
}

func (c *FileContributor) ID() string    { return c.id }
func (c *FileContributor) Priority() int { return c.priority }
func (c *FileContributor) GetContent(context.Context) (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", fmt.Errorf("read prompt file %s: %w", c.path, err)
	}
	return string(data), nil
}

// PromptManager assembles the system prompt from registered contributors.
type PromptManager struct {
	mu           sync.RWMutex
	contributors []Contributor
	logger       *zap.Logger
}

// NewPromptManager creates a prompt manager.
func NewPromptManager(logger *zap.Logger, contributors ...Contributor) *PromptManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptManager{
		contributors: contributors,
		logger:       logger,
	}
}

// Register adds a contributor. Duplicate IDs are rejected.
func (pm *PromptManager) Register(c Contributor) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, existing := range pm.contributors {
		if existing.ID() == c.ID() {
			return fmt.Errorf("contributor %s already registered", c.ID())
		}
	}
	pm.contributors = append(pm.contributors, c)
	return nil
}

// Remove deletes a contributor by ID.
func (pm *PromptManager) Remove(id string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for i, c := range pm.contributors {
		if c.ID() == id {
			pm.contributors = append(pm.contributors[:i], pm.contributors[i+1:]...)
			return true
		}
	}
	return false
}

// Assemble builds the system prompt: contributors in ascending priority
// (registration order breaks ties), non-empty outputs joined with a blank
// line. A failing contributor is skipped with a warning; prompt assembly
// never fails the turn over one bad source.
func (pm *PromptManager) Assemble(ctx context.Context) string {
	pm.mu.RLock()
	ordered := make([]Contributor, len(pm.contributors))
	copy(ordered, pm.contributors)
	pm.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	parts := make([]string, 0, len(ordered))
	for _, c := range ordered {
		content, err := c.GetContent(ctx)
		if err != nil {
			pm.logger.Warn("prompt contributor failed, skipping",
				zap.String("contributor", c.ID()),
				zap.Error(err))
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n")
}
