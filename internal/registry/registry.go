// Package registry defines the excel_* MCP tools and their result shaping.
package registry

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/llms"
)

// Registry indexes tool definitions by name for the tool filter and the CLI.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]mcp.Tool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tools: map[string]mcp.Tool{}}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(tool mcp.Tool) {
	r.mu.Lock()
	r.tools[tool.Name] = tool
	r.mu.Unlock()
}

// Get returns the named tool definition.
func (r *Registry) Get(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all definitions sorted by name.
func (r *Registry) Tools(ctx context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	out := make([]mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// ModelContextSize is the model's context window in tokens as known to
// langchaingo; unknown models report its conservative default.
func (r *Registry) ModelContextSize(modelName string) int {
	return llms.GetModelContextSize(modelName)
}

// bytesPerToken approximates encoded JSON size per model token.
const bytesPerToken = 4

// PayloadBudget returns the byte budget for a single structured tool result:
// maxBytes, lowered to the model's context window when that is smaller. An
// empty model name leaves maxBytes unchanged.
func (r *Registry) PayloadBudget(modelName string, maxBytes int) int {
	if modelName == "" {
		return maxBytes
	}
	window := r.ModelContextSize(modelName) * bytesPerToken
	if window > 0 && (maxBytes <= 0 || window < maxBytes) {
		return window
	}
	return maxBytes
}
