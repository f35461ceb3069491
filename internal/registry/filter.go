package registry

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/xlread/pkg/mcperr"
)

// DisabledToolFilter hides tools the operator turned off (config
// disabled_tools or XLREAD_DISABLED_TOOLS) and rejects calls to them.
type DisabledToolFilter struct {
	disabled map[string]struct{}
}

// NewDisabledToolFilter builds a filter from tool names (case-insensitive).
func NewDisabledToolFilter(names []string) *DisabledToolFilter {
	f := &DisabledToolFilter{disabled: map[string]struct{}{}}
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			f.disabled[n] = struct{}{}
		}
	}
	return f
}

// Disabled reports whether the named tool is turned off.
func (f *DisabledToolFilter) Disabled(name string) bool {
	_, ok := f.disabled[strings.ToLower(name)]
	return ok
}

// FilterTools implements server tool filtering semantics.
func (f *DisabledToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if len(f.disabled) == 0 {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if f.Disabled(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ToolMiddleware rejects calls to disabled tools that clients invoke without
// discovering them first.
func (f *DisabledToolFilter) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if f.Disabled(req.Params.Name) {
			return mcperr.Wrapf(mcperr.PermissionDenied, "tool %s is disabled by configuration", req.Params.Name), nil
		}
		return next(ctx, req)
	}
}
