package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Hooks records session lifecycle and tool call outcomes with zerolog. It is
// intentionally minimal; metrics backends can be added later under this package.
type Hooks struct {
	logger zerolog.Logger

	mu      sync.Mutex
	started map[string]time.Time
	stats   map[string]*ToolStats
	now     func() time.Time
}

// ToolStats aggregates calls to one tool.
type ToolStats struct {
	Calls  int
	Errors int
	Total  time.Duration
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{
		logger:  logger,
		started: map[string]time.Time{},
		stats:   map[string]*ToolStats{},
		now:     time.Now,
	}
}

// Server builds the mcp-go hook set that feeds this recorder.
func (h *Hooks) Server() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		h.logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		h.logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		h.logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		h.ToolStarted(id)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		h.ToolFinished(id, req.Params.Name, res != nil && res.IsError)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		h.logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}

// ToolStarted marks the start of the request identified by id.
func (h *Hooks) ToolStarted(id any) {
	h.mu.Lock()
	h.started[key(id)] = h.now()
	h.mu.Unlock()
}

// ToolFinished logs the outcome of a tool call and updates its statistics.
func (h *Hooks) ToolFinished(id any, tool string, isError bool) {
	h.mu.Lock()
	k := key(id)
	var d time.Duration
	if t, ok := h.started[k]; ok {
		d = h.now().Sub(t)
		delete(h.started, k)
	}
	st, ok := h.stats[tool]
	if !ok {
		st = &ToolStats{}
		h.stats[tool] = st
	}
	st.Calls++
	st.Total += d
	if isError {
		st.Errors++
	}
	h.mu.Unlock()

	evt := h.logger.Info()
	if isError {
		evt = h.logger.Warn()
	}
	evt.Str("tool", tool).Dur("duration", d).Bool("is_error", isError).Msg("tool call served")
}

// Snapshot returns a copy of the per-tool statistics.
func (h *Hooks) Snapshot() map[string]ToolStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]ToolStats, len(h.stats))
	for k, v := range h.stats {
		out[k] = *v
	}
	return out
}

func key(id any) string { return fmt.Sprint(id) }
