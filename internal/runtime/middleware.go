package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/xlread/pkg/mcperr"
)

// Middleware enforces runtime limits for tool calls using the Controller.
// It bounds global concurrency, applies an operation timeout to each call and
// attaches a per-call logger to the context.
type Middleware struct {
	ctrl *Controller
	log  zerolog.Logger
}

// NewMiddleware constructs a Middleware bound to the provided Controller.
func NewMiddleware(ctrl *Controller, log zerolog.Logger) *Middleware {
	return &Middleware{ctrl: ctrl, log: log}
}

// ToolMiddleware implements mcp-go's tool handler middleware interface.
// It acquires a request slot, applies a timeout, and guarantees release.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := m.log.With().
			Str("call_id", uuid.NewString()).
			Str("tool", req.Params.Name).
			Logger()
		ctx = log.WithContext(ctx)

		// Attempt to acquire request capacity with a bounded wait.
		acquireCtx := ctx
		if m.ctrl.limits.AcquireRequestTimeout > 0 {
			var cancel context.CancelFunc
			acquireCtx, cancel = context.WithTimeout(ctx, m.ctrl.limits.AcquireRequestTimeout)
			defer cancel()
		}

		if err := m.ctrl.AcquireRequest(acquireCtx); err != nil {
			log.Warn().Int("max", m.ctrl.limits.MaxConcurrentRequests).Msg("request rejected; concurrency limit reached")
			return mcperr.Wrapf(mcperr.BusyResource, "concurrent request limit reached (max=%d); retry shortly", m.ctrl.limits.MaxConcurrentRequests), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx := ctx
		cancel := func() {}
		if m.ctrl.limits.OperationTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, m.ctrl.limits.OperationTimeout)
		}
		defer cancel()

		start := time.Now()
		res, err := m.invoke(callCtx, next, req)
		elapsed := time.Since(start)

		// Prefer a tool-level timeout error when the handler surfaced the deadline.
		if errors.Is(err, context.DeadlineExceeded) || (errors.Is(callCtx.Err(), context.DeadlineExceeded) && err == nil && res == nil) {
			log.Warn().Dur("elapsed", elapsed).Msg("tool call timed out")
			return mcperr.Wrapf(mcperr.Timeout, "operation exceeded %s", m.ctrl.limits.OperationTimeout), nil
		}
		ev := log.Debug()
		if err != nil || (res != nil && res.IsError) {
			ev = log.Info()
		}
		ev.Dur("elapsed", elapsed).Bool("is_error", err != nil || (res != nil && res.IsError)).Msg("tool call finished")
		return res, err
	}
}

// invoke runs next, turning a handler panic into an internal tool error.
func (m *Middleware) invoke(ctx context.Context, next server.ToolHandlerFunc, req mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			zerolog.Ctx(ctx).Error().Str("panic", fmt.Sprint(v)).Msg("tool handler panicked")
			res, err = mcperr.New(mcperr.Internal, ""), nil
		}
	}()
	return next(ctx, req)
}
