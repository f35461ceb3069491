package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vinodismyname/xlread/internal/registry"
	"github.com/vinodismyname/xlread/internal/telemetry"
	"github.com/vinodismyname/xlread/pkg/version"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		transport       string
		addr            string
		baseURL         string
		shutdownTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.Transport = transport
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			logger := newLogger(cfg.LogLevel, false)
			c, err := newCore(cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("security: invalid allow-list configuration")
				return err
			}

			srv := c.buildServer()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logger.WithContext(ctx)

			limits := c.ctrl.LimitsSnapshot()
			logger.Info().
				Str("version", version.Version()).
				Str("transport", cfg.Transport).
				Strs("allowed_dirs", c.security.AllowedDirectories()).
				Int("max_concurrent_requests", limits.MaxConcurrentRequests).
				Int("max_open_workbooks", limits.MaxOpenWorkbooks).
				Str("token_model", cfg.TokenModel).
				Int("payload_budget", c.tools.Budget).
				Msg("server bootstrap configured")

			switch strings.ToLower(cfg.Transport) {
			case "stdio":
				return server.ServeStdio(srv)
			case "sse":
				if baseURL == "" {
					baseURL = defaultBaseURL(cfg.Addr)
				}
				sse := server.NewSSEServer(srv, server.WithBaseURL(baseURL))
				return serveHTTP(ctx, logger, cfg.Addr, sse, shutdownTimeout)
			case "http":
				return serveHTTP(ctx, logger, cfg.Addr, server.NewStreamableHTTPServer(srv), shutdownTimeout)
			default:
				return fmt.Errorf("unsupported transport %q (use stdio, sse or http)", cfg.Transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio, sse or http (streamable)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for sse and http transports")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL advertised by the sse transport")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}

// buildServer wires middleware, hooks, the tool filter and the excel tools.
func (c *core) buildServer() *server.MCPServer {
	hooks := telemetry.NewHooks(c.logger)
	filter := c.filter()

	srv := server.NewMCPServer(
		version.Name,
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks.Server()),
		server.WithToolHandlerMiddleware(filter.ToolMiddleware),
		server.WithToolHandlerMiddleware(c.mw.ToolMiddleware),
		server.WithToolFilter(filter.FilterTools),
	)
	registry.RegisterExcelTools(srv, c.reg, c.tools)
	return srv
}

func (c *core) filter() *registry.DisabledToolFilter {
	return registry.NewDisabledToolFilter(c.cfg.DisabledTools)
}

// httpTransport is the lifecycle shared by the sse and streamable servers.
type httpTransport interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func serveHTTP(ctx context.Context, logger zerolog.Logger, addr string, t httpTransport, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errCh <- t.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// defaultBaseURL turns a listen address like ":8080" into a local URL.
func defaultBaseURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host
}
