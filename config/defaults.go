package config

import "time"

// Default runtime limits and guardrails for the xlread server.
// They can be overridden by a config file or XLREAD_* environment variables
// (see Load) and are referenced by internal/runtime and internal/registry.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenWorkbooks      = 4

	// Payload and row limits
	DefaultMaxPayloadBytes    = 512 * 1024 // 512KB
	DefaultMaxFileBytes       = 100 << 20  // 100MB
	DefaultMaxRowsPerSheet    = 1000
	DefaultReadRowLimit       = 5000
	DefaultPreviewRowLimit    = 5
	DefaultMaxPreviewRows     = 100
	DefaultSearchMaxMatches   = 500
	DefaultSearchMatchCeiling = 10_000
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second
)

const (
	// DefaultLogLevel is a zerolog level name.
	DefaultLogLevel = "info"
	// DefaultTokenModel names the model whose context window caps payload budgets.
	// Empty disables the model cap.
	DefaultTokenModel = "gpt-4-32k"
	// DefaultTransport selects the MCP transport when none is configured.
	DefaultTransport = "stdio"
	DefaultAddr      = ":8080"
)
