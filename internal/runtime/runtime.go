package runtime

import (
	"context"
	"time"

	"github.com/vinodismyname/xlread/config"
	"golang.org/x/sync/semaphore"
)

// Limits captures the concurrency and workbook guardrails configured for the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	MaxOpenWorkbooks      int

	// Payload, file and row bounds
	MaxPayloadBytes    int
	MaxFileBytes       int64
	MaxRowsPerSheet    int
	ReadRowLimit       int
	PreviewRowLimit    int
	MaxPreviewRows     int
	SearchMaxMatches   int
	SearchMatchCeiling int

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// NewLimits initializes Limits with sensible fallbacks when values are unset.
func NewLimits(maxConcurrentRequests, maxOpenWorkbooks int) Limits {
	cfg := config.Default().Limits
	cfg.MaxConcurrentRequests = maxConcurrentRequests
	cfg.MaxOpenWorkbooks = maxOpenWorkbooks
	return LimitsFrom(cfg)
}

// LimitsFrom converts configured limits, substituting defaults for unset values.
func LimitsFrom(cfg config.LimitsConfig) Limits {
	orInt := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	orDur := func(v config.Duration, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v.Std()
	}
	maxFile := cfg.MaxFileBytes
	if maxFile <= 0 {
		maxFile = config.DefaultMaxFileBytes
	}
	return Limits{
		MaxConcurrentRequests: orInt(cfg.MaxConcurrentRequests, config.DefaultMaxConcurrentRequests),
		MaxOpenWorkbooks:      orInt(cfg.MaxOpenWorkbooks, config.DefaultMaxOpenWorkbooks),
		MaxPayloadBytes:       orInt(cfg.MaxPayloadBytes, config.DefaultMaxPayloadBytes),
		MaxFileBytes:          maxFile,
		MaxRowsPerSheet:       orInt(cfg.MaxRowsPerSheet, config.DefaultMaxRowsPerSheet),
		ReadRowLimit:          orInt(cfg.ReadRowLimit, config.DefaultReadRowLimit),
		PreviewRowLimit:       orInt(cfg.PreviewRowLimit, config.DefaultPreviewRowLimit),
		MaxPreviewRows:        config.DefaultMaxPreviewRows,
		SearchMaxMatches:      orInt(cfg.SearchMaxMatches, config.DefaultSearchMaxMatches),
		SearchMatchCeiling:    config.DefaultSearchMatchCeiling,
		OperationTimeout:      orDur(cfg.OperationTimeout, config.DefaultOperationTimeout),
		AcquireRequestTimeout: orDur(cfg.AcquireRequestTimeout, config.DefaultAcquireRequestTimeout),
	}
}

// Controller coordinates runtime semaphores for request and workbook guardrails.
type Controller struct {
	limits            Limits
	requestSemaphore  *semaphore.Weighted
	workbookSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:            limits,
		requestSemaphore:  semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workbookSemaphore: semaphore.NewWeighted(int64(limits.MaxOpenWorkbooks)),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireWorkbook reserves an open workbook slot. It satisfies
// workbooks.WorkbookGate.
func (c *Controller) AcquireWorkbook(ctx context.Context) error {
	return c.workbookSemaphore.Acquire(ctx, 1)
}

// ReleaseWorkbook frees an open workbook slot.
func (c *Controller) ReleaseWorkbook() {
	c.workbookSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
