package workbooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Concrete errors returned by this package are *Error values
// that match one of these with errors.Is.
var (
	ErrInvalidPath       = errors.New("path must be absolute")
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptFile       = errors.New("workbook is corrupt or unreadable")
	ErrSheetNotFound     = errors.New("sheet not found")
	ErrInvalidRange      = errors.New("invalid range")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrPermissionDenied  = errors.New("path not allowed")
	ErrFileTooLarge      = errors.New("file exceeds configured size")
	ErrHandleClosed      = errors.New("workbook handle is closed")
)

// Error carries the failing operation and enough context (path, sheet,
// range, query) to diagnose the failure without server internals.
type Error struct {
	Op     string
	Kind   error
	Path   string
	Sheet  string
	Range  string
	Query  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("workbooks: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	var ctx []string
	if e.Path != "" {
		ctx = append(ctx, fmt.Sprintf("path=%q", e.Path))
	}
	if e.Sheet != "" {
		ctx = append(ctx, fmt.Sprintf("sheet=%q", e.Sheet))
	}
	if e.Range != "" {
		ctx = append(ctx, fmt.Sprintf("range=%q", e.Range))
	}
	if e.Query != "" {
		ctx = append(ctx, fmt.Sprintf("query=%q", e.Query))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the error kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Code returns a stable, upper-case identifier for err suitable for tool
// payloads and per-sheet failure records.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPath):
		return "INVALID_PATH"
	case errors.Is(err, ErrFileNotFound):
		return "FILE_NOT_FOUND"
	case errors.Is(err, ErrUnsupportedFormat):
		return "UNSUPPORTED_FORMAT"
	case errors.Is(err, ErrCorruptFile):
		return "CORRUPT_WORKBOOK"
	case errors.Is(err, ErrSheetNotFound):
		return "INVALID_SHEET"
	case errors.Is(err, ErrInvalidRange):
		return "INVALID_RANGE"
	case errors.Is(err, ErrInvalidQuery):
		return "INVALID_QUERY"
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrFileTooLarge):
		return "FILE_TOO_LARGE"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	default:
		return "READ_FAILED"
	}
}

// panicError converts a recovered panic value from a decoding library into an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("decoder panic: %w", err)
	}
	return fmt.Errorf("decoder panic: %v", v)
}
