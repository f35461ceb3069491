package mcperr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/xlread/internal/workbooks"
)

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewAddsGuidance(t *testing.T) {
	got := text(t, New(InvalidSheet, `sheet "Sale" not found; did you mean "Sales"?`))
	require.True(t, strings.HasPrefix(got, `INVALID_SHEET: sheet "Sale" not found`))
	require.Contains(t, got, "nextSteps: Call excel_read_info")
}

func TestNewDefaultsMessage(t *testing.T) {
	require.True(t, strings.HasPrefix(text(t, New(Timeout, "")), "TIMEOUT: operation exceeded configured time limit"))
}

func TestFromText(t *testing.T) {
	require.True(t, strings.HasPrefix(text(t, FromText("CURSOR_INVALID: bad token")), "CURSOR_INVALID: bad token | nextSteps:"))
	require.Equal(t, "CUSTOM: kept", text(t, FromText("CUSTOM: kept")))
	require.True(t, strings.HasPrefix(text(t, FromText("")), "VALIDATION: invalid inputs"))
}

func TestEveryCodeHasEntry(t *testing.T) {
	for _, c := range []Code{
		Validation, InvalidPath, InvalidSheet, InvalidRange, InvalidQuery, CursorInvalid,
		BusyResource, Timeout, Canceled, PayloadTooLarge, FileTooLarge,
		FileNotFound, ReadFailed,
		CorruptWorkbook, UnsupportedFormat, PermissionDenied, Internal,
	} {
		e, ok := Lookup(c)
		require.True(t, ok, c)
		require.NotEmpty(t, e.Message, c)
		require.NotEmpty(t, e.NextSteps, c)
	}
}

func TestWrapf(t *testing.T) {
	got := text(t, Wrapf(PayloadTooLarge, "result is %d bytes", 42))
	require.True(t, strings.HasPrefix(got, "PAYLOAD_TOO_LARGE: result is 42 bytes"))
}

func TestWorkbookCodesAreCataloged(t *testing.T) {
	for _, err := range []error{
		workbooks.ErrInvalidPath, workbooks.ErrFileNotFound, workbooks.ErrUnsupportedFormat,
		workbooks.ErrCorruptFile, workbooks.ErrSheetNotFound, workbooks.ErrInvalidRange,
		workbooks.ErrInvalidQuery, workbooks.ErrPermissionDenied, workbooks.ErrFileTooLarge,
		context.DeadlineExceeded, context.Canceled, errors.New("disk went away"),
	} {
		code := Code(workbooks.Code(err))
		_, ok := Lookup(code)
		require.True(t, ok, "%v maps to uncataloged %s", err, code)
	}
}
