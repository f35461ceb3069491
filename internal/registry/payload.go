package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/xlread/internal/workbooks"
	"github.com/vinodismyname/xlread/pkg/mcperr"
	"github.com/vinodismyname/xlread/pkg/pagination"
)

// cursorReserve leaves room for a next_cursor added after trimming.
const cursorReserve = 512

// toolError maps a core error to its tool error code.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, pagination.ErrStale) {
		return mcperr.New(mcperr.CursorInvalid, err.Error())
	}
	return mcperr.New(mcperr.Code(workbooks.Code(err)), err.Error())
}

// result encodes out as structured content with its JSON as the text
// fallback, or PAYLOAD_TOO_LARGE when it exceeds the budget.
func (t *ExcelTools) result(ctx context.Context, out any, summary string) *mcp.CallToolResult {
	b, err := json.Marshal(out)
	if err != nil {
		return mcperr.Wrapf(mcperr.Internal, "encode result: %v", err)
	}
	if t.Budget > 0 && len(b) > t.Budget {
		return mcperr.Wrapf(mcperr.PayloadTooLarge, "result is %d bytes, limit is %d", len(b), t.Budget)
	}
	zerolog.Ctx(ctx).Debug().Int("bytes", len(b)).Msg(summary)
	return mcp.NewToolResultStructured(out, string(b))
}

// fit returns the largest n <= total whose encoded size fits the budget.
// size must grow with n.
func (t *ExcelTools) fit(total int, size func(n int) int) int {
	if t.Budget <= 0 || size(total) <= t.Budget {
		return total
	}
	n := sort.Search(total+1, func(n int) bool { return size(n) > t.Budget }) - 1
	return max(n, 0)
}

func encodedLen(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// boundedInt applies a default when v is unset and clamps it to ceiling.
func boundedInt(v, def, ceiling int) int {
	if v <= 0 {
		v = def
	}
	if ceiling > 0 && v > ceiling {
		v = ceiling
	}
	return v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// records drops positional cells from header-keyed rows and never returns nil.
func records(rows []workbooks.RowRecord, header bool) []workbooks.RowRecord {
	out := make([]workbooks.RowRecord, len(rows))
	for i, r := range rows {
		if header && r.Keys != nil {
			r.Cells = nil
		}
		out[i] = r
	}
	return out
}

// width is the column count of a read: the header width, else the widest row.
func width(columns []string, rows []workbooks.RowRecord) int {
	if len(columns) > 0 {
		return len(columns)
	}
	w := 0
	for _, r := range rows {
		w = max(w, len(r.Cells))
	}
	return w
}
