package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/xlread/internal/runtime"
	"github.com/vinodismyname/xlread/internal/search"
	"github.com/vinodismyname/xlread/internal/workbooks"
	"github.com/vinodismyname/xlread/pkg/mcperr"
	"github.com/vinodismyname/xlread/pkg/pagination"
	"github.com/vinodismyname/xlread/pkg/validation"
)

// Tool names.
const (
	ToolReadInfo      = "excel_read_info"
	ToolReadRange     = "excel_read_range"
	ToolReadAllSheets = "excel_read_all_sheets"
	ToolQuickOverview = "excel_quick_overview"
	ToolSearch        = "excel_search"
)

// Default per-call settings when the caller omits them.
const (
	defaultRowsPerSheet = 1000
	defaultSampleRows   = 5
)

// --- Input / Output Schemas (typed for discovery) ---

// ReadInfoInput defines parameters for excel_read_info.
type ReadInfoInput struct {
	FilePath string `json:"file_path" validate:"required,abs_path" jsonschema_description:"Absolute path to an Excel workbook (.xlsx, .xlsm, .xltx, .xltm, .xls)"`
}

// ReadInfoOutput is workbook metadata plus per-sheet dimensions.
type ReadInfoOutput struct {
	workbooks.Info
	Sheets []workbooks.SheetMetadata `json:"sheets" jsonschema_description:"Sheets in workbook order with used row and column counts"`
}

// ReadRangeInput defines parameters for excel_read_range.
type ReadRangeInput struct {
	FilePath   string `json:"file_path" validate:"required,abs_path" jsonschema_description:"Absolute path to an Excel workbook"`
	Sheet      string `json:"sheet,omitempty" validate:"excluded_with=SheetIndex" jsonschema_description:"Sheet name; defaults to the first sheet"`
	SheetIndex *int   `json:"sheet_index,omitempty" validate:"omitempty,min=0" jsonschema_description:"0-based sheet index, alternative to sheet"`
	Range      string `json:"range,omitempty" jsonschema_description:"A1 range (A1:D50, A:C, 2:10), sheet-qualified range or defined name; defaults to the used range"`
	MaxRows    int    `json:"max_rows,omitempty" validate:"omitempty,min=1" jsonschema_description:"Max data rows to return; omitted or larger values fall back to the server read_row_limit (default 5000)"`
	Header     *bool  `json:"header,omitempty" jsonschema_description:"Treat the first row as column names (default true)"`
}

// ReadRangeOutput mirrors a DataFrame-style read: shape, columns and row records.
type ReadRangeOutput struct {
	FilePath   string                `json:"file_path"`
	SheetName  string                `json:"sheet_name"`
	SheetIndex int                   `json:"sheet_index"`
	Range      string                `json:"range,omitempty" jsonschema_description:"A1 span actually returned"`
	Shape      [2]int                `json:"shape" jsonschema_description:"[rows, columns] of data returned"`
	Columns    []string              `json:"columns,omitempty"`
	Data       []workbooks.RowRecord `json:"data"`
	Truncated  bool                  `json:"truncated" jsonschema_description:"True when more rows exist past the cap or payload budget"`
	RowCap     int                   `json:"row_cap"`
}

// ReadAllSheetsInput defines parameters for excel_read_all_sheets.
type ReadAllSheetsInput struct {
	FilePath           string `json:"file_path" validate:"required,abs_path" jsonschema_description:"Absolute path to an Excel workbook"`
	MaxRowsPerSheet    int    `json:"max_rows_per_sheet,omitempty" validate:"omitempty,min=1" jsonschema_description:"Max data rows per sheet (default 1000)"`
	IncludeEmptySheets bool   `json:"include_empty_sheets,omitempty" jsonschema_description:"Include sheets without data rows in sheets_data"`
	Header             *bool  `json:"header,omitempty" jsonschema_description:"Treat each sheet's first row as column names (default true)"`
}

// SheetSummary is one entry per sheet, whatever its outcome.
type SheetSummary struct {
	SheetName    string `json:"sheet_name"`
	Index        int    `json:"index"`
	Status       string `json:"status" jsonschema_description:"loaded, skipped (empty) or error: <code>"`
	Rows         int    `json:"rows"`
	Columns      int    `json:"columns"`
	OriginalRows int    `json:"original_rows" jsonschema_description:"Data rows in the sheet before the per-sheet cap"`
	Error        string `json:"error,omitempty"`
}

// SheetData is the loaded content of one sheet.
type SheetData struct {
	Shape        [2]int                `json:"shape"`
	Range        string                `json:"range,omitempty"`
	Columns      []string              `json:"columns,omitempty"`
	Data         []workbooks.RowRecord `json:"data"`
	Truncated    bool                  `json:"truncated"`
	OriginalRows int                   `json:"original_rows"`
}

// AllSheetsSettings echoes the effective settings.
type AllSheetsSettings struct {
	MaxRowsPerSheet    int  `json:"max_rows_per_sheet"`
	IncludeEmptySheets bool `json:"include_empty_sheets"`
}

// ReadAllSheetsOutput documents excel_read_all_sheets.
type ReadAllSheetsOutput struct {
	FilePath    string               `json:"file_path"`
	TotalSheets int                  `json:"total_sheets"`
	Summary     []SheetSummary       `json:"sheet_summary"`
	Sheets      map[string]SheetData `json:"sheets_data"`
	Settings    AllSheetsSettings    `json:"settings"`
}

// QuickOverviewInput defines parameters for excel_quick_overview.
type QuickOverviewInput struct {
	FilePath   string `json:"file_path" validate:"required,abs_path" jsonschema_description:"Absolute path to an Excel workbook"`
	SampleRows int    `json:"sample_rows,omitempty" validate:"omitempty,min=1,max=100" jsonschema_description:"Sample data rows per sheet (default 5, max 100)"`
}

// SampleSettings echoes the effective sample size.
type SampleSettings struct {
	SampleRows int `json:"sample_rows"`
}

// QuickOverviewOutput documents excel_quick_overview.
type QuickOverviewOutput struct {
	workbooks.Info
	Sheets         []workbooks.SheetOverview `json:"sheets_overview"`
	SampleSettings SampleSettings            `json:"sample_settings"`
}

// SearchInput defines parameters for excel_search.
type SearchInput struct {
	FilePath      string `json:"file_path" validate:"required,abs_path" jsonschema_description:"Absolute path to an Excel workbook"`
	Query         string `json:"query,omitempty" validate:"required_without=Cursor,valid_regex" jsonschema_description:"Text to find; substring match unless regex is set"`
	Sheet         string `json:"sheet,omitempty" jsonschema_description:"Restrict the search to one sheet"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema_description:"Match case exactly (default false)"`
	Regex         bool   `json:"regex,omitempty" jsonschema_description:"Interpret query as a Go regular expression"`
	MaxMatches    int    `json:"max_matches,omitempty" validate:"omitempty,min=1" jsonschema_description:"Max matches per page (bounded by server limits)"`
	Cursor        string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"next_cursor from a previous page; takes precedence over query parameters"`
}

// SearchOutput documents excel_search.
type SearchOutput struct {
	FilePath      string         `json:"file_path"`
	SearchTerm    string         `json:"search_term"`
	Sheet         string         `json:"sheet,omitempty"`
	CaseSensitive bool           `json:"case_sensitive"`
	Regex         bool           `json:"regex"`
	TotalMatches  int            `json:"total_matches" jsonschema_description:"Matches returned in this page"`
	Matches       []search.Match `json:"matches"`
	Truncated     bool           `json:"truncated"`
	NextCursor    string         `json:"next_cursor,omitempty" jsonschema_description:"Pass back as cursor to fetch the next page"`
}

// ExcelTools holds what the excel_* handlers share.
type ExcelTools struct {
	Loader *workbooks.Loader
	Engine *search.Engine
	Limits runtime.Limits
	// Budget caps the encoded size of one structured result; <= 0 disables it.
	Budget int
}

// RegisterExcelTools adds the five read-only workbook tools to the server and
// registry.
func RegisterExcelTools(s *server.MCPServer, reg *Registry, t *ExcelTools) {
	handlers := t.Handlers()

	info := mcp.NewTool(
		ToolReadInfo,
		mcp.WithDescription("Return workbook metadata without cell data: file size, format, modification time, document properties, and every sheet's name, 0-based index and used row/column counts. Call this first to discover sheet names. Errors include INVALID_PATH, FILE_NOT_FOUND, UNSUPPORTED_FORMAT and CORRUPT_WORKBOOK."),
		mcp.WithInputSchema[ReadInfoInput](),
		mcp.WithOutputSchema[ReadInfoOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(info, handlers[info.Name])
	reg.Register(info)

	readRange := mcp.NewTool(
		ToolReadRange,
		mcp.WithDescription("Read rows from one sheet as typed records. Select the sheet by name or 0-based sheet_index (default first sheet) and optionally a range (A1:D50, A:C, 2:10, Sheet!A1:B9 or a defined name). With header=true (default) the first row of the range names the columns and each record carries values keyed by column; otherwise records carry positional cells. Rows are capped by max_rows, which defaults to and never exceeds the server's read_row_limit (5000 unless configured), and by the payload budget; truncated=true signals more data. Errors include INVALID_SHEET and INVALID_RANGE."),
		mcp.WithInputSchema[ReadRangeInput](),
		mcp.WithOutputSchema[ReadRangeOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(readRange, handlers[readRange.Name])
	reg.Register(readRange)

	allSheets := mcp.NewTool(
		ToolReadAllSheets,
		mcp.WithDescription("Read every sheet in workbook order, up to max_rows_per_sheet data rows each (default 1000). sheet_summary has exactly one entry per sheet with status loaded, skipped (empty) or error: <code>; a failing sheet never aborts the others. Empty sheets are omitted from sheets_data unless include_empty_sheets is set. Returns PAYLOAD_TOO_LARGE when the combined result exceeds the budget; lower max_rows_per_sheet or use excel_read_range."),
		mcp.WithInputSchema[ReadAllSheetsInput](),
		mcp.WithOutputSchema[ReadAllSheetsOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(allSheets, handlers[allSheets.Name])
	reg.Register(allSheets)

	overview := mcp.NewTool(
		ToolQuickOverview,
		mcp.WithDescription("Summarize the workbook: metadata plus, per sheet, total rows and columns, column names and the first sample_rows data rows (default 5, max 100). Use it to decide which sheet and range to read next."),
		mcp.WithInputSchema[QuickOverviewInput](),
		mcp.WithOutputSchema[QuickOverviewOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(overview, handlers[overview.Name])
	reg.Register(overview)

	find := mcp.NewTool(
		ToolSearch,
		mcp.WithDescription("Find cells whose displayed text contains query (case-insensitive by default) or matches it as a regular expression when regex=true. Scans sheets in order, rows top to bottom, columns left to right; each match carries sheet, A1 address, row, column, value and the column's header text. Results are paged by max_matches; pass next_cursor back as cursor to continue. Cursors bind to the file and its modification time and fail with CURSOR_INVALID once the workbook changes."),
		mcp.WithInputSchema[SearchInput](),
		mcp.WithOutputSchema[SearchOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(find, handlers[find.Name])
	reg.Register(find)
}

// Handlers returns the typed tool handlers keyed by tool name.
func (t *ExcelTools) Handlers() map[string]server.ToolHandlerFunc {
	return map[string]server.ToolHandlerFunc{
		ToolReadInfo:      mcp.NewTypedToolHandler(t.readInfo),
		ToolReadRange:     mcp.NewTypedToolHandler(t.readRange),
		ToolReadAllSheets: mcp.NewTypedToolHandler(t.readAllSheets),
		ToolQuickOverview: mcp.NewTypedToolHandler(t.quickOverview),
		ToolSearch:        mcp.NewTypedToolHandler(t.search),
	}
}

// Call runs one tool in-process with the same argument binding and
// validation as an MCP tools/call. Middlewares wrap the handler outermost first.
func (t *ExcelTools) Call(ctx context.Context, name string, args map[string]any, mws ...server.ToolHandlerMiddleware) (*mcp.CallToolResult, error) {
	h, ok := t.Handlers()[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown tool %q", name)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

func (t *ExcelTools) readInfo(ctx context.Context, req mcp.CallToolRequest, in ReadInfoInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	h, err := t.Loader.Open(ctx, in.FilePath)
	if err != nil {
		return toolError(err), nil
	}
	defer h.Close()

	out := ReadInfoOutput{Info: h.Info()}
	for _, meta := range h.Sheets() {
		dims, err := h.Dimensions(ctx, workbooks.SheetIndex(meta.Index))
		if err != nil {
			if ctx.Err() != nil {
				return toolError(err), nil
			}
			zerolog.Ctx(ctx).Warn().Err(err).Str("sheet", meta.Name).Msg("sheet dimensions unavailable")
			dims = meta
		}
		out.Sheets = append(out.Sheets, dims)
	}
	summary := fmt.Sprintf("%s: %d sheet(s) [%s], %d bytes", out.Path, out.SheetCount, strings.Join(out.SheetNames, ", "), out.FileSize)
	return t.result(ctx, out, summary), nil
}

func (t *ExcelTools) readRange(ctx context.Context, req mcp.CallToolRequest, in ReadRangeInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	h, err := t.Loader.Open(ctx, in.FilePath)
	if err != nil {
		return toolError(err), nil
	}
	defer h.Close()

	sel := workbooks.SheetName(in.Sheet)
	if in.SheetIndex != nil {
		sel = workbooks.SheetIndex(*in.SheetIndex)
	}
	rowCap := boundedInt(in.MaxRows, t.Limits.ReadRowLimit, t.Limits.ReadRowLimit)
	header := boolOr(in.Header, true)
	res, err := h.Read(ctx, workbooks.ReadOptions{Sheet: sel, Range: in.Range, RowCap: rowCap, Header: header})
	if err != nil {
		return toolError(err), nil
	}

	rows := records(res.Rows, header)
	out := ReadRangeOutput{
		FilePath:   h.Path,
		SheetName:  res.Sheet.Name,
		SheetIndex: res.Sheet.Index,
		Range:      res.Range,
		Columns:    res.Columns,
		Truncated:  res.Truncated,
		RowCap:     rowCap,
	}
	n := t.fit(len(rows), func(n int) int {
		out.Data = rows[:n]
		return encodedLen(out)
	})
	out.Data = rows[:n]
	if n < len(rows) {
		out.Truncated = true
		zerolog.Ctx(ctx).Debug().Int("rows", len(rows)).Int("kept", n).Msg("read trimmed to payload budget")
	}
	out.Shape = [2]int{n, width(res.Columns, out.Data)}

	summary := fmt.Sprintf("%s!%s: %d row(s) x %d column(s), truncated=%t", out.SheetName, out.Range, out.Shape[0], out.Shape[1], out.Truncated)
	return t.result(ctx, out, summary), nil
}

func (t *ExcelTools) readAllSheets(ctx context.Context, req mcp.CallToolRequest, in ReadAllSheetsInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	h, err := t.Loader.Open(ctx, in.FilePath)
	if err != nil {
		return toolError(err), nil
	}
	defer h.Close()

	perSheet := boundedInt(in.MaxRowsPerSheet, defaultRowsPerSheet, t.Limits.MaxRowsPerSheet)
	header := boolOr(in.Header, true)
	outcomes := h.ScanAll(ctx, workbooks.ScanOptions{RowCapPerSheet: perSheet, Header: header})
	if err := ctx.Err(); err != nil {
		return toolError(err), nil
	}

	out := ReadAllSheetsOutput{
		FilePath:    h.Path,
		TotalSheets: len(outcomes),
		Summary:     make([]SheetSummary, 0, len(outcomes)),
		Sheets:      map[string]SheetData{},
		Settings:    AllSheetsSettings{MaxRowsPerSheet: perSheet, IncludeEmptySheets: in.IncludeEmptySheets},
	}
	loaded := 0
	for _, o := range outcomes {
		sum := SheetSummary{SheetName: o.Sheet, Index: o.Index}
		if !o.OK() {
			sum.Status = "error: " + o.Failure.Kind
			sum.Error = o.Failure.Message
			out.Summary = append(out.Summary, sum)
			continue
		}
		res := o.Result
		rows := records(res.Rows, header)
		data := SheetData{
			Range:        res.Range,
			Columns:      res.Columns,
			Data:         rows,
			Truncated:    res.Truncated,
			OriginalRows: len(rows),
			Shape:        [2]int{len(rows), width(res.Columns, rows)},
		}
		if res.Truncated {
			data.OriginalRows = t.originalRows(ctx, h, res.Sheet, header, len(rows))
		}
		sum.Rows, sum.Columns, sum.OriginalRows = data.Shape[0], data.Shape[1], data.OriginalRows
		if len(rows) == 0 {
			sum.Status = "skipped (empty)"
			out.Summary = append(out.Summary, sum)
			if in.IncludeEmptySheets {
				out.Sheets[o.Sheet] = data
			}
			continue
		}
		sum.Status = "loaded"
		loaded++
		out.Summary = append(out.Summary, sum)
		out.Sheets[o.Sheet] = data
	}

	summary := fmt.Sprintf("%d of %d sheet(s) loaded, max %d row(s) per sheet", loaded, out.TotalSheets, perSheet)
	return t.result(ctx, out, summary), nil
}

// originalRows counts a truncated sheet's data rows; it falls back to the
// returned count when the extent cannot be computed.
func (t *ExcelTools) originalRows(ctx context.Context, h *workbooks.Handle, sheet workbooks.SheetMetadata, header bool, returned int) int {
	dims, err := h.Dimensions(ctx, workbooks.SheetIndex(sheet.Index))
	if err != nil || dims.RowCount == nil {
		return returned
	}
	n := *dims.RowCount
	if header && n > 0 {
		n--
	}
	return max(n, returned)
}

func (t *ExcelTools) quickOverview(ctx context.Context, req mcp.CallToolRequest, in QuickOverviewInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	h, err := t.Loader.Open(ctx, in.FilePath)
	if err != nil {
		return toolError(err), nil
	}
	defer h.Close()

	def := t.Limits.PreviewRowLimit
	if def <= 0 {
		def = defaultSampleRows
	}
	sample := boundedInt(in.SampleRows, def, t.Limits.MaxPreviewRows)
	ov := h.Overview(ctx, sample)
	if err := ctx.Err(); err != nil {
		return toolError(err), nil
	}
	for i := range ov.Sheets {
		ov.Sheets[i].Sample = records(ov.Sheets[i].Sample, true)
	}
	out := QuickOverviewOutput{Info: ov.Info, Sheets: ov.Sheets, SampleSettings: SampleSettings{SampleRows: ov.SampleRows}}

	summary := fmt.Sprintf("%s: %d sheet(s), %d sample row(s) each", out.Path, out.SheetCount, ov.SampleRows)
	return t.result(ctx, out, summary), nil
}

func (t *ExcelTools) search(ctx context.Context, req mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	var cur *pagination.Cursor
	if in.Cursor != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil {
			return mcperr.New(mcperr.CursorInvalid, err.Error()), nil
		}
		cur = c
	}

	h, err := t.Loader.Open(ctx, in.FilePath)
	if err != nil {
		return toolError(err), nil
	}
	defer h.Close()

	q := search.Query{
		Text:          in.Query,
		Sheet:         in.Sheet,
		CaseSensitive: in.CaseSensitive,
		Regex:         in.Regex,
		MaxMatches:    boundedInt(in.MaxMatches, t.Limits.SearchMaxMatches, t.Limits.SearchMatchCeiling),
	}
	if cur != nil {
		if err := cur.Check(h.Path, h.ModTime); err != nil {
			return mcperr.New(mcperr.CursorInvalid, err.Error()), nil
		}
		q.Text, q.Sheet, q.CaseSensitive, q.Regex = cur.Q, cur.Sh, cur.Cs, cur.Rg
		if cur.Ps > 0 {
			q.MaxMatches = cur.Ps
		}
		q.Start = search.Position{SheetIndex: cur.Si, Row: cur.R, Column: cur.C}
	}

	res, err := t.Engine.Search(ctx, h, q)
	if err != nil {
		return toolError(err), nil
	}

	out := SearchOutput{
		FilePath:      h.Path,
		SearchTerm:    q.Text,
		Sheet:         q.Sheet,
		CaseSensitive: q.CaseSensitive,
		Regex:         q.Regex,
		Truncated:     res.Truncated,
	}
	matches := res.Matches
	if matches == nil {
		matches = []search.Match{}
	}
	next := res.Next
	n := t.fit(len(matches), func(n int) int {
		out.Matches = matches[:n]
		return encodedLen(out) + cursorReserve
	})
	out.Matches = matches[:n]
	if n < len(matches) {
		p := matches[n].Position()
		next = &p
		out.Truncated = true
	}
	out.TotalMatches = n
	if next != nil {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			P:  h.Path,
			Mt: h.ModTime.UnixNano(),
			Q:  q.Text,
			Sh: q.Sheet,
			Cs: q.CaseSensitive,
			Rg: q.Regex,
			Si: next.SheetIndex,
			R:  next.Row,
			C:  next.Column,
			Ps: q.MaxMatches,
		})
		if err != nil {
			return mcperr.Wrapf(mcperr.Internal, "encode cursor: %v", err), nil
		}
		out.NextCursor = token
	}

	summary := fmt.Sprintf("%d match(es) for %q, truncated=%t", out.TotalMatches, q.Text, out.Truncated)
	return t.result(ctx, out, summary), nil
}
