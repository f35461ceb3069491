package workbooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ReadOptions selects what Handle.Read and Handle.Rows return.
type ReadOptions struct {
	Sheet Selector
	// Range is an A1 reference, sheet-qualified reference or defined name.
	// Empty reads the used extent.
	Range string
	// RowCap stops after that many data rows; <= 0 means no cap. The cap
	// applies within Range and does not count the header row.
	RowCap int
	// Header consumes the first row of the read as column keys.
	Header bool
}

// RowRecord is one row of a read. Cells start at the read's first column.
type RowRecord struct {
	Row   int              `json:"row"`
	Cells []Value          `json:"cells,omitempty"`
	Keys  map[string]Value `json:"values,omitempty"`
}

// ReadResult is a materialized read of one sheet.
type ReadResult struct {
	Sheet     SheetMetadata `json:"sheet"`
	Range     string        `json:"range,omitempty"`
	Columns   []string      `json:"columns,omitempty"`
	Rows      []RowRecord   `json:"rows"`
	Truncated bool          `json:"truncated"`
}

// Read materializes a read. Identical options on the same handle always
// yield identical results.
func (h *Handle) Read(ctx context.Context, opts ReadOptions) (ReadResult, error) {
	cur, err := h.Rows(ctx, opts)
	if err != nil {
		return ReadResult{}, err
	}
	defer cur.Close()

	res := ReadResult{Sheet: cur.Sheet(), Columns: cur.Columns(), Rows: []RowRecord{}}
	for cur.Next() {
		res.Rows = append(res.Rows, cur.Record())
	}
	if err := cur.Err(); err != nil {
		return ReadResult{}, err
	}
	res.Truncated = cur.Truncated()
	res.Range = cur.Span()
	return res, nil
}

// RowCursor streams the rows of a read. Leading empty rows are skipped when
// the read starts at the used extent, and trailing empty rows are never
// returned. Reading stops as soon as the row cap is reached.
type RowCursor struct {
	ctx    context.Context
	h      *Handle
	sheet  SheetMetadata
	bounds Bounds
	cap    int
	src    rowSource

	header  []string
	started bool // a non-empty row has been seen
	pending []RowRecord
	rec     RowRecord
	emitted int

	firstRow, lastRow, lastCol int

	truncated bool
	done      bool
	err       error
}

// Rows opens a lazy cursor over a sheet.
func (h *Handle) Rows(ctx context.Context, opts ReadOptions) (*RowCursor, error) {
	meta, err := h.Sheet(opts.Sheet)
	if err != nil {
		return nil, err
	}
	b, err := h.resolveRange(meta.Name, opts.Range)
	if err != nil {
		return nil, err
	}
	src, err := h.openRows(meta.Name)
	if err != nil {
		return nil, err
	}
	c := &RowCursor{ctx: ctx, h: h, sheet: meta, bounds: b, cap: opts.RowCap, src: src}
	if opts.Header {
		if rec, ok := c.advance(); ok {
			c.header = headerKeys(rec.Cells)
			c.track(rec)
		}
		if c.err != nil {
			_ = src.Close()
			return nil, c.err
		}
	}
	return c, nil
}

// Sheet returns the metadata of the sheet being read.
func (c *RowCursor) Sheet() SheetMetadata { return c.sheet }

// Columns returns the header keys, or nil when no header is in effect.
func (c *RowCursor) Columns() []string { return c.header }

// Next advances to the next data row.
func (c *RowCursor) Next() bool {
	if c.done {
		return false
	}
	rec, ok := c.advance()
	if !ok {
		return false
	}
	if c.cap > 0 && c.emitted >= c.cap {
		c.truncated = true
		c.finish()
		return false
	}
	if c.header != nil {
		rec.Keys = keyed(c.header, rec.Cells)
	}
	c.rec = rec
	c.emitted++
	c.track(rec)
	return true
}

// Record returns the current row.
func (c *RowCursor) Record() RowRecord { return c.rec }

// Truncated reports whether the row cap stopped the read before the sheet ended.
func (c *RowCursor) Truncated() bool { return c.truncated }

// Err returns the first error encountered.
func (c *RowCursor) Err() error { return c.err }

// Span renders the box covered by the rows returned so far, header included.
func (c *RowCursor) Span() string {
	if c.firstRow == 0 {
		return ""
	}
	lastCol := c.lastCol
	if c.bounds.Col2 > 0 {
		lastCol = c.bounds.Col2
	}
	if lastCol < c.bounds.Col1 {
		lastCol = c.bounds.Col1
	}
	return A1(c.bounds.Col1, c.firstRow, lastCol, c.lastRow)
}

// Close releases the underlying row stream.
func (c *RowCursor) Close() error {
	c.finish()
	return nil
}

func (c *RowCursor) finish() {
	if c.src != nil {
		_ = c.src.Close()
		c.src = nil
	}
	c.pending = nil
	c.done = true
}

func (c *RowCursor) track(rec RowRecord) {
	if c.firstRow == 0 {
		c.firstRow = rec.Row
	}
	c.lastRow = rec.Row
	if end := c.bounds.Col1 + len(rec.Cells) - 1; end > c.lastCol {
		c.lastCol = end
	}
}

// advance returns the next row inside the window, holding back runs of empty
// rows until a non-empty row proves they are interior.
func (c *RowCursor) advance() (RowRecord, bool) {
	if len(c.pending) > 0 {
		rec := c.pending[0]
		c.pending = c.pending[1:]
		return rec, true
	}
	for !c.done {
		if err := c.ctx.Err(); err != nil {
			c.fail(err)
			return RowRecord{}, false
		}
		if !c.src.Next() {
			if err := c.src.Err(); err != nil {
				c.fail(&Error{Op: "read", Kind: ErrCorruptFile, Path: c.h.Path, Sheet: c.sheet.Name, Err: err})
				return RowRecord{}, false
			}
			// trailing empty rows are dropped
			c.finish()
			return RowRecord{}, false
		}
		row := c.src.Row()
		if c.bounds.Row2 > 0 && row > c.bounds.Row2 {
			c.finish()
			return RowRecord{}, false
		}
		if !c.bounds.containsRow(row) {
			continue
		}
		cells, err := c.src.Cells()
		if err != nil {
			c.fail(&Error{Op: "read", Kind: ErrCorruptFile, Path: c.h.Path, Sheet: c.sheet.Name,
				Detail: fmt.Sprintf("row %d", row), Err: err})
			return RowRecord{}, false
		}
		rec := RowRecord{Row: row, Cells: c.window(cells)}
		if isBlank(rec.Cells) {
			if !c.started && c.bounds.rowsOpen() {
				continue
			}
			c.pending = append(c.pending, rec)
			continue
		}
		c.started = true
		if len(c.pending) > 0 {
			c.pending = append(c.pending, rec)
			first := c.pending[0]
			c.pending = c.pending[1:]
			return first, true
		}
		return rec, true
	}
	return RowRecord{}, false
}

func (c *RowCursor) fail(err error) {
	c.err = err
	c.finish()
}

// window slices a decoded row to the cursor's column bounds.
func (c *RowCursor) window(cells []Value) []Value {
	lo := c.bounds.Col1 - 1
	hi := len(cells)
	if c.bounds.Col2 > 0 && c.bounds.Col2 < hi {
		hi = c.bounds.Col2
	}
	if lo >= hi {
		return []Value{}
	}
	out := make([]Value, hi-lo)
	copy(out, cells[lo:hi])
	for len(out) > 0 && out[len(out)-1].IsEmpty() {
		out = out[:len(out)-1]
	}
	return out
}

func isBlank(cells []Value) bool {
	for _, c := range cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// headerKeys names columns from a header row. Blank headers become
// "Column N" and repeated names get the first free ".1", ".2" suffix, so
// every key is distinct even when a header already reads like a suffixed one.
func headerKeys(cells []Value) []string {
	keys := make([]string, len(cells))
	seen := make(map[string]bool, len(cells))
	next := map[string]int{}
	for i, c := range cells {
		k := strings.TrimSpace(c.Text())
		if k == "" {
			k = "Column " + strconv.Itoa(i+1)
		}
		keys[i] = uniqueKey(k, seen, next)
	}
	return keys
}

func uniqueKey(k string, seen map[string]bool, next map[string]int) string {
	out := k
	for seen[out] {
		next[k]++
		out = k + "." + strconv.Itoa(next[k])
	}
	seen[out] = true
	return out
}

// keyed maps cells to header keys; cells past the header get positional
// "Column N" keys that never replace a header key.
func keyed(header []string, cells []Value) map[string]Value {
	m := make(map[string]Value, max(len(header), len(cells)))
	for i, k := range header {
		if i < len(cells) {
			m[k] = cells[i]
		} else {
			m[k] = Value{}
		}
	}
	if len(cells) <= len(header) {
		return m
	}
	seen := make(map[string]bool, len(cells))
	for _, k := range header {
		seen[k] = true
	}
	next := map[string]int{}
	for i := len(header); i < len(cells); i++ {
		m[uniqueKey("Column "+strconv.Itoa(i+1), seen, next)] = cells[i]
	}
	return m
}
