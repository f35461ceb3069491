package search

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/vinodismyname/xlread/internal/workbooks"
)

// Position addresses a cell by 0-based sheet index and 1-based row and column.
// The zero Position is the start of the workbook.
type Position struct {
	SheetIndex int `json:"sheet_index"`
	Row        int `json:"row"`
	Column     int `json:"column"`
}

// before reports whether p sorts ahead of q in (sheet, row, column) order.
func (p Position) before(q Position) bool {
	if p.SheetIndex != q.SheetIndex {
		return p.SheetIndex < q.SheetIndex
	}
	if p.Row != q.Row {
		return p.Row < q.Row
	}
	return p.Column < q.Column
}

// Query describes a search.
type Query struct {
	Text          string
	Sheet         string // empty searches every sheet
	CaseSensitive bool
	Regex         bool
	// MaxMatches stops the search after that many matches; <= 0 is unbounded
	// (subject to the engine ceiling).
	MaxMatches int
	// Start resumes a previous search; matches before it are skipped.
	Start Position
}

// Match is one matching cell.
type Match struct {
	Sheet      string `json:"sheet"`
	SheetIndex int    `json:"sheet_index"`
	Row        int    `json:"row"`
	Column     int    `json:"column"`
	Address    string `json:"address"`
	Value      string `json:"value"`
	// Header is the value in the sheet's first non-empty row for this column.
	Header string `json:"column_name,omitempty"`
}

// Position returns where the match was found.
func (m Match) Position() Position {
	return Position{SheetIndex: m.SheetIndex, Row: m.Row, Column: m.Column}
}

// Result is a collected search.
type Result struct {
	Matches   []Match `json:"matches"`
	Truncated bool    `json:"truncated"`
	// Next is the position of the first match not returned when Truncated.
	Next *Position `json:"next,omitempty"`
}

// Engine runs text searches over an open workbook.
type Engine struct {
	ceiling int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatchCeiling caps MaxMatches regardless of what the query asks for; n <= 0 disables it.
func WithMatchCeiling(n int) Option { return func(e *Engine) { e.ceiling = n } }

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// limit returns the effective match cap for q.
func (e *Engine) limit(q Query) int {
	k := q.MaxMatches
	if e.ceiling > 0 && (k <= 0 || k > e.ceiling) {
		k = e.ceiling
	}
	return k
}

// Matches yields matches lazily in (sheet, row, column) order. Reading stops
// as soon as the consumer stops ranging. A failure is yielded once as the
// final element.
func (e *Engine) Matches(ctx context.Context, h *workbooks.Handle, q Query) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		match, err := compile(h.Path, q)
		if err != nil {
			yield(Match{}, err)
			return
		}
		sheets := h.Sheets()
		if strings.TrimSpace(q.Sheet) != "" {
			meta, err := h.Sheet(workbooks.SheetName(q.Sheet))
			if err != nil {
				yield(Match{}, err)
				return
			}
			sheets = []workbooks.SheetMetadata{meta}
		}
		for _, meta := range sheets {
			if meta.Index < q.Start.SheetIndex {
				continue
			}
			if !e.scanSheet(ctx, h, meta, q.Start, match, yield) {
				return
			}
		}
	}
}

// scanSheet yields the matches of one sheet; it returns false when iteration must stop.
func (e *Engine) scanSheet(ctx context.Context, h *workbooks.Handle, meta workbooks.SheetMetadata, start Position,
	match func(string) bool, yield func(Match, error) bool) bool {
	cur, err := h.Rows(ctx, workbooks.ReadOptions{Sheet: workbooks.SheetIndex(meta.Index)})
	if err != nil {
		yield(Match{}, err)
		return false
	}
	defer cur.Close()

	var header []workbooks.Value
	first := true
	for cur.Next() {
		rec := cur.Record()
		isHeader := first
		if first {
			header, first = rec.Cells, false
		}
		for i, cell := range rec.Cells {
			text := cell.Text()
			if text == "" {
				continue
			}
			pos := Position{SheetIndex: meta.Index, Row: rec.Row, Column: i + 1}
			if pos.before(start) || !match(text) {
				continue
			}
			m := Match{
				Sheet:      meta.Name,
				SheetIndex: meta.Index,
				Row:        rec.Row,
				Column:     pos.Column,
				Address:    workbooks.A1(pos.Column, rec.Row, pos.Column, rec.Row),
				Value:      text,
			}
			if !isHeader && i < len(header) {
				m.Header = header[i].Text()
			}
			if !yield(m, nil) {
				return false
			}
		}
	}
	if err := cur.Err(); err != nil {
		yield(Match{}, err)
		return false
	}
	return true
}

// Search collects up to the effective match cap. When more matches exist,
// Truncated is set and Next points at the first one left out.
func (e *Engine) Search(ctx context.Context, h *workbooks.Handle, q Query) (Result, error) {
	limit := e.limit(q)
	res := Result{Matches: []Match{}}
	for m, err := range e.Matches(ctx, h, q) {
		if err != nil {
			return Result{}, err
		}
		if limit > 0 && len(res.Matches) == limit {
			next := m.Position()
			res.Truncated = true
			res.Next = &next
			break
		}
		res.Matches = append(res.Matches, m)
	}
	zerolog.Ctx(ctx).Debug().
		Str("handle_id", h.ID).
		Str("query", q.Text).
		Int("matches", len(res.Matches)).
		Bool("truncated", res.Truncated).
		Msg("search complete")
	return res, nil
}

// compile builds the cell predicate for q.
func compile(path string, q Query) (func(string) bool, error) {
	fail := func(detail string, err error) (func(string) bool, error) {
		return nil, &workbooks.Error{Op: "search", Kind: workbooks.ErrInvalidQuery, Path: path, Sheet: q.Sheet,
			Query: q.Text, Detail: detail, Err: err}
	}
	if q.Text == "" {
		return fail("query must not be empty", nil)
	}
	if q.Start.SheetIndex < 0 || q.Start.Row < 0 || q.Start.Column < 0 {
		return fail(fmt.Sprintf("invalid start position %+v", q.Start), nil)
	}
	if q.Regex {
		expr := q.Text
		if !q.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return fail("invalid regular expression", err)
		}
		return re.MatchString, nil
	}
	if q.CaseSensitive {
		return func(s string) bool { return strings.Contains(s, q.Text) }, nil
	}
	fold := cases.Fold()
	needle := fold.String(q.Text)
	return func(s string) bool { return strings.Contains(fold.String(s), needle) }, nil
}
