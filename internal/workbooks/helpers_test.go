package workbooks

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// fakeGate implements WorkbookGate for tests with counters.
type fakeGate struct {
	acquireErr error
	acquires   atomic.Int64
	releases   atomic.Int64
}

func (g *fakeGate) AcquireWorkbook(ctx context.Context) error {
	g.acquires.Add(1)
	return g.acquireErr
}
func (g *fakeGate) ReleaseWorkbook() { g.releases.Add(1) }

// saveWorkbook writes f to a temp .xlsx and returns its absolute path.
func saveWorkbook(t *testing.T, f *excelize.File, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

// createSalesWorkbook builds a two-sheet workbook with typed cells.
func createSalesWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	sh := "Sales"
	require.NoError(t, f.SetSheetName("Sheet1", sh))
	require.NoError(t, f.SetSheetRow(sh, "A1", &[]any{"Region", "Revenue", "Active", "Code"}))
	require.NoError(t, f.SetSheetRow(sh, "A2", &[]any{"North", 1200.5, true, "00123"}))
	require.NoError(t, f.SetSheetRow(sh, "A3", &[]any{"South", 800, false, "A-7"}))
	require.NoError(t, f.SetSheetRow(sh, "A4", &[]any{"total revenue", 2000.5}))

	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellStr("Notes", "B3", "Total check"))
	require.NoError(t, f.SetCellStr("Notes", "C5", "done"))

	require.NoError(t, f.SetDefinedName(&excelize.DefinedName{Name: "Figures", RefersTo: "Sales!$A$1:$B$3"}))
	require.NoError(t, f.SetDocProps(&excelize.DocProperties{Creator: "finance", Title: "Q1"}))
	return saveWorkbook(t, f, "sales.xlsx")
}

// createTallWorkbook builds a single sheet with n numbered rows and no header.
func createTallWorkbook(t *testing.T, n int) string {
	t.Helper()
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter("Sheet1")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i)
		require.NoError(t, sw.SetRow(cell, []any{i, fmt.Sprintf("row-%d", i)}))
	}
	require.NoError(t, sw.Flush())
	return saveWorkbook(t, f, "tall.xlsx")
}

func openT(t *testing.T, path string) *Handle {
	t.Helper()
	h, err := NewLoader().Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// fakeBook is an in-memory backend for failure injection.
type fakeBook struct {
	names  []string
	rows   map[string][][]Value
	broken map[string]error
	panics map[string]bool
	closed bool
}

func (b *fakeBook) SheetNames() []string { return b.names }

func (b *fakeBook) Rows(sheet string) (rowSource, error) {
	if err := b.broken[sheet]; err != nil {
		return nil, err
	}
	return &fakeRows{rows: b.rows[sheet], panics: b.panics[sheet]}, nil
}

func (b *fakeBook) DefinedName(string) (string, string, bool) { return "", "", false }
func (b *fakeBook) Properties() map[string]string            { return map[string]string{} }
func (b *fakeBook) Close() error                             { b.closed = true; return nil }

type fakeRows struct {
	rows   [][]Value
	i      int
	panics bool
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Row() int { return r.i }
func (r *fakeRows) Cells() ([]Value, error) {
	if r.panics {
		panic("malformed record")
	}
	return r.rows[r.i-1], nil
}
func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

func handleFor(b *fakeBook) *Handle {
	h := &Handle{ID: "test", Path: "/fake.xlsx", Format: FormatXLSX, book: b, dims: map[string]extent{}}
	for i, n := range b.names {
		h.sheets = append(h.sheets, SheetMetadata{Name: n, Index: i})
	}
	return h
}

func textRow(vals ...string) []Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = decodeCell(v, nil)
	}
	return out
}
