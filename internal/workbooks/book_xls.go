package workbooks

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/extrame/xls"
)

// xlsBook decodes legacy BIFF workbooks. The library reports displayed text
// only, so cells are typed from their text and never decoded as booleans.
// It is known to panic on malformed input; every entry point recovers.
type xlsBook struct {
	wb     *xls.WorkBook
	closer io.Closer
	names  []string
}

func openXLS(path string) (b *xlsBook, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if v := recover(); v != nil {
			b, err = nil, panicError(v)
		}
		if err != nil {
			_ = f.Close()
		}
	}()
	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, errors.New("no workbook stream in compound file")
	}
	b = &xlsBook{wb: wb, closer: f}
	for i := 0; i < wb.NumSheets(); i++ {
		sh := wb.GetSheet(i)
		if sh == nil {
			return nil, fmt.Errorf("sheet %d could not be decoded", i)
		}
		b.names = append(b.names, sh.Name)
	}
	return b, nil
}

func (b *xlsBook) SheetNames() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

func (b *xlsBook) Rows(sheet string) (src rowSource, err error) {
	defer func() {
		if v := recover(); v != nil {
			src, err = nil, panicError(v)
		}
	}()
	for i, name := range b.names {
		if name != sheet {
			continue
		}
		ws := b.wb.GetSheet(i)
		if ws == nil {
			return nil, fmt.Errorf("sheet %q could not be decoded", sheet)
		}
		return newXLSRows(ws), nil
	}
	return nil, fmt.Errorf("sheet %q does not exist", sheet)
}

func (b *xlsBook) DefinedName(string) (string, string, bool) { return "", "", false }

func (b *xlsBook) Properties() map[string]string { return map[string]string{} }

func (b *xlsBook) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

type xlsRows struct {
	ws    *xls.WorkSheet
	last  int // 0-based index of the last row
	width int // widest row seen in the sheet, in columns
	next  int // 0-based index of the next row to visit
	cur   int
	err   error
}

func newXLSRows(ws *xls.WorkSheet) *xlsRows {
	r := &xlsRows{ws: ws, last: int(ws.MaxRow)}
	for i := 0; i <= r.last; i++ {
		if row, ok := sheetRow(ws, i); ok {
			r.width = max(r.width, row.LastCol()+1)
		}
	}
	return r
}

// sheetRow returns row i; the library dereferences a nil entry for rows the
// sheet does not store, which reads as a blank row here.
func sheetRow(ws *xls.WorkSheet, i int) (row *xls.Row, ok bool) {
	defer func() {
		if recover() != nil {
			row, ok = nil, false
		}
	}()
	return ws.Row(i), true
}

func (r *xlsRows) Next() bool {
	if r.err != nil || r.next > r.last {
		return false
	}
	r.cur = r.next
	r.next++
	return true
}

func (r *xlsRows) Row() int { return r.cur + 1 }

// Cells reads up to the sheet's widest row: rows written without a ROW
// record report no last column of their own.
func (r *xlsRows) Cells() (cells []Value, err error) {
	row, ok := sheetRow(r.ws, r.cur)
	if !ok {
		return nil, nil
	}
	defer func() {
		if v := recover(); v != nil {
			cells, err = nil, panicError(v)
			r.err = err
		}
	}()
	width := max(r.width, row.LastCol()+1)
	texts := make([]string, 0, width)
	for c := 0; c < width; c++ {
		texts = append(texts, row.Col(c))
	}
	for len(texts) > 0 && texts[len(texts)-1] == "" {
		texts = texts[:len(texts)-1]
	}
	cells = make([]Value, len(texts))
	for i, t := range texts {
		cells[i] = decodeCell(t, nil)
	}
	return cells, nil
}

func (r *xlsRows) Err() error { return r.err }

func (r *xlsRows) Close() error { return nil }
