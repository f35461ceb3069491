package workbooks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Bounds is a 1-based inclusive cell window. A zero bound is open: Row2 == 0
// reads to the last row, Col2 == 0 reads to the end of each row.
type Bounds struct {
	Col1, Row1 int
	Col2, Row2 int
}

// Full reports whether the bounds cover the whole used extent.
func (b Bounds) Full() bool { return b == Bounds{Col1: 1, Row1: 1} }

// rowsOpen reports whether the window starts at the used extent rather than a fixed row.
func (b Bounds) rowsOpen() bool { return b.Row1 == 1 && b.Row2 == 0 }

func (b Bounds) containsRow(row int) bool {
	return row >= b.Row1 && (b.Row2 == 0 || row <= b.Row2)
}

// A1 renders the closed box spanned by the given columns and rows.
func A1(col1, row1, col2, row2 int) string {
	tl, err1 := excelize.CoordinatesToCellName(col1, row1)
	br, err2 := excelize.CoordinatesToCellName(col2, row2)
	if err1 != nil || err2 != nil {
		return ""
	}
	if tl == br {
		return tl
	}
	return tl + ":" + br
}

var refPattern = regexp.MustCompile(`^([A-Za-z]{1,3})?([0-9]{1,7})?$`)

// parseRef splits an A1 token into column and row; either part may be absent.
func parseRef(tok string) (col, row int, err error) {
	tok = strings.ReplaceAll(strings.TrimSpace(tok), "$", "")
	m := refPattern.FindStringSubmatch(tok)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, 0, fmt.Errorf("malformed reference %q", tok)
	}
	if m[1] != "" {
		if col, err = excelize.ColumnNameToNumber(m[1]); err != nil {
			return 0, 0, err
		}
	}
	if m[2] != "" {
		if row, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, err
		}
		if row < 1 || row > excelize.TotalRows {
			return 0, 0, fmt.Errorf("row %d out of bounds", row)
		}
	}
	return col, row, nil
}

// parseBounds parses an A1 reference: "A1:D20", "B2", "A:C" or "2:10".
func parseBounds(ref string) (Bounds, error) {
	parts := strings.Split(ref, ":")
	if len(parts) > 2 {
		return Bounds{}, fmt.Errorf("malformed range %q", ref)
	}
	c1, r1, err := parseRef(parts[0])
	if err != nil {
		return Bounds{}, err
	}
	if len(parts) == 1 {
		if c1 == 0 || r1 == 0 {
			return Bounds{}, fmt.Errorf("single reference %q must name a cell", ref)
		}
		return Bounds{Col1: c1, Row1: r1, Col2: c1, Row2: r1}, nil
	}
	c2, r2, err := parseRef(parts[1])
	if err != nil {
		return Bounds{}, err
	}
	switch {
	case c1 > 0 && r1 > 0 && c2 > 0 && r2 > 0:
		// cell box
	case c1 > 0 && c2 > 0 && r1 == 0 && r2 == 0:
		r1 = 1
	case r1 > 0 && r2 > 0 && c1 == 0 && c2 == 0:
		c1 = 1
	default:
		return Bounds{}, fmt.Errorf("mixed reference forms in %q", ref)
	}
	if c2 < c1 || r2 < r1 {
		return Bounds{}, fmt.Errorf("range start %s is after its end %s", parts[0], parts[1])
	}
	return Bounds{Col1: c1, Row1: r1, Col2: c2, Row2: r2}, nil
}

// resolveRange interprets the range argument of a read relative to sheet.
// Sheet-qualified references must name the same sheet; plain identifiers are
// looked up as defined names.
func (h *Handle) resolveRange(sheet, input string) (Bounds, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return Bounds{Col1: 1, Row1: 1}, nil
	}
	fail := func(detail string) (Bounds, error) {
		return Bounds{}, &Error{Op: "read", Kind: ErrInvalidRange, Path: h.Path, Sheet: sheet, Range: input, Detail: detail}
	}
	if i := strings.LastIndex(in, "!"); i >= 0 {
		qualifier := strings.Trim(in[:i], "'")
		if qualifier != "" && !strings.EqualFold(qualifier, sheet) {
			return fail(fmt.Sprintf("reference names sheet %q", qualifier))
		}
		in = in[i+1:]
	}
	b, err := parseBounds(in)
	if err == nil {
		return b, nil
	}
	if dnSheet, ref, ok := h.book.DefinedName(in); ok {
		if dnSheet != "" && !strings.EqualFold(dnSheet, sheet) {
			return fail(fmt.Sprintf("defined name refers to sheet %q", dnSheet))
		}
		db, derr := parseBounds(ref)
		if derr != nil {
			return fail(derr.Error())
		}
		return db, nil
	}
	return fail(err.Error())
}
