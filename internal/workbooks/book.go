package workbooks

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// book is the decoding backend behind a Handle.
type book interface {
	SheetNames() []string
	// Rows streams the rows of a sheet in ascending order, starting at row 1.
	Rows(sheet string) (rowSource, error)
	// DefinedName resolves a workbook defined name to its sheet and A1 reference.
	DefinedName(name string) (sheet, ref string, ok bool)
	Properties() map[string]string
	Close() error
}

// rowSource is a forward-only row iterator.
type rowSource interface {
	Next() bool
	// Row is the 1-based sheet row number of the current row.
	Row() int
	// Cells decodes the current row starting at column A, without trailing empties.
	Cells() ([]Value, error)
	Err() error
	Close() error
}

// xlsxBook decodes OOXML workbooks with excelize.
type xlsxBook struct {
	f *excelize.File
}

func openXLSX(path string) (*xlsxBook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &xlsxBook{f: f}, nil
}

func (b *xlsxBook) SheetNames() []string { return b.f.GetSheetList() }

func (b *xlsxBook) Rows(sheet string) (rowSource, error) {
	rows, err := b.f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	return &xlsxRows{f: b.f, sheet: sheet, rows: rows}, nil
}

func (b *xlsxBook) DefinedName(name string) (string, string, bool) {
	for _, dn := range b.f.GetDefinedName() {
		if !strings.EqualFold(dn.Name, name) {
			continue
		}
		ref := strings.TrimPrefix(strings.TrimSpace(dn.RefersTo), "=")
		sheet := dn.Scope
		if i := strings.LastIndex(ref, "!"); i >= 0 {
			sheet = strings.Trim(ref[:i], "'")
			ref = ref[i+1:]
		}
		if strings.EqualFold(sheet, "Workbook") {
			sheet = ""
		}
		return sheet, strings.ReplaceAll(ref, "$", ""), true
	}
	return "", "", false
}

func (b *xlsxBook) Properties() map[string]string {
	out := map[string]string{}
	props, err := b.f.GetDocProps()
	if err != nil || props == nil {
		return out
	}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	set("title", props.Title)
	set("subject", props.Subject)
	set("creator", props.Creator)
	set("last_modified_by", props.LastModifiedBy)
	set("created", props.Created)
	set("modified", props.Modified)
	set("keywords", props.Keywords)
	set("description", props.Description)
	set("category", props.Category)
	set("revision", props.Revision)
	set("language", props.Language)
	return out
}

func (b *xlsxBook) Close() error { return b.f.Close() }

type xlsxRows struct {
	f     *excelize.File
	sheet string
	rows  *excelize.Rows
	row   int
	dates map[int]bool // style ID -> number format renders a date or time
}

func (r *xlsxRows) Next() bool {
	if !r.rows.Next() {
		return false
	}
	r.row++
	return true
}

func (r *xlsxRows) Row() int { return r.row }

func (r *xlsxRows) Cells() ([]Value, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, err
	}
	cells := make([]Value, len(cols))
	for i, text := range cols {
		cells[i] = r.decode(i+1, text)
	}
	return cells, nil
}

// decode types one cell from its formatted text. A cell stored as a number
// whose format hides that (percent, thousands, currency) is parsed from its
// stored value; Display keeps the formatted text. Date and time formats stay
// text.
func (r *xlsxRows) decode(col int, text string) Value {
	if text == "" {
		return Value{}
	}
	name, err := excelize.CoordinatesToCellName(col, r.row)
	if err != nil {
		return decodeCell(text, nil)
	}
	var (
		probed, typed bool
		typ           Type
	)
	probe := func() (Type, bool) {
		if !probed {
			typ, typed = r.cellType(name)
			probed = true
		}
		return typ, typed
	}
	v := decodeCell(text, probe)
	if v.Type != TypeString {
		return v
	}
	if t, ok := probe(); !ok || t != TypeNumber {
		return v
	}
	raw, err := r.f.GetCellValue(r.sheet, name, excelize.Options{RawCellValue: true})
	if err != nil {
		return v
	}
	f, ok := parseNumber(strings.TrimSpace(raw))
	if !ok || r.dateStyled(name) {
		return v
	}
	return NumberValue(f, text)
}

// cellType asks excelize for the stored type of a cell. Numeric cells are
// usually stored without an explicit type attribute, hence CellTypeUnset.
func (r *xlsxRows) cellType(name string) (Type, bool) {
	ct, err := r.f.GetCellType(r.sheet, name)
	if err != nil {
		return TypeEmpty, false
	}
	switch ct {
	case excelize.CellTypeBool:
		return TypeBool, true
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		return TypeNumber, true
	default:
		return TypeString, true
	}
}

func (r *xlsxRows) dateStyled(name string) bool {
	id, err := r.f.GetCellStyle(r.sheet, name)
	if err != nil || id == 0 {
		return false
	}
	if d, ok := r.dates[id]; ok {
		return d
	}
	d := false
	if st, err := r.f.GetStyle(id); err == nil {
		d = isDateFormat(st.NumFmt, st.CustomNumFmt)
	}
	if r.dates == nil {
		r.dates = map[int]bool{}
	}
	r.dates[id] = d
	return d
}

// isDateFormat reports whether a number format renders dates or times:
// built-in IDs 14-22 and 45-47, the East Asian date IDs, or a custom code
// with date/time tokens outside quoted text, escapes and [..] sections.
func isDateFormat(id int, custom *string) bool {
	if custom == nil || *custom == "" {
		return (id >= 14 && id <= 22) || (id >= 27 && id <= 36) || (id >= 45 && id <= 47) || (id >= 50 && id <= 58)
	}
	code := strings.ToLower(*custom)
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			inQuote = c != '"'
		case inBracket:
			inBracket = c != ']'
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == '\\' || c == '_' || c == '*':
			i++
		case strings.IndexByte("dmyhs", c) >= 0:
			return true
		}
	}
	return false
}

func (r *xlsxRows) Err() error { return r.rows.Error() }

func (r *xlsxRows) Close() error { return r.rows.Close() }
