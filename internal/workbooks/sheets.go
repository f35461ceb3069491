package workbooks

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Selector picks a sheet by name or by 0-based index. The zero Selector
// selects the first sheet in declared order.
type Selector struct {
	Name    string
	Index   int
	ByIndex bool
}

// SheetName selects a sheet by name.
func SheetName(name string) Selector { return Selector{Name: name} }

// SheetIndex selects a sheet by its 0-based position.
func SheetIndex(i int) Selector { return Selector{Index: i, ByIndex: true} }

func (s Selector) String() string {
	if s.ByIndex {
		return fmt.Sprintf("#%d", s.Index)
	}
	return s.Name
}

// Sheet resolves a selector. Names match exactly first, then
// case-insensitively when that is unambiguous.
func (h *Handle) Sheet(sel Selector) (SheetMetadata, error) {
	if sel.ByIndex {
		if sel.Index < 0 || sel.Index >= len(h.sheets) {
			return SheetMetadata{}, &Error{Op: "select", Kind: ErrSheetNotFound, Path: h.Path, Sheet: sel.String(),
				Detail: fmt.Sprintf("index out of range; workbook has %d sheet(s)", len(h.sheets))}
		}
		return h.sheets[sel.Index], nil
	}
	name := strings.TrimSpace(sel.Name)
	if name == "" {
		return h.sheets[0], nil
	}
	for _, s := range h.sheets {
		if s.Name == sel.Name || s.Name == name {
			return s, nil
		}
	}
	var folded []SheetMetadata
	for _, s := range h.sheets {
		if strings.EqualFold(s.Name, name) {
			folded = append(folded, s)
		}
	}
	if len(folded) == 1 {
		return folded[0], nil
	}
	return SheetMetadata{}, &Error{Op: "select", Kind: ErrSheetNotFound, Path: h.Path, Sheet: sel.Name, Detail: h.suggest(name)}
}

// suggest lists close sheet names, or all names when nothing is close.
func (h *Handle) suggest(name string) string {
	names := h.SheetNames()
	matches := fuzzy.Find(name, names)
	if len(matches) > 0 {
		near := make([]string, 0, 3)
		for i, m := range matches {
			if i == 3 {
				break
			}
			near = append(near, fmt.Sprintf("%q", m.Str))
		}
		return "did you mean " + strings.Join(near, ", ") + "?"
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "available sheets: " + strings.Join(quoted, ", ")
}
