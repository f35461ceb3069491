package workbooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadDefaultSheetTyped(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	res, err := h.Read(context.Background(), ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, "Sales", res.Sheet.Name)
	require.Len(t, res.Rows, 4)
	require.False(t, res.Truncated)
	require.Equal(t, "A1:D4", res.Range)

	row := res.Rows[1]
	require.Equal(t, 2, row.Row)
	require.Equal(t, StringValue("North"), row.Cells[0])
	require.Equal(t, TypeNumber, row.Cells[1].Type)
	require.InDelta(t, 1200.5, row.Cells[1].Number, 1e-9)
	require.Equal(t, BoolValue(true), row.Cells[2])
	// numeric-looking text stays a string
	require.Equal(t, TypeString, row.Cells[3].Type)
	require.Equal(t, "00123", row.Cells[3].Text())

	require.Equal(t, BoolValue(false), res.Rows[2].Cells[2])
	require.Len(t, res.Rows[3].Cells, 2)
}

func TestReadHeaderKeys(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	res, err := h.Read(context.Background(), ReadOptions{Header: true})
	require.NoError(t, err)
	require.Equal(t, []string{"Region", "Revenue", "Active", "Code"}, res.Columns)
	require.Len(t, res.Rows, 3)
	require.Equal(t, "South", res.Rows[1].Keys["Region"].Text())
	require.True(t, res.Rows[2].Keys["Code"].IsEmpty())
	require.Equal(t, "A1:D4", res.Range)
}

func TestHeaderKeysDuplicatesAndBlanks(t *testing.T) {
	keys := headerKeys(textRow("id", "", "id", "name", "id"))
	require.Equal(t, []string{"id", "Column 2", "id.1", "name", "id.2"}, keys)

	m := keyed([]string{"a"}, textRow("1", "2"))
	require.Equal(t, "2", m["Column 2"].Text())

	keys = headerKeys(textRow("A", "A", "A.1"))
	require.Equal(t, []string{"A", "A.1", "A.1.1"}, keys)
	m = keyed(keys, textRow("x", "y", "z"))
	require.Len(t, m, 3)
	require.Equal(t, "y", m["A.1"].Text())
	require.Equal(t, "z", m["A.1.1"].Text())

	keys = headerKeys(textRow("A.1", "A", "A"))
	require.Equal(t, []string{"A.1", "A", "A.2"}, keys)

	// overflow cells must not overwrite a header literally named "Column 2"
	m = keyed([]string{"Column 2"}, textRow("head", "extra"))
	require.Len(t, m, 2)
	require.Equal(t, "head", m["Column 2"].Text())
	require.Equal(t, "extra", m["Column 2.1"].Text())
}

func TestReadSkipsLeadingAndKeepsInteriorEmptyRows(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	res, err := h.Read(context.Background(), ReadOptions{Sheet: SheetName("Notes")})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	require.Equal(t, []int{3, 4, 5}, []int{res.Rows[0].Row, res.Rows[1].Row, res.Rows[2].Row})
	require.Equal(t, "Total check", res.Rows[0].Cells[1].Text())
	require.Empty(t, res.Rows[1].Cells)
	require.Equal(t, "done", res.Rows[2].Cells[2].Text())
}

func TestReadDropsTrailingEmptyRows(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellStr("Sheet1", "A1", "x"))
	// styled but empty rows past the data
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "A5", "C9", style))
	h := openT(t, saveWorkbook(t, f, "trailing.xlsx"))

	res, err := h.Read(context.Background(), ReadOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "A1", res.Range)
}

func TestReadRanges(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))
	ctx := context.Background()

	cases := []struct {
		name     string
		rng      string
		rows     int
		first    string
		wantSpan string
	}{
		{"box", "B2:C3", 2, "1200.5", "B2:C3"},
		{"single cell", "A3", 1, "South", "A3"},
		{"columns", "C:D", 3, "Active", "C1:D3"},
		{"rows", "2:3", 2, "North", "A2:D3"},
		{"qualified", "'Sales'!A1:B2", 2, "Region", "A1:B2"},
		{"absolute", "$A$2:$B$2", 1, "North", "A2:B2"},
		{"defined name", "Figures", 3, "Region", "A1:B3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.Read(ctx, ReadOptions{Range: tc.rng})
			require.NoError(t, err)
			require.Len(t, res.Rows, tc.rows)
			require.Equal(t, tc.first, res.Rows[0].Cells[0].Text())
			require.Equal(t, tc.wantSpan, res.Range)
		})
	}
}

func TestReadRangePastDataIsEmpty(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	res, err := h.Read(context.Background(), ReadOptions{Range: "A100:B200"})
	require.NoError(t, err)
	require.Empty(t, res.Rows)
	require.False(t, res.Truncated)
	require.Empty(t, res.Range)
}

func TestReadInvalidRanges(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	for _, rng := range []string{"C3:A1", "A1:B2:C3", "??", "Notes!A1:B2", "A:3", "ZZZZ1"} {
		t.Run(rng, func(t *testing.T) {
			_, err := h.Read(context.Background(), ReadOptions{Range: rng})
			require.ErrorIs(t, err, ErrInvalidRange)
			require.Equal(t, "INVALID_RANGE", Code(err))
			require.Contains(t, err.Error(), "Sales")
		})
	}
}

func TestReadRowCapTruncates(t *testing.T) {
	h := openT(t, createTallWorkbook(t, 10000))
	ctx := context.Background()

	res, err := h.Read(ctx, ReadOptions{RowCap: 50})
	require.NoError(t, err)
	require.Len(t, res.Rows, 50)
	require.True(t, res.Truncated)
	require.Equal(t, 50, res.Rows[49].Row)

	full, err := h.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, full.Rows, 10000)
	require.False(t, full.Truncated)
}

func TestReadRowCapExactIsNotTruncated(t *testing.T) {
	h := openT(t, createTallWorkbook(t, 20))

	res, err := h.Read(context.Background(), ReadOptions{RowCap: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 20)
	require.False(t, res.Truncated)

	res, err = h.Read(context.Background(), ReadOptions{RowCap: 19, Header: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 19)
	require.False(t, res.Truncated)
}

func TestReadIsIdempotent(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))
	ctx := context.Background()
	opts := ReadOptions{Sheet: SheetName("Sales"), Range: "A1:D3", Header: true}

	first, err := h.Read(ctx, opts)
	require.NoError(t, err)
	second, err := h.Read(ctx, opts)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRowsCursorStopsEarly(t *testing.T) {
	h := openT(t, createTallWorkbook(t, 500))

	cur, err := h.Rows(context.Background(), ReadOptions{})
	require.NoError(t, err)
	n := 0
	for cur.Next() {
		n++
		if n == 3 {
			break
		}
	}
	require.NoError(t, cur.Close())
	require.False(t, cur.Next())
	require.NoError(t, cur.Err())
	require.Equal(t, "A1:B3", cur.Span())
}

func TestReadCanceled(t *testing.T) {
	h := openT(t, createTallWorkbook(t, 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Read(ctx, ReadOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadUnknownSheet(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	_, err := h.Read(context.Background(), ReadOptions{Sheet: SheetName("Budget")})
	require.ErrorIs(t, err, ErrSheetNotFound)
}

func TestReadFormattedNumbersStayNumeric(t *testing.T) {
	f := excelize.NewFile()
	sh := "Sheet1"
	require.NoError(t, f.SetSheetRow(sh, "A1", &[]any{0.125, 1234.5, 99.5, 45306, "12%"}))
	styled := func(cell string, s *excelize.Style) {
		id, err := f.NewStyle(s)
		require.NoError(t, err)
		require.NoError(t, f.SetCellStyle(sh, cell, cell, id))
	}
	currency := `"$"#,##0.00`
	styled("A1", &excelize.Style{NumFmt: 10})
	styled("B1", &excelize.Style{NumFmt: 4})
	styled("C1", &excelize.Style{CustomNumFmt: &currency})
	styled("D1", &excelize.Style{NumFmt: 14})
	h := openT(t, saveWorkbook(t, f, "formats.xlsx"))

	res, err := h.Read(context.Background(), ReadOptions{})
	require.NoError(t, err)
	cells := res.Rows[0].Cells

	require.Equal(t, TypeNumber, cells[0].Type)
	require.InDelta(t, 0.125, cells[0].Number, 1e-12)
	require.Equal(t, "12.50%", cells[0].Text())

	require.Equal(t, TypeNumber, cells[1].Type)
	require.InDelta(t, 1234.5, cells[1].Number, 1e-12)
	require.Equal(t, "1,234.50", cells[1].Text())

	require.Equal(t, TypeNumber, cells[2].Type)
	require.InDelta(t, 99.5, cells[2].Number, 1e-12)

	// dates keep their rendered text rather than the serial number
	require.Equal(t, TypeString, cells[3].Type)
	require.NotEqual(t, "45306", cells[3].Text())

	require.Equal(t, TypeString, cells[4].Type)
	require.Equal(t, "12%", cells[4].Text())
}

func TestIsDateFormat(t *testing.T) {
	code := func(s string) *string { return &s }
	require.True(t, isDateFormat(14, nil))
	require.True(t, isDateFormat(22, nil))
	require.False(t, isDateFormat(10, nil))
	require.False(t, isDateFormat(0, nil))
	require.True(t, isDateFormat(164, code("yyyy-mm-dd")))
	require.True(t, isDateFormat(164, code("[h]:mm:ss")))
	require.False(t, isDateFormat(164, code(`"$"#,##0.00`)))
	require.False(t, isDateFormat(164, code(`[$-409]#,##0.00 "days"`)))
	require.False(t, isDateFormat(164, code("0.00%;[Red]-0.00%")))
}
