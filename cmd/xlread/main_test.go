package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/xlread/internal/registry"
	"github.com/vinodismyname/xlread/internal/search"
)

func writeBook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Name", "City"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Ada", "London"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"Grace", "New York"}))
	path := filepath.Join(t.TempDir(), "people.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--env-file", "", "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestInfoCommand(t *testing.T) {
	path := writeBook(t)
	out, err := execute(t, "info", path)
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.EqualValues(t, 1, info["sheet_count"])
}

func TestReadCommand(t *testing.T) {
	path := writeBook(t)
	out, err := execute(t, "read", path, "--max-rows", "1")
	require.NoError(t, err)

	var res struct {
		Columns   []string `json:"columns"`
		Truncated bool     `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, []string{"Name", "City"}, res.Columns)
	require.True(t, res.Truncated)
}

func TestSearchCommandText(t *testing.T) {
	color.NoColor = true
	path := writeBook(t)
	out, err := execute(t, "search", path, "york")
	require.NoError(t, err)
	require.Contains(t, out, "1 match(es)")
	require.Contains(t, out, "Sheet1!B3  [City] New York")
}

func TestCommandToolError(t *testing.T) {
	path := writeBook(t)
	_, err := execute(t, "read", path, "--sheet", "Nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVALID_SHEET")
}

func TestPrintMatchesCursorHint(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printMatches(&buf, registry.SearchOutput{
		FilePath:     "/tmp/book.xlsx",
		SearchTerm:   "x",
		TotalMatches: 1,
		Matches:      []search.Match{{Sheet: "S", Address: "A1", Value: "x"}},
		NextCursor:   "abc",
	})
	require.Equal(t, "1 match(es) for \"x\" in book.xlsx\nS!A1  x\nmore matches: --cursor abc\n", buf.String())
}

func TestDefaultBaseURL(t *testing.T) {
	require.Equal(t, "http://localhost:8080", defaultBaseURL(":8080"))
	require.Equal(t, "http://0.0.0.0:9000", defaultBaseURL("0.0.0.0:9000"))
}

func TestToolsCommandHonoursDisabledTools(t *testing.T) {
	color.NoColor = true
	t.Setenv("XLREAD_DISABLED_TOOLS", "excel_search")
	out, err := execute(t, "tools")
	require.NoError(t, err)
	require.Contains(t, out, "excel_read_info  Return workbook metadata without cell data: file size")
	require.NotContains(t, out, "excel_search")
}
