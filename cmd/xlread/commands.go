package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/vinodismyname/xlread/internal/registry"
)

// renderFunc prints a successful tool result.
type renderFunc func(w io.Writer, res *mcp.CallToolResult) error

// runTool executes a tool in-process through the same middleware the server
// uses. The CLI has no payload budget.
func (g *globals) runTool(cmd *cobra.Command, name string, args map[string]any, render renderFunc) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, true)
	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	c.tools.Budget = 0

	if p, ok := args["file_path"].(string); ok {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		args["file_path"] = abs
	}

	ctx := logger.WithContext(cmd.Context())
	res, err := c.tools.Call(ctx, name, args, c.mw.ToolMiddleware)
	if err != nil {
		return err
	}
	if res.IsError {
		return errors.New(resultText(res))
	}
	return render(cmd.OutOrStdout(), res)
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool error"
}

func renderJSON(pretty bool) renderFunc {
	return func(w io.Writer, res *mcp.CallToolResult) error {
		enc := json.NewEncoder(w)
		if pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(res.StructuredContent)
	}
}

func newToolsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the MCP tools the server exposes with the current config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			c, err := newCore(cfg, newLogger(cfg.LogLevel, true))
			if err != nil {
				return err
			}
			c.buildServer()
			tools, err := c.reg.Tools(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range c.filter().FilterTools(cmd.Context(), tools) {
				desc, _, _ := strings.Cut(t.Description, ". ")
				fmt.Fprintf(w, "%s  %s\n", colorAddress.Sprint(t.Name), desc)
			}
			return nil
		},
	}
}

func newInfoCmd(g *globals) *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Print workbook metadata and sheet dimensions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.runTool(cmd, registry.ToolReadInfo, map[string]any{"file_path": args[0]}, renderJSON(pretty))
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	return cmd
}

func newReadCmd(g *globals) *cobra.Command {
	var (
		sheet      string
		sheetIndex int
		rng        string
		maxRows    int
		noHeader   bool
		pretty     bool
	)
	cmd := &cobra.Command{
		Use:   "read <file>",
		Short: "Read rows from one sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{"file_path": args[0], "header": !noHeader}
			if sheet != "" {
				in["sheet"] = sheet
			}
			if cmd.Flags().Changed("sheet-index") {
				in["sheet_index"] = sheetIndex
			}
			if rng != "" {
				in["range"] = rng
			}
			if maxRows > 0 {
				in["max_rows"] = maxRows
			}
			return g.runTool(cmd, registry.ToolReadRange, in, renderJSON(pretty))
		},
	}
	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default first sheet)")
	cmd.Flags().IntVar(&sheetIndex, "sheet-index", 0, "0-based sheet index")
	cmd.Flags().StringVarP(&rng, "range", "r", "", "A1 range or defined name")
	cmd.Flags().IntVarP(&maxRows, "max-rows", "n", 0, "Max data rows")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Return positional cells instead of header-keyed records")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	cmd.MarkFlagsMutuallyExclusive("sheet", "sheet-index")
	return cmd
}

func newSheetsCmd(g *globals) *cobra.Command {
	var (
		maxRows      int
		includeEmpty bool
		pretty       bool
	)
	cmd := &cobra.Command{
		Use:   "sheets <file>",
		Short: "Read every sheet with a per-sheet row cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{"file_path": args[0], "include_empty_sheets": includeEmpty}
			if maxRows > 0 {
				in["max_rows_per_sheet"] = maxRows
			}
			return g.runTool(cmd, registry.ToolReadAllSheets, in, renderJSON(pretty))
		},
	}
	cmd.Flags().IntVarP(&maxRows, "max-rows-per-sheet", "n", 0, "Max data rows per sheet (default 1000)")
	cmd.Flags().BoolVar(&includeEmpty, "include-empty", false, "Include empty sheets in sheets_data")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	return cmd
}

func newOverviewCmd(g *globals) *cobra.Command {
	var (
		sampleRows int
		pretty     bool
	)
	cmd := &cobra.Command{
		Use:   "overview <file>",
		Short: "Print metadata plus a sample of every sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{"file_path": args[0]}
			if sampleRows > 0 {
				in["sample_rows"] = sampleRows
			}
			return g.runTool(cmd, registry.ToolQuickOverview, in, renderJSON(pretty))
		},
	}
	cmd.Flags().IntVarP(&sampleRows, "sample-rows", "n", 0, "Sample rows per sheet (default 5, max 100)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var (
		sheet         string
		caseSensitive bool
		regex         bool
		maxMatches    int
		cursor        string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "search <file> [query]",
		Short: "Find cells containing text or matching a regular expression",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{"file_path": args[0], "case_sensitive": caseSensitive, "regex": regex}
			if len(args) == 2 {
				in["query"] = args[1]
			}
			if sheet != "" {
				in["sheet"] = sheet
			}
			if maxMatches > 0 {
				in["max_matches"] = maxMatches
			}
			if cursor != "" {
				in["cursor"] = cursor
			}
			render := renderJSON(false)
			if !asJSON {
				render = func(w io.Writer, res *mcp.CallToolResult) error {
					out, ok := res.StructuredContent.(registry.SearchOutput)
					if !ok {
						return fmt.Errorf("unexpected search result %T", res.StructuredContent)
					}
					printMatches(w, out)
					return nil
				}
			}
			return g.runTool(cmd, registry.ToolSearch, in, render)
		},
	}
	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Search only this sheet")
	cmd.Flags().BoolVarP(&caseSensitive, "case-sensitive", "C", false, "Match case exactly")
	cmd.Flags().BoolVarP(&regex, "regex", "e", false, "Treat query as a regular expression")
	cmd.Flags().IntVarP(&maxMatches, "max-matches", "n", 0, "Max matches per page")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume from a previous page's cursor")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON result")
	return cmd
}

var (
	colorSheet   = color.New(color.FgCyan)
	colorAddress = color.New(color.Bold)
	colorHeader  = color.New(color.FgHiMagenta)
	colorWarning = color.New(color.FgYellow)
)

// printMatches renders one line per match: Sheet!A1  [Header] value.
func printMatches(w io.Writer, out registry.SearchOutput) {
	fmt.Fprintf(w, "%d match(es) for %q in %s\n", out.TotalMatches, out.SearchTerm, filepath.Base(out.FilePath))
	for _, m := range out.Matches {
		label := ""
		if m.Header != "" {
			label = colorHeader.Sprintf("[%s] ", m.Header)
		}
		fmt.Fprintf(w, "%s!%s  %s%s\n", colorSheet.Sprint(m.Sheet), colorAddress.Sprint(m.Address), label, m.Value)
	}
	if out.NextCursor != "" {
		colorWarning.Fprintf(w, "more matches: --cursor %s\n", out.NextCursor)
	}
}
