// Package output renders query results for the command line as tables,
// JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"restql/internal/resultset"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatAuto  Format = ""
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a --output value. An empty value selects FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Resolve turns FormatAuto into a table on a terminal and JSON otherwise.
func Resolve(format Format, w io.Writer) Format {
	if format != FormatAuto {
		return format
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatTable
	}
	return FormatJSON
}

// TableData is a pre-built table.
type TableData struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Formatter writes values in one format.
type Formatter struct {
	Format    Format
	NoHeaders bool
	Writer    io.Writer
}

// NewFormatter creates a formatter writing to w, resolving FormatAuto
// against w.
func NewFormatter(format Format, noHeaders bool, w io.Writer) *Formatter {
	if w == nil {
		w = os.Stdout
	}
	return &Formatter{Format: Resolve(format, w), NoHeaders: noHeaders, Writer: w}
}

// Print writes data. Query results print as one table per sequence in table
// format; other values fall back to JSON there.
func (f *Formatter) Print(data any) error {
	if res, ok := data.(resultset.Result); ok {
		if f.Format == FormatTable {
			return f.printResult(res)
		}
		data = res.Value()
	}

	switch f.Format {
	case FormatYAML:
		return f.printYAML(data)
	default:
		return f.printJSON(data)
	}
}

func (f *Formatter) printJSON(data any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *Formatter) printYAML(data any) error {
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (f *Formatter) printResult(res resultset.Result) error {
	var tables []TableData
	res.Each(func(entity string, rows []resultset.Row) {
		table := RowsTable(rows)
		table.Title = entity
		tables = append(tables, table)
	})
	for i, t := range tables {
		if i > 0 {
			if _, err := fmt.Fprintln(f.Writer); err != nil {
				return err
			}
		}
		if err := f.PrintTable(t); err != nil {
			return err
		}
	}
	return nil
}

// PrintTable renders data. Non-table formats print the rows as a list of
// objects keyed by header.
func (f *Formatter) PrintTable(data TableData) error {
	if f.Format != FormatTable {
		rows := make([]map[string]string, len(data.Rows))
		for i, row := range data.Rows {
			rows[i] = make(map[string]string, len(row))
			for j, cell := range row {
				if j < len(data.Headers) {
					rows[i][data.Headers[j]] = cell
				}
			}
		}
		if f.Format == FormatYAML {
			return f.printYAML(rows)
		}
		return f.printJSON(rows)
	}

	if data.Title != "" {
		if _, err := fmt.Fprintf(f.Writer, "%s (%d)\n", data.Title, len(data.Rows)); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows)
	table.Render()
	return nil
}

// RowsTable lays rows out with one column per key, sorted by name. Keys
// missing from a row render as empty cells.
func RowsTable(rows []resultset.Row) TableData {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	headers := make([]string, 0, len(seen))
	for k := range seen {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	out := TableData{Headers: headers, Rows: make([][]string, len(rows))}
	for i, row := range rows {
		cells := make([]string, len(headers))
		for j, h := range headers {
			if v, ok := row[h]; ok {
				cells[j] = Cell(v)
			}
		}
		out.Rows[i] = cells
	}
	return out
}

// Cell renders one value for a table cell. Objects and arrays are compact
// JSON; nil is empty.
func Cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
