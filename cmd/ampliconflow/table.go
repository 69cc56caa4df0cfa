package main

import (
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ampliconflow/internal/stats"
)

// column describes one table column; numeric columns are right aligned.
type column struct {
	header  string
	numeric bool
}

func textCol(header string) column { return column{header: header} }

func numCol(header string) column { return column{header: header, numeric: true} }

var (
	numberPrinter = message.NewPrinter(language.English)
	titleCaser    = cases.Title(language.English)
)

// renderTable lays rows out under cols, padding short rows. Headers are
// bolded when w is a terminal.
func renderTable(w io.Writer, cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if shouldColorize(w) {
		tw.Style().Color.Header = text.Colors{text.Bold}
	}

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.header
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatCount renders n with thousands separators; unknown counts print as "unknown".
func formatCount(n int64) string {
	if n == stats.Unknown {
		return "unknown"
	}
	return numberPrinter.Sprintf("%d", n)
}

func formatPercent(num, den int64) string {
	if den <= 0 {
		return "0.0%"
	}
	return numberPrinter.Sprintf("%.1f%%", float64(num)/float64(den)*100)
}

func titleWord(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}
