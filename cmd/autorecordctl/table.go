package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable writes rows under headers. Columns listed in rightAligned
// (zero-based) are right aligned.
func renderTable(w io.Writer, headers []string, rows [][]string, rightAligned ...int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{
			Number:      col + 1,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	tw.Render()
}

// renderFields writes a two-column key/value table.
func renderFields(w io.Writer, fields [][2]string) {
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		rows = append(rows, []string{f[0], f[1]})
	}
	renderTable(w, []string{"FIELD", "VALUE"}, rows)
}
