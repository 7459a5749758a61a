package output

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable renders the report as a summary followed by a channel table.
func RenderTable(info *BagInfo) string {
	var b strings.Builder

	summary := [][2]string{
		{"Path", info.Path},
		{"Format", info.Format},
		{"Size", humanize.IBytes(info.Size)},
		{"Messages", humanize.Comma(int64(info.Messages))}, //nolint:gosec // message counts fit int64
		{"Channels", humanize.Comma(int64(len(info.Channels)))},
	}

	if info.StartTime != "" {
		summary = append(summary,
			[2]string{"Start", info.StartTime},
			[2]string{"End", info.EndTime},
			[2]string{"Duration", info.Duration.String()},
		)
	}

	for _, kv := range summary {
		b.WriteString(padRight(kv[0]+":", 10))
		b.WriteString(kv[1])
		b.WriteByte('\n')
	}

	if len(info.Channels) == 0 {
		return b.String()
	}

	b.WriteByte('\n')

	rows := make([][]string, 0, len(info.Channels))
	for _, c := range info.Channels {
		rows = append(rows, []string{
			c.Name,
			c.Type,
			c.Serialization,
			humanize.Comma(int64(c.Connections)),
			humanize.Comma(int64(c.Messages)), //nolint:gosec // message counts fit int64
		})
	}

	b.WriteString(renderTable(
		[]string{"CHANNEL", "TYPE", "SERIALIZATION", "CONNECTIONS", "MESSAGES"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	b.WriteByte('\n')

	return b.String()
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}

	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}

		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)

	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}

		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}

	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s + " "
	}

	return s + strings.Repeat(" ", n-len(s))
}
